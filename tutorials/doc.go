// Package tutorials groups the cookbook applications. Each subpackage builds
// one root agent from a model.Model. cookbook.New registers the text apps
// on an engine; the live ones are served by the cookbook serve and voice
// commands:
//
//   - blogpipeline: sequential research, write, edit and format pipeline
//   - travelplanner: parallel flight, hotel and activity search feeding an itinerary
//   - essayrefiner: draft followed by a critic/refiner loop ending with exit_loop
//   - financeassistant: function tools for compound interest, loans and savings
//   - codecalculator: financial calculator backed by a code executor
//   - customsession: session backend selection through the session registry
//   - productionagent: deployment advisor served by the production API
//   - voiceassistant: live audio assistant with a text model fallback
//   - liveinteract: agent behind the /ws live endpoint
//
// To run one of them against a real model:
//
//	export GOOGLE_API_KEY="your-key-here"
//	go run ./cmd/cookbook run blog_pipeline "Write about Go generics"
package tutorials
