// Package travelplanner fans a travel request out to three finders running
// in parallel and gathers their results into one itinerary.
package travelplanner

import (
	"time"

	"github.com/hupe1980/agentcookbook/agent"
	"github.com/hupe1980/agentcookbook/model"
)

const (
	AppName      = "travel_planner"
	RootName     = "TravelPlanningSystem"
	ParallelName = "ParallelSearch"
)

// State keys.
const (
	KeyFlightOptions   = "flight_options"
	KeyHotelOptions    = "hotel_options"
	KeyActivityOptions = "activity_options"
	KeyFinalItinerary  = "final_itinerary"
)

// Options tunes New.
type Options struct {
	// SearchTimeout bounds the parallel search. Zero means no limit.
	SearchTimeout time.Duration
}

const flightInstruction = `You are a flight search specialist. Based on the user's travel request, find available flights.

Provide 2-3 flight options with:
- airline name
- departure and arrival times
- price range
- flight duration

Use a bulleted list. Be specific and realistic.`

const hotelInstruction = `You are a hotel search specialist. Based on the user's travel request, find suitable hotels.

Provide 2-3 hotel options with:
- hotel name and rating
- location (district/area)
- price per night
- key amenities

Use a bulleted list. Be specific and realistic.`

const activityInstruction = `You are a local activities expert. Based on the user's travel request, recommend activities and attractions.

Provide 4-5 activity suggestions with:
- activity name
- one sentence description
- estimated duration
- estimated cost

Use a bulleted list. Mix paid and free activities.`

const itineraryInstruction = `You are a travel planner. Combine the search results below into a complete, well organized itinerary.

**Available flights:**
{flight_options}

**Available hotels:**
{hotel_options}

**Recommended activities:**
{activity_options}

Create a formatted itinerary that:
1. recommends the best flight and hotel
2. organizes the activities into a day-by-day plan
3. includes an estimated total cost
4. adds practical travel tips

Use clear sections and markdown formatting.`

func finder(llm model.Model, name, description, instruction, outputKey string) *agent.ModelAgent {
	return agent.NewModelAgent(name, llm, func(o *agent.ModelAgentOptions) {
		o.Description = description
		o.Instruction = agent.StaticInstruction(instruction)
		o.OutputKey = outputKey
		o.AllowTransfer = false
	})
}

// New builds ParallelSearch(flight_finder, hotel_finder, activity_finder)
// followed by itinerary_builder.
func New(llm model.Model, optFns ...func(o *Options)) *agent.SequentialAgent {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	search := agent.NewParallelAgent(ParallelName, opts.SearchTimeout,
		finder(llm, "flight_finder", "Searches for available flights", flightInstruction, KeyFlightOptions),
		finder(llm, "hotel_finder", "Searches for available hotels", hotelInstruction, KeyHotelOptions),
		finder(llm, "activity_finder", "Finds activities and attractions", activityInstruction, KeyActivityOptions),
	)
	search.SetDescription("Searches flights, hotels and activities concurrently")

	builder := finder(llm, "itinerary_builder", "Combines all search results into a complete itinerary", itineraryInstruction, KeyFinalItinerary)

	root := agent.NewSequentialAgent(RootName, search, builder)
	root.SetDescription("Complete travel planning system with parallel search and itinerary building")

	return root
}
