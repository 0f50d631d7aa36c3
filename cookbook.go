// Package cookbook hosts the tutorial agents behind a single engine. Every
// tutorial is registered as its own app on shared session, artifact and
// memory stores:
//
//	blog_pipeline          sequential research, draft, edit and format steps
//	travel_planner         parallel searches merged into one itinerary
//	essay_refiner          critique and refine loop ending on approval
//	finance_assistant      function tools for compound interest, loans and savings
//	code_calculator        financial math through a code executor
//	custom_session_agent   session service demo over memory://, redis:// or sqlite://
//	production_deployment  the agent served by the production API
//	live_interact          weather and time assistant for live sessions
//
// The voice assistant needs a live model connection per turn and lives in
// tutorials/voiceassistant instead.
package cookbook

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentcookbook/code"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/engine"
	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/runner"
	"github.com/hupe1980/agentcookbook/tutorials/blogpipeline"
	"github.com/hupe1980/agentcookbook/tutorials/codecalculator"
	"github.com/hupe1980/agentcookbook/tutorials/customsession"
	"github.com/hupe1980/agentcookbook/tutorials/essayrefiner"
	"github.com/hupe1980/agentcookbook/tutorials/financeassistant"
	"github.com/hupe1980/agentcookbook/tutorials/liveinteract"
	"github.com/hupe1980/agentcookbook/tutorials/productionagent"
	"github.com/hupe1980/agentcookbook/tutorials/travelplanner"
)

// Options configures a Cookbook.
type Options struct {
	EngineConfig engine.Config

	// Stores default to in-memory implementations.
	SessionStore  core.SessionStore
	ArtifactStore core.ArtifactStore
	MemoryStore   core.MemoryStore

	// SessionBackend is the scheme reported by custom_session_agent.
	SessionBackend string

	// CodeExecutor runs code_calculator programs. Nil selects the built-in
	// executor on Gemini and jq elsewhere.
	CodeExecutor code.Executor

	Logger    logging.Logger
	Callbacks []runner.Callback
}

// Cookbook is the registry of tutorial apps.
type Cookbook struct {
	engine *engine.Engine
}

// Answer is the outcome of Ask.
type Answer struct {
	SessionID    string
	InvocationID string
	// Text is the last final response of the run.
	Text   string
	Events []core.Event
}

// New registers every tutorial on llm.
func New(llm model.Model, optFns ...func(o *Options)) *Cookbook {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		if opts.SessionStore != nil {
			o.SessionStore = opts.SessionStore
		}
		if opts.ArtifactStore != nil {
			o.ArtifactStore = opts.ArtifactStore
		}
		if opts.MemoryStore != nil {
			o.MemoryStore = opts.MemoryStore
		}
		o.Logger = opts.Logger
		o.Callbacks = opts.Callbacks
	})

	e.Register(blogpipeline.AppName, blogpipeline.New(llm))
	e.Register(travelplanner.AppName, travelplanner.New(llm))
	e.Register(essayrefiner.AppName, essayrefiner.New(llm))
	e.Register(financeassistant.AppName, financeassistant.New(llm))
	e.Register(codecalculator.AppName, codecalculator.New(llm, opts.CodeExecutor))
	e.Register(customsession.AppName, customsession.New(llm, func(o *customsession.Options) {
		o.Backend = opts.SessionBackend
	}))
	e.Register(productionagent.AppName, productionagent.New(llm, model.GenerateConfig{}))
	e.Register(liveinteract.AppName, liveinteract.New(llm))

	return &Cookbook{engine: e}
}

// Engine exposes the underlying engine.
func (c *Cookbook) Engine() *engine.Engine { return c.engine }

// Apps lists the registered app names in sorted order.
func (c *Cookbook) Apps() []string { return c.engine.Apps() }

// Ask runs query against app. An empty sessionID starts a new session.
func (c *Cookbook) Ask(ctx context.Context, app, userID, sessionID, query string) (Answer, error) {
	if sessionID == "" {
		sess, err := c.engine.CreateSession(ctx, app, userID, "", nil)
		if err != nil {
			return Answer{}, fmt.Errorf("failed to create session: %w", err)
		}
		sessionID = sess.ID
	}

	id, events, err := c.engine.InvokeSync(ctx, app, userID, sessionID, *core.NewTextContent("user", query))
	answer := Answer{SessionID: sessionID, InvocationID: id, Events: events}
	if err != nil {
		return answer, err
	}

	for _, ev := range events {
		if ev.Author != "user" && ev.IsFinalResponse() && ev.Text() != "" {
			answer.Text = ev.Text()
		}
	}

	return answer, nil
}
