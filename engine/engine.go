package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/agentcookbook/artifact"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/memory"
	"github.com/hupe1980/agentcookbook/runner"
	"github.com/hupe1980/agentcookbook/session"
)

// ErrAppNotFound is returned for operations on unregistered apps.
var ErrAppNotFound = errors.New("app not found")

// Config defines tuning parameters applied to every registered app.
type Config struct {
	// MaxConcurrentInvocations limits the runs of one app executing at once.
	MaxConcurrentInvocations int

	// EventBufferSize sets the buffering of event channels.
	EventBufferSize int

	// MaxModelCalls limits the model calls of one run. 0 disables the limit.
	MaxModelCalls int
}

// DefaultConfig holds the defaults used by New.
var DefaultConfig = Config{
	MaxConcurrentInvocations: 10,
	EventBufferSize:          100,
	MaxModelCalls:            100,
}

// Options configures an Engine.
type Options struct {
	Config        Config
	SessionStore  core.SessionStore
	ArtifactStore core.ArtifactStore
	MemoryStore   core.MemoryStore
	Logger        logging.Logger
	// Callbacks are registered on every app's runner.
	Callbacks []runner.Callback
}

// Engine hosts several apps, one root agent each, on shared stores. Session
// keys carry the app name so the apps never see each other's sessions.
type Engine struct {
	sessionStore  core.SessionStore
	artifactStore core.ArtifactStore
	memoryStore   core.MemoryStore
	logger        logging.Logger
	config        Config
	callbacks     []runner.Callback

	mu      sync.RWMutex
	runners map[string]*runner.Runner

	invocationsMu sync.Mutex
	invocations   map[string]string // invocation id -> app
}

// New creates an Engine with in-memory stores unless overridden.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:        DefaultConfig,
		SessionStore:  session.NewInMemoryStore(),
		ArtifactStore: artifact.NewInMemoryStore(),
		MemoryStore:   memory.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		sessionStore:  opts.SessionStore,
		artifactStore: opts.ArtifactStore,
		memoryStore:   opts.MemoryStore,
		logger:        opts.Logger,
		config:        opts.Config,
		callbacks:     opts.Callbacks,
		runners:       make(map[string]*runner.Runner),
		invocations:   make(map[string]string),
	}
}

// Register makes root available as appName, replacing a previous
// registration of the same name.
func (e *Engine) Register(appName string, root core.Agent) *runner.Runner {
	r := runner.New(appName, root, func(o *runner.Options) {
		o.MaxConcurrentInvocations = e.config.MaxConcurrentInvocations
		o.EventBufferSize = e.config.EventBufferSize
		o.MaxModelCalls = e.config.MaxModelCalls
		o.SessionStore = e.sessionStore
		o.ArtifactStore = e.artifactStore
		o.MemoryStore = e.memoryStore
		o.Logger = e.logger
		o.Callbacks = e.callbacks
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.runners[appName] = r

	e.logger.Info("engine.app.registered", "app", appName, "agent", root.Name())

	return r
}

// Runner returns the runner of appName.
func (e *Engine) Runner(appName string) (*runner.Runner, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runners[appName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, appName)
	}
	return r, nil
}

// Apps returns the registered app names in sorted order.
func (e *Engine) Apps() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.runners))
}

// SessionStore returns the store shared by all apps.
func (e *Engine) SessionStore() core.SessionStore { return e.sessionStore }

// CreateSession creates a session for userID in appName.
func (e *Engine) CreateSession(ctx context.Context, appName, userID, sessionID string, state map[string]any) (*core.Session, error) {
	r, err := e.Runner(appName)
	if err != nil {
		return nil, err
	}
	return r.CreateSession(ctx, userID, sessionID, state)
}

// Invoke starts an asynchronous run of appName. See runner.Runner.Run.
func (e *Engine) Invoke(ctx context.Context, appName, userID, sessionID string, content core.Content) (string, <-chan core.Event, <-chan error, error) {
	r, err := e.Runner(appName)
	if err != nil {
		return "", nil, nil, err
	}

	id, events, errs, err := r.Run(ctx, userID, sessionID, content)
	if err != nil {
		return "", nil, nil, err
	}

	e.invocationsMu.Lock()
	e.invocations[id] = appName
	e.invocationsMu.Unlock()

	out := make(chan core.Event, cap(events))
	go func() {
		defer close(out)
		for ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}
		e.invocationsMu.Lock()
		delete(e.invocations, id)
		e.invocationsMu.Unlock()
	}()

	return id, out, errs, nil
}

// InvokeSync runs appName to completion and returns its events.
func (e *Engine) InvokeSync(ctx context.Context, appName, userID, sessionID string, content core.Content) (string, []core.Event, error) {
	id, events, errs, err := e.Invoke(ctx, appName, userID, sessionID, content)
	if err != nil {
		return "", nil, err
	}
	collected, err := runner.Collect(events, errs)
	return id, collected, err
}

// StopInvocation cancels an in-flight invocation of any app.
func (e *Engine) StopInvocation(invocationID string) error {
	e.invocationsMu.Lock()
	appName, ok := e.invocations[invocationID]
	e.invocationsMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", runner.ErrRunNotFound, invocationID)
	}

	r, err := e.Runner(appName)
	if err != nil {
		return err
	}
	return r.Cancel(invocationID)
}
