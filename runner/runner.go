package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentcookbook/artifact"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/memory"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/session"
)

// ErrRunNotFound is returned by Cancel for unknown or finished runs.
var ErrRunNotFound = errors.New("run not found")

// LiveAgent is an agent that can drive a bidirectional live session.
type LiveAgent interface {
	core.Agent
	RunLive(runCtx *core.RunContext, queue *core.LiveRequestQueue, cfg model.LiveConfig) error
}

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// MaxConcurrentInvocations bounds the runs executing at once. Run blocks
	// while the limit is reached.
	MaxConcurrentInvocations int
	// EventBufferSize sets the buffering of the returned event channel.
	EventBufferSize int
	// MaxModelCalls limits the model calls of a single run. 0 disables the limit.
	MaxModelCalls int

	SessionStore  core.SessionStore
	ArtifactStore core.ArtifactStore
	MemoryStore   core.MemoryStore
	Logger        logging.Logger
	Callbacks     []Callback
}

// Runner executes one root agent for the sessions of one app. It persists
// every non-partial event before the emitting agent continues, so agents
// always observe the state written by earlier events. Public methods are safe
// for concurrent use.
type Runner struct {
	appName string
	agent   core.Agent

	eventBufferSize int
	maxModelCalls   int

	sessionStore  core.SessionStore
	artifactStore core.ArtifactStore
	memoryStore   core.MemoryStore
	logger        logging.Logger
	callbacks     *CallbackManager

	sem chan struct{}

	mu         sync.Mutex
	activeRuns map[string]context.CancelFunc
}

// New constructs a Runner for appName with in-memory stores unless overridden.
func New(appName string, agent core.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentInvocations: 10,
		EventBufferSize:          100,
		MaxModelCalls:            100,
		SessionStore:             session.NewInMemoryStore(),
		ArtifactStore:            artifact.NewInMemoryStore(),
		MemoryStore:              memory.NewInMemoryStore(),
		Logger:                   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrentInvocations <= 0 {
		opts.MaxConcurrentInvocations = 1
	}
	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}

	callbacks := NewCallbackManager()
	callbacks.Register(opts.Callbacks...)

	return &Runner{
		appName:         appName,
		agent:           agent,
		eventBufferSize: opts.EventBufferSize,
		maxModelCalls:   opts.MaxModelCalls,
		sessionStore:    opts.SessionStore,
		artifactStore:   opts.ArtifactStore,
		memoryStore:     opts.MemoryStore,
		logger:          opts.Logger,
		callbacks:       callbacks,
		sem:             make(chan struct{}, opts.MaxConcurrentInvocations),
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// AppName returns the app this runner serves.
func (r *Runner) AppName() string { return r.appName }

// Agent returns the root agent.
func (r *Runner) Agent() core.Agent { return r.agent }

// SessionStore returns the store sessions are persisted in.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// RegisterCallback adds lifecycle callbacks.
func (r *Runner) RegisterCallback(callbacks ...Callback) { r.callbacks.Register(callbacks...) }

// CreateSession creates a session of this app. An empty sessionID generates one.
func (r *Runner) CreateSession(ctx context.Context, userID, sessionID string, state map[string]any) (*core.Session, error) {
	return r.sessionStore.Create(ctx, core.SessionKey{AppName: r.appName, UserID: userID, SessionID: sessionID}, state)
}

// Run starts an asynchronous invocation of the root agent. The user content
// is persisted before the agent starts. The events channel is closed when
// the run ends; the error channel receives at most one terminal error.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, userContent core.Content) (string, <-chan core.Event, <-chan error, error) {
	if userContent.Role == "" {
		userContent.Role = "user"
	}
	return r.start(ctx, userID, sessionID, &userContent, r.runAgent)
}

// RunSync runs the root agent and collects every event it emitted.
func (r *Runner) RunSync(ctx context.Context, userID, sessionID string, userContent core.Content) ([]core.Event, error) {
	_, events, errs, err := r.Run(ctx, userID, sessionID, userContent)
	if err != nil {
		return nil, err
	}
	return Collect(events, errs)
}

// RunLive starts a live session of the root agent fed by queue. The root
// agent must implement LiveAgent.
func (r *Runner) RunLive(ctx context.Context, userID, sessionID string, queue *core.LiveRequestQueue, cfg model.LiveConfig) (string, <-chan core.Event, <-chan error, error) {
	live, ok := r.agent.(LiveAgent)
	if !ok {
		return "", nil, nil, fmt.Errorf("agent %s does not support live sessions", r.agent.Name())
	}
	return r.start(ctx, userID, sessionID, nil, func(runCtx *core.RunContext) error {
		return live.RunLive(runCtx, queue, cfg)
	})
}

// Cancel stops an in-flight run.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	cancel()
	return nil
}

// Active returns the number of runs in progress.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activeRuns)
}

// Collect drains a run's channels, returning the events and the terminal error.
func Collect(events <-chan core.Event, errs <-chan error) ([]core.Event, error) {
	var out []core.Event
	for ev := range events {
		out = append(out, ev)
	}
	if err, ok := <-errs; ok && err != nil {
		return out, err
	}
	return out, nil
}

func (r *Runner) start(
	ctx context.Context,
	userID, sessionID string,
	userContent *core.Content,
	runFn func(*core.RunContext) error,
) (string, <-chan core.Event, <-chan error, error) {
	key := core.SessionKey{AppName: r.appName, UserID: userID, SessionID: sessionID}

	sess, err := r.sessionStore.Get(ctx, key)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return "", nil, nil, ctx.Err()
	}

	runID := core.NewID()

	if userContent != nil {
		userEvent := core.NewUserContentEvent(runID, userContent)
		if err := r.sessionStore.AppendEvent(ctx, key, userEvent); err != nil {
			<-r.sem
			return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
		}
		sess.AddEvent(userEvent)
	}

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event)
	resumeCh := make(chan struct{}, 1)

	runBase, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	cfg := core.RunContextConfig{
		Key:           key,
		RunID:         runID,
		Agent:         core.AgentInfo{Name: r.agent.Name(), Type: "root"},
		MaxModelCalls: r.maxModelCalls,
		Emit:          agentEmit,
		Resume:        resumeCh,
		Session:       sess,
		SessionStore:  r.sessionStore,
		ArtifactStore: r.artifactStore,
		MemoryStore:   r.memoryStore,
		Logger:        r.logger,
	}
	if userContent != nil {
		cfg.UserContent = *userContent
	}
	runCtx := core.NewRunContext(runBase, cfg)

	r.logger.Info("runner.run.start", "app", r.appName, "user", userID, "session", sessionID, "run", runID, "agent", r.agent.Name())

	go func() {
		err := r.execute(runCtx, key, runFn, resumeCh, eventsCh, agentEmit)

		r.mu.Lock()
		delete(r.activeRuns, runID)
		r.mu.Unlock()
		cancel()
		<-r.sem

		close(eventsCh)
		if err != nil {
			r.logger.Error("runner.run.error", "app", r.appName, "run", runID, "error", err.Error())
			_ = r.callbacks.Execute(context.WithoutCancel(ctx), &CallbackContext{
				AppName: r.appName, UserID: userID, RunID: runID, Agent: r.agent.Name(), Type: CallbackOnError, Err: err,
			})
			errorsCh <- err
		} else {
			r.logger.Info("runner.run.complete", "app", r.appName, "run", runID)
		}
		close(errorsCh)
	}()

	return runID, eventsCh, errorsCh, nil
}

// execute runs runFn while processing its events and returns the terminal
// error of the run.
func (r *Runner) execute(
	runCtx *core.RunContext,
	key core.SessionKey,
	runFn func(*core.RunContext) error,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
	agentEmit chan core.Event,
) error {
	agentDone := make(chan error, 1)
	go func() {
		defer close(agentEmit)
		agentDone <- runFn(runCtx)
	}()

	if err := r.processEvents(runCtx, key, agentEmit, resumeCh, eventsCh); err != nil {
		// unblock the agent, then wait for it
		r.cancelRun(runCtx.RunID)
		for range agentEmit {
		}
		<-agentDone
		return err
	}

	if err := <-agentDone; err != nil {
		return fmt.Errorf("agent execution failed: %w", err)
	}
	return nil
}

func (r *Runner) cancelRun(runID string) {
	r.mu.Lock()
	cancel := r.activeRuns[runID]
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runner) runAgent(runCtx *core.RunContext) error {
	cbCtx := &CallbackContext{AppName: r.appName, UserID: runCtx.UserID, RunID: runCtx.RunID, Agent: r.agent.Name()}

	cbCtx.Type = CallbackBeforeAgent
	if err := r.callbacks.Execute(runCtx.Context, cbCtx); err != nil {
		return fmt.Errorf("before agent callback: %w", err)
	}

	if err := r.agent.Start(runCtx); err != nil {
		return err
	}
	defer func() {
		if err := r.agent.Stop(runCtx); err != nil {
			r.logger.Warn("runner.agent.stop_failed", "agent", r.agent.Name(), "error", err.Error())
		}
	}()

	runErr := r.agent.Run(runCtx)

	cbCtx.Type = CallbackAfterAgent
	cbCtx.Err = runErr
	if err := r.callbacks.Execute(context.WithoutCancel(runCtx.Context), cbCtx); err != nil && runErr == nil {
		return fmt.Errorf("after agent callback: %w", err)
	}

	return runErr
}

// processEvents persists non-partial events, releases the emitting agent and
// delivers every event to the caller, in emission order.
func (r *Runner) processEvents(
	runCtx *core.RunContext,
	key core.SessionKey,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
) error {
	for ev := range agentEmit {
		cbCtx := &CallbackContext{
			AppName: r.appName,
			UserID:  key.UserID,
			RunID:   runCtx.RunID,
			Agent:   ev.Author,
			Event:   &ev,
		}

		if !ev.IsPartial() {
			if len(ev.Actions.StateDelta) > 0 {
				cbCtx.Type = CallbackOnStateChange
				if err := r.callbacks.Execute(runCtx.Context, cbCtx); err != nil {
					return fmt.Errorf("state change rejected: %w", err)
				}
			}

			if err := r.sessionStore.AppendEvent(runCtx.Context, key, ev); err != nil {
				return fmt.Errorf("failed to append event to session: %w", err)
			}
		}

		cbCtx.Type = CallbackOnEvent
		if err := r.callbacks.Execute(runCtx.Context, cbCtx); err != nil {
			return fmt.Errorf("event callback: %w", err)
		}

		select {
		case <-runCtx.Done():
			return runCtx.Err()
		case eventsCh <- ev:
		}

		if !ev.IsPartial() {
			select {
			case resumeCh <- struct{}{}:
			default:
			}
		}
	}

	return nil
}
