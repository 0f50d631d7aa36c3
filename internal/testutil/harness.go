package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/artifact"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/memory"
	"github.com/hupe1980/agentcookbook/session"
)

// Harness plays the runner's part for agent and flow tests: it persists
// every non-partial event to an in-memory store and then releases the
// emitter.
type Harness struct {
	Store  *session.InMemoryStore
	Key    core.SessionKey
	RunCtx *core.RunContext

	emit   chan core.Event
	resume chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	events []core.Event
	failed []error
}

// HarnessOptions configures NewHarness.
type HarnessOptions struct {
	State         map[string]any
	MaxModelCalls int
	Context       context.Context
}

// NewHarness creates a session holding userText and a RunContext for agent.
// The harness is closed when the test ends.
func NewHarness(t testing.TB, agentName, userText string, optFns ...func(o *HarnessOptions)) *Harness {
	t.Helper()

	opts := HarnessOptions{Context: context.Background()}
	for _, fn := range optFns {
		fn(&opts)
	}

	store := session.NewInMemoryStore()
	key := core.SessionKey{AppName: "test_app", UserID: "test_user", SessionID: "test_session"}
	_, err := store.Create(opts.Context, key, opts.State)
	require.NoError(t, err)

	userContent := core.NewTextContent("user", userText)
	require.NoError(t, store.AppendEvent(opts.Context, key, core.NewUserContentEvent("run-1", userContent)))

	sess, err := store.Get(opts.Context, key)
	require.NoError(t, err)

	h := &Harness{
		Store:  store,
		Key:    key,
		emit:   make(chan core.Event, 64),
		resume: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.RunCtx = core.NewRunContext(opts.Context, core.RunContextConfig{
		Key:           key,
		RunID:         "run-1",
		Agent:         core.AgentInfo{Name: agentName, Type: "test"},
		UserContent:   *userContent,
		MaxModelCalls: opts.MaxModelCalls,
		Emit:          h.emit,
		Resume:        h.resume,
		Session:       sess,
		SessionStore:  store,
		ArtifactStore: artifact.NewInMemoryStore(),
		MemoryStore:   memory.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	})

	go h.loop(opts.Context)
	t.Cleanup(h.Close)

	return h
}

func (h *Harness) loop(ctx context.Context) {
	defer close(h.done)
	for ev := range h.emit {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()

		if ev.IsPartial() {
			continue
		}
		if err := h.Store.AppendEvent(ctx, h.Key, ev); err != nil {
			h.mu.Lock()
			h.failed = append(h.failed, err)
			h.mu.Unlock()
		}
		select {
		case h.resume <- struct{}{}:
		case <-ctx.Done():
		}
	}
}

// Close stops the persistence loop. It is safe to call more than once.
func (h *Harness) Close() {
	select {
	case <-h.done:
		return
	default:
	}
	h.mu.Lock()
	if h.emit != nil {
		close(h.emit)
		h.emit = nil
	}
	h.mu.Unlock()
	<-h.done
}

// Events returns every event emitted so far, partial ones included.
func (h *Harness) Events() []core.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]core.Event, len(h.events))
	copy(out, h.events)
	return out
}

// FinalEvents returns the emitted non-partial events.
func (h *Harness) FinalEvents() []core.Event {
	var out []core.Event
	for _, ev := range h.Events() {
		if !ev.IsPartial() {
			out = append(out, ev)
		}
	}
	return out
}

// Session returns the persisted session.
func (h *Harness) Session(t testing.TB) *core.Session {
	t.Helper()
	sess, err := h.Store.Get(context.Background(), h.Key)
	require.NoError(t, err)
	return sess
}

// Errors returns persistence failures.
func (h *Harness) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.failed...)
}
