package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/agent"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/session"
	"github.com/hupe1980/agentcookbook/tool"
)

func newRunner(t *testing.T, a core.Agent, optFns ...func(o *Options)) (*Runner, *core.Session) {
	t.Helper()
	r := New("test_app", a, optFns...)
	sess, err := r.CreateSession(context.Background(), "user-1", "", nil)
	require.NoError(t, err)
	return r, sess
}

func TestRunner_RunSyncPersistsEvents(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueText("Hello Ada!")

	a := agent.NewModelAgent("greeter", llm, func(o *agent.ModelAgentOptions) {
		o.OutputKey = "greeting"
	})

	store := session.NewInMemoryStore()
	r, sess := newRunner(t, a, func(o *Options) { o.SessionStore = store })

	events, err := r.RunSync(context.Background(), "user-1", sess.ID, *core.NewTextContent("user", "Hi, I am Ada"))
	require.NoError(t, err)

	var final []core.Event
	for _, ev := range events {
		if !ev.IsPartial() {
			final = append(final, ev)
		}
	}
	require.Len(t, final, 1)
	assert.Equal(t, "Hello Ada!", final[0].Text())
	assert.Greater(t, len(events), 1, "streaming partials are delivered")

	persisted, err := store.Get(context.Background(), core.SessionKey{AppName: "test_app", UserID: "user-1", SessionID: sess.ID})
	require.NoError(t, err)
	require.Len(t, persisted.Events, 2)
	assert.Equal(t, "user", persisted.Events[0].Author)
	assert.Equal(t, "Hi, I am Ada", persisted.Events[0].Text())
	assert.Equal(t, "Hello Ada!", persisted.State["greeting"])
	assert.Equal(t, 0, r.Active())
}

func TestRunner_UnknownSession(t *testing.T) {
	r := New("test_app", agent.NewModelAgent("a", model.NewMockModel("m", "mock")))

	_, _, _, err := r.Run(context.Background(), "user-1", "missing", *core.NewTextContent("user", "hi"))
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestRunner_AgentErrorOnErrorChannel(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.SetHandler(func(model.Request) (model.Response, error) {
		return model.Response{}, errors.New("quota exceeded")
	})

	var (
		mu       sync.Mutex
		observed error
	)
	r, sess := newRunner(t, agent.NewModelAgent("a", llm), func(o *Options) {
		o.Callbacks = []Callback{NewFunctionCallback(CallbackOnError, func(_ context.Context, cb *CallbackContext) error {
			mu.Lock()
			defer mu.Unlock()
			observed = cb.Err
			return nil
		})}
	})

	events, err := r.RunSync(context.Background(), "user-1", sess.ID, *core.NewTextContent("user", "hi"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "quota exceeded")

	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].IsError())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, err, observed)
}

func TestRunner_StateValidationRejects(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueText("secret")

	a := agent.NewModelAgent("a", llm, func(o *agent.ModelAgentOptions) {
		o.OutputKey = "password"
		o.EnableStreaming = false
	})

	r, sess := newRunner(t, a)
	r.RegisterCallback(NewStateValidationCallback(func(delta map[string]any) error {
		if _, ok := delta["password"]; ok {
			return errors.New("password must not be stored")
		}
		return nil
	}))

	_, err := r.RunSync(context.Background(), "user-1", sess.ID, *core.NewTextContent("user", "hi"))
	assert.ErrorContains(t, err, "state change rejected: password must not be stored")
}

func TestRunner_CallbackOrder(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueText("ok")

	var (
		mu    sync.Mutex
		order []CallbackType
	)
	record := func(_ context.Context, cb *CallbackContext) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, cb.Type)
		return nil
	}

	a := agent.NewModelAgent("a", llm, func(o *agent.ModelAgentOptions) { o.EnableStreaming = false })
	r, sess := newRunner(t, a, func(o *Options) {
		o.Callbacks = []Callback{
			NewFunctionCallback(CallbackBeforeAgent, record),
			NewFunctionCallback(CallbackOnEvent, record),
			NewFunctionCallback(CallbackAfterAgent, record),
		}
	})

	_, err := r.RunSync(context.Background(), "user-1", sess.ID, *core.NewTextContent("user", "hi"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []CallbackType{CallbackBeforeAgent, CallbackOnEvent, CallbackAfterAgent}, order)
}

func TestRunner_Cancel(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	started := make(chan struct{})
	llm.SetHandler(func(model.Request) (model.Response, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return model.TextResponse("too late"), nil
	})

	r, sess := newRunner(t, agent.NewModelAgent("slow", llm))

	runID, events, errs, err := r.Run(context.Background(), "user-1", sess.ID, *core.NewTextContent("user", "hi"))
	require.NoError(t, err)

	<-started
	require.NoError(t, r.Cancel(runID))

	_, runErr := Collect(events, errs)
	assert.ErrorIs(t, runErr, context.Canceled)

	assert.ErrorIs(t, r.Cancel(runID), ErrRunNotFound)
}

func TestRunner_ToolLoopAndState(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.Enqueue(
		model.FunctionCallResponse("call_1", "set_state", map[string]any{"key": "color", "value": "blue"}),
		model.TextResponse("Saved your favourite color."),
	)

	a := agent.NewModelAgent("stateful", llm, func(o *agent.ModelAgentOptions) { o.EnableStreaming = false })
	a.RegisterTools(tool.NewStateTools()...)

	store := session.NewInMemoryStore()
	r, sess := newRunner(t, a, func(o *Options) { o.SessionStore = store })

	events, err := r.RunSync(context.Background(), "user-1", sess.ID, *core.NewTextContent("user", "My favourite color is blue"))
	require.NoError(t, err)
	require.Len(t, events, 3)

	persisted, err := store.Get(context.Background(), core.SessionKey{AppName: "test_app", UserID: "user-1", SessionID: sess.ID})
	require.NoError(t, err)
	assert.Equal(t, "blue", persisted.State["color"])
	assert.Len(t, persisted.Events, 4)
}

func TestRunner_ConcurrentRuns(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	a := agent.NewModelAgent("echo", llm, func(o *agent.ModelAgentOptions) { o.EnableStreaming = false })
	r := New("test_app", a, func(o *Options) { o.MaxConcurrentInvocations = 2 })

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		sess, err := r.CreateSession(context.Background(), "user-1", "", nil)
		require.NoError(t, err)

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			events, err := r.RunSync(context.Background(), "user-1", id, *core.NewTextContent("user", "ping"))
			assert.NoError(t, err)
			if assert.Len(t, events, 1) {
				assert.Equal(t, "Mock response to: ping", events[0].Text())
			}
		}(sess.ID)
	}
	wg.Wait()
}

func TestRunner_RunLive(t *testing.T) {
	llm := model.NewMockModel("live", "mock")
	llm.AddResponse("hello", "Hi there")

	r, sess := newRunner(t, agent.NewModelAgent("voice", llm))
	queue := core.NewLiveRequestQueue(4)

	_, events, errs, err := r.RunLive(context.Background(), "user-1", sess.ID, queue, model.LiveConfig{})
	require.NoError(t, err)

	require.NoError(t, queue.SendContent(*core.NewTextContent("user", "hello")))

	var texts []string
	for ev := range events {
		if ev.TurnComplete != nil && *ev.TurnComplete {
			queue.Close()
			continue
		}
		if !ev.IsPartial() {
			texts = append(texts, ev.Text())
		}
	}
	require.NoError(t, <-errs)
	assert.Equal(t, []string{"hello", "Hi there"}, texts)
}

func TestRunner_RunLiveRequiresLiveAgent(t *testing.T) {
	seq := agent.NewSequentialAgent("pipeline")
	r, sess := newRunner(t, seq)

	_, _, _, err := r.RunLive(context.Background(), "user-1", sess.ID, core.NewLiveRequestQueue(1), model.LiveConfig{})
	assert.ErrorContains(t, err, "does not support live sessions")
}

// blockingLiveModel hands out connections whose Receive ignores ctx and only
// returns once the connection is closed.
type blockingLiveModel struct {
	*model.MockModel
	connected chan struct{}
}

func (m *blockingLiveModel) ConnectLive(context.Context, model.LiveConfig) (model.LiveConnection, error) {
	close(m.connected)
	return &blockingLiveConnection{closed: make(chan struct{})}, nil
}

type blockingLiveConnection struct {
	once   sync.Once
	closed chan struct{}
}

func (c *blockingLiveConnection) Send(context.Context, core.LiveRequest) error { return nil }

func (c *blockingLiveConnection) SendToolResponses(context.Context, []core.FunctionResponse) error {
	return nil
}

func (c *blockingLiveConnection) Receive(context.Context) (model.LiveResponse, error) {
	<-c.closed
	return model.LiveResponse{}, errors.New("use of closed connection")
}

func (c *blockingLiveConnection) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestRunner_RunLiveCancelClosesConnection(t *testing.T) {
	llm := &blockingLiveModel{MockModel: model.NewMockModel("live", "mock"), connected: make(chan struct{})}
	r, sess := newRunner(t, agent.NewModelAgent("voice", llm))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, events, errs, err := r.RunLive(ctx, "user-1", sess.ID, core.NewLiveRequestQueue(1), model.LiveConfig{})
	require.NoError(t, err)

	<-llm.connected
	cancel()

	done := make(chan error, 1)
	go func() {
		_, runErr := Collect(events, errs)
		done <- runErr
	}()

	select {
	case runErr := <-done:
		assert.ErrorIs(t, runErr, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatalf("live run still blocked after cancellation (active runs: %d)", r.Active())
	}
	assert.Zero(t, r.Active())
}
