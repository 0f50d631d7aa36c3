package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/agent"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/runner"
	"github.com/hupe1980/agentcookbook/session"
	"github.com/hupe1980/agentcookbook/tool"
)

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodPost, "/invoke", http.StatusOK, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="POST",path="/invoke",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetrics_Observe(t *testing.T) {
	m := New()

	m.ObserveAgentRun("blog", nil, time.Second)
	m.ObserveAgentRun("blog", errors.New("boom"), time.Second)
	m.ObserveTool("exit_loop", false)
	m.ObserveSessionOp("redis", "get", core.ErrSessionNotFound, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentRunsTotal.WithLabelValues("blog", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentRunsTotal.WithLabelValues("blog", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("exit_loop", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionOperationsTotal.WithLabelValues("redis", "get", StatusError)))
}

func TestMetrics_RunnerCallbacks(t *testing.T) {
	m := New()

	llm := model.NewMockModel("mock", "mock")
	llm.Enqueue(
		model.FunctionCallResponse("call_1", "set_state", map[string]any{"key": "color", "value": "blue"}),
		model.FunctionCallResponse("call_2", "set_state", map[string]any{"key": "", "value": "x"}),
		model.TextResponse("done"),
	)
	a := agent.NewModelAgent("stateful", llm, func(o *agent.ModelAgentOptions) { o.EnableStreaming = false })
	a.RegisterTools(tool.NewStateTools()...)

	store := m.InstrumentStore(session.NewInMemoryStore(), "memory")
	r := runner.New("metrics_app", a, func(o *runner.Options) {
		o.SessionStore = store
		o.Callbacks = m.Callbacks()
	})

	sess, err := r.CreateSession(context.Background(), "u", "", nil)
	require.NoError(t, err)

	_, err = r.RunSync(context.Background(), "u", sess.ID, *core.NewTextContent("user", "remember blue"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentRunsTotal.WithLabelValues("metrics_app", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("set_state", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("set_state", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionOperationsTotal.WithLabelValues("memory", "create", StatusSuccess)))
	assert.Positive(t, testutil.ToFloat64(m.SessionOperationsTotal.WithLabelValues("memory", "append_event", StatusSuccess)))
}
