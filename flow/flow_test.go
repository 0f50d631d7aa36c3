package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/code"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/internal/testutil"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/tool"
)

// testAgent is a configurable FlowAgent.
type testAgent struct {
	name        string
	description string
	llm         model.Model
	instruction string
	global      string
	tools       map[string]tool.Tool
	subAgents   []FlowAgent
	transfer    bool
	streaming   bool
	outputKey   string
	maxHistory  int
	config      model.GenerateConfig
	executor    code.Executor

	transferredTo string
}

func newTestAgent(name string, llm model.Model) *testAgent {
	return &testAgent{name: name, llm: llm, instruction: "You are " + name + ".", tools: map[string]tool.Tool{}}
}

func (a *testAgent) GetName() string     { return a.name }
func (a *testAgent) Description() string { return a.description }
func (a *testAgent) GetLLM() model.Model { return a.llm }
func (a *testAgent) ResolveInstructions(*core.RunContext) (string, error) {
	return a.instruction, nil
}
func (a *testAgent) ResolveGlobalInstruction(*core.RunContext) (string, error) {
	return a.global, nil
}
func (a *testAgent) GetTools() map[string]tool.Tool       { return a.tools }
func (a *testAgent) GetSubAgents() []FlowAgent            { return a.subAgents }
func (a *testAgent) IsFunctionCallingEnabled() bool       { return true }
func (a *testAgent) IsStreamingEnabled() bool             { return a.streaming }
func (a *testAgent) IsTransferEnabled() bool              { return a.transfer }
func (a *testAgent) GetOutputKey() string                 { return a.outputKey }
func (a *testAgent) MaxHistoryMessages() int              { return a.maxHistory }
func (a *testAgent) GenerateConfig() model.GenerateConfig { return a.config }
func (a *testAgent) CodeExecutor() code.Executor          { return a.executor }
func (a *testAgent) TransferToAgent(_ *core.RunContext, name string) error {
	a.transferredTo = name
	return nil
}

func TestBaseFlow_TextResponse(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueText("Hello there")

	agent := newTestAgent("assistant", llm)
	agent.outputKey = "greeting"
	h := testutil.NewHarness(t, "assistant", "hi")

	require.NoError(t, NewSingleAgentFlow(agent).Run(h.RunCtx))
	h.Close()

	events := h.FinalEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "Hello there", events[0].Text())
	assert.Equal(t, "assistant", events[0].Author)
	assert.True(t, events[0].IsFinalResponse())

	sess := h.Session(t)
	assert.Equal(t, "Hello there", sess.State["greeting"])
	assert.Len(t, sess.Events, 2)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are assistant.", reqs[0].Instructions)
	require.Len(t, reqs[0].Contents, 1)
	assert.Equal(t, "hi", reqs[0].Contents[0].Text())
}

func TestBaseFlow_StreamingEmitsPartials(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueText("abc")

	agent := newTestAgent("assistant", llm)
	agent.streaming = true
	h := testutil.NewHarness(t, "assistant", "hi")

	require.NoError(t, NewSingleAgentFlow(agent).Run(h.RunCtx))
	h.Close()

	events := h.Events()
	require.Len(t, events, 4)
	for _, ev := range events[:3] {
		assert.True(t, ev.IsPartial())
	}
	assert.Equal(t, "abc", events[3].Text())

	assert.Len(t, h.Session(t).Events, 2)
}

func TestBaseFlow_ToolLoop(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.Enqueue(
		model.FunctionCallResponse("", "calculate_sum", map[string]any{"a": 2, "b": 3}),
		model.TextResponse("The sum is 5"),
	)

	agent := newTestAgent("calc", llm)
	agent.tools["calculate_sum"] = tool.NewFunctionTool("calculate_sum", "sum", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	h := testutil.NewHarness(t, "calc", "add 2 and 3")
	require.NoError(t, NewSingleAgentFlow(agent).Run(h.RunCtx))
	h.Close()

	events := h.FinalEvents()
	require.Len(t, events, 3)

	calls := events[0].GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.NotEmpty(t, calls[0].ID)

	responses := events[1].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, calls[0].ID, responses[0].ID)
	assert.Equal(t, 5.0, responses[0].Response)

	assert.Equal(t, "The sum is 5", events[2].Text())

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "calculate_sum", reqs[0].Tools[0].Function.Name)
	// second turn sees the call and its result
	assert.Len(t, reqs[1].Contents, 3)
}

func TestBaseFlow_UnknownToolReportsError(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.Enqueue(model.FunctionCallResponse("c1", "missing", nil), model.TextResponse("sorry"))

	h := testutil.NewHarness(t, "assistant", "hi")
	require.NoError(t, NewSingleAgentFlow(newTestAgent("assistant", llm)).Run(h.RunCtx))
	h.Close()

	events := h.FinalEvents()
	require.Len(t, events, 3)
	responses := events[1].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Error, "TOOL_NOT_FOUND")
}

func TestBaseFlow_EscalationStops(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.Enqueue(model.FunctionCallResponse("c1", tool.ExitLoopName, nil), model.TextResponse("never"))

	agent := newTestAgent("refiner", llm)
	agent.tools[tool.ExitLoopName] = tool.NewExitLoopTool()

	h := testutil.NewHarness(t, "refiner", "refine")
	require.NoError(t, NewSingleAgentFlow(agent).Run(h.RunCtx))
	h.Close()

	events := h.FinalEvents()
	require.Len(t, events, 2)
	assert.True(t, events[1].IsEscalation())
	assert.Len(t, llm.Requests(), 1)
}

func TestBaseFlow_Transfer(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.Enqueue(model.FunctionCallResponse("c1", tool.TransferToAgentName, map[string]any{"agent_name": "billing"}))

	agent := newTestAgent("router", llm)
	agent.transfer = true
	child := newTestAgent("billing", nil)
	child.description = "Handles invoices"
	agent.subAgents = []FlowAgent{child}

	h := testutil.NewHarness(t, "router", "my invoice is wrong")
	fl := NewSelector().SelectFlow(agent)
	require.IsType(t, &MultiAgentFlow{}, fl)
	require.NoError(t, fl.Run(h.RunCtx))
	h.Close()

	assert.Equal(t, "billing", agent.transferredTo)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "- billing: Handles invoices")
	names := []string{}
	for _, td := range reqs[0].Tools {
		names = append(names, td.Function.Name)
	}
	assert.Equal(t, []string{tool.TransferToAgentName}, names)
}

func TestBaseFlow_ModelErrorEmitsErrorEvent(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.SetHandler(func(model.Request) (model.Response, error) {
		return model.Response{}, errors.New("quota exhausted")
	})

	h := testutil.NewHarness(t, "assistant", "hi")
	err := NewSingleAgentFlow(newTestAgent("assistant", llm)).Run(h.RunCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exhausted")
	h.Close()

	events := h.FinalEvents()
	require.Len(t, events, 1)
	require.True(t, events[0].IsError())
	assert.Equal(t, ErrorCodeModel, *events[0].ErrorCode)
}

func TestBaseFlow_ModelCallLimit(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.SetHandler(func(model.Request) (model.Response, error) {
		return model.FunctionCallResponse("", "noop", nil), nil
	})

	agent := newTestAgent("looper", llm)
	agent.tools["noop"] = tool.NewFunctionTool("noop", "does nothing", nil,
		func(*core.ToolContext, map[string]any) (any, error) { return "ok", nil })

	h := testutil.NewHarness(t, "looper", "go", func(o *testutil.HarnessOptions) { o.MaxModelCalls = 3 })
	err := NewSingleAgentFlow(agent).Run(h.RunCtx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModelCallLimit)
	assert.Contains(t, err.Error(), "model call limit reached: 3 calls allowed")
	assert.Len(t, llm.Requests(), 3)
}

func TestBaseFlow_BuiltInCodeExecution(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueText("1050.00")

	agent := newTestAgent("calc", llm)
	agent.executor = code.NewBuiltInExecutor()
	agent.config = model.GenerateConfig{Temperature: model.Temperature(0.1), MaxOutputTokens: 2048}

	h := testutil.NewHarness(t, "calc", "compound interest")
	require.NoError(t, NewSingleAgentFlow(agent).Run(h.RunCtx))

	req := llm.Requests()[0]
	assert.True(t, req.CodeExecution)
	assert.Empty(t, req.Tools)
	assert.Equal(t, 2048, req.Config.MaxOutputTokens)
	require.NotNil(t, req.Config.Temperature)
	assert.InDelta(t, 0.1, *req.Config.Temperature, 1e-9)
}

func TestBaseFlow_LocalCodeExecutionTool(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.Enqueue(
		model.FunctionCallResponse("c1", tool.ExecuteCodeName, map[string]any{"code": "loan_payment(300000; 0.045; 30) | round2"}),
		model.TextResponse("Monthly payment: $1520.06"),
	)

	agent := newTestAgent("calc", llm)
	agent.executor = code.NewJQExecutor()

	h := testutil.NewHarness(t, "calc", "mortgage")
	require.NoError(t, NewSingleAgentFlow(agent).Run(h.RunCtx))
	h.Close()

	events := h.FinalEvents()
	require.Len(t, events, 3)
	result := events[1].GetFunctionResponses()[0].Response.(code.Result)
	assert.Equal(t, "1520.06", result.Output)
	assert.False(t, llm.Requests()[0].CodeExecution)
}

// chattyModel streams on an unbuffered channel without watching ctx.
type chattyModel struct {
	chunks   int
	finished chan struct{}
}

func (m *chattyModel) Info() model.Info { return model.Info{Name: "chatty", Provider: "mock"} }

func (m *chattyModel) Generate(context.Context, model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response)
	errCh := make(chan error, 1)
	go func() {
		defer close(m.finished)
		defer close(errCh)
		defer close(respCh)
		for i := 0; i < m.chunks; i++ {
			respCh <- model.Response{Content: model.TextResponse("chunk").Content, Partial: true}
		}
	}()
	return respCh, errCh
}

type rejectingProcessor struct{}

func (rejectingProcessor) Name() string { return "reject" }

func (rejectingProcessor) ProcessResponse(*core.RunContext, *model.Response, FlowAgent) error {
	return errors.New("rejected")
}

func TestBaseFlow_EarlyReturnReleasesModelStream(t *testing.T) {
	llm := &chattyModel{chunks: 5, finished: make(chan struct{})}

	h := testutil.NewHarness(t, "assistant", "hi")
	f := NewSingleAgentFlow(newTestAgent("assistant", llm))
	f.AddResponseProcessor(rejectingProcessor{})

	err := f.Run(h.RunCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response processor reject failed")

	select {
	case <-llm.finished:
	case <-time.After(time.Second):
		t.Fatal("model stream still blocked after the flow returned")
	}
}
