package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/internal/testutil"
	"github.com/hupe1980/agentcookbook/internal/util"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/tool"
)

func TestProcessorNames(t *testing.T) {
	assert.Equal(t, "instructions", NewInstructionsProcessor().Name())
	assert.Equal(t, "global_instruction", NewGlobalInstructionProcessor().Name())
	assert.Equal(t, "contents", NewContentsProcessor().Name())
	assert.Equal(t, "transfer_tool_injector", NewTransferToolInjector().Name())
	assert.Equal(t, "output_key", NewOutputKeyProcessor().Name())
}

func TestInstructionsProcessor_StateInjection(t *testing.T) {
	h := testutil.NewHarness(t, "writer", "write", func(o *testutil.HarnessOptions) {
		o.State = map[string]any{"research_findings": "Go is fast"}
	})
	h.RunCtx.SetState("temp:tone", "casual")

	agent := newTestAgent("writer", nil)
	agent.instruction = "Use these findings: {research_findings}. Tone: {temp:tone}. Extra: {notes?}. JSON stays {\"a\": 1}."
	agent.global = "Be concise."

	req := &model.Request{}
	require.NoError(t, NewInstructionsProcessor().ProcessRequest(h.RunCtx, req, agent))
	require.NoError(t, NewGlobalInstructionProcessor().ProcessRequest(h.RunCtx, req, agent))

	assert.Equal(t, "Be concise.\n\nUse these findings: Go is fast. Tone: casual. Extra: . JSON stays {\"a\": 1}.", req.Instructions)
}

func TestInstructionsProcessor_MissingKey(t *testing.T) {
	h := testutil.NewHarness(t, "editor", "edit")

	agent := newTestAgent("editor", nil)
	agent.instruction = "Review {draft_post}"

	err := NewInstructionsProcessor().ProcessRequest(h.RunCtx, &model.Request{}, agent)
	var missing *util.MissingKeyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "draft_post", missing.Key)
}

func TestContentsProcessor_BranchAndAuthors(t *testing.T) {
	h := testutil.NewHarness(t, "hotel_finder", "plan a trip")

	ctx := h.RunCtx.Context
	flight := testutil.NewEventBuilder().Author("flight_finder").Branch("TravelPlanningSystem.ParallelSearch.flight_finder").AssistantText("Flight LH123").Build()
	hotel := testutil.NewEventBuilder().Author("hotel_finder").Branch("TravelPlanningSystem.ParallelSearch.hotel_finder").AssistantText("Hotel Adlon").Build()
	planner := testutil.NewEventBuilder().Author("planner").Branch("TravelPlanningSystem").AssistantText("Searching").Build()
	for _, ev := range []core.Event{planner, flight, hotel} {
		require.NoError(t, h.Store.AppendEvent(ctx, h.Key, ev))
	}
	require.NoError(t, h.RunCtx.RefreshSession())
	h.RunCtx.Branch = "TravelPlanningSystem.ParallelSearch.hotel_finder"

	req := &model.Request{}
	require.NoError(t, NewContentsProcessor().ProcessRequest(h.RunCtx, req, newTestAgent("hotel_finder", nil)))

	require.Len(t, req.Contents, 3)
	assert.Equal(t, "plan a trip", req.Contents[0].Text())
	assert.Equal(t, "user", req.Contents[1].Role)
	assert.Equal(t, "For context:[planner] said: Searching", req.Contents[1].Text())
	assert.Equal(t, "assistant", req.Contents[2].Role)
	assert.Equal(t, "Hotel Adlon", req.Contents[2].Text())
}

func TestContentsProcessor_HistoryLimit(t *testing.T) {
	h := testutil.NewHarness(t, "assistant", "first")
	ctx := h.RunCtx.Context

	events := []core.Event{
		testutil.NewEventBuilder().Author("assistant").FunctionCall("lookup", "{}").Build(),
		testutil.NewEventBuilder().Author("assistant").FunctionResponse("1", "lookup", "ok", nil).Build(),
		testutil.NewEventBuilder().Author("assistant").AssistantText("answer").Build(),
		testutil.NewEventBuilder().Author("user").UserText("second").Build(),
	}
	events[1].Content.Role = "tool"
	for _, ev := range events {
		require.NoError(t, h.Store.AppendEvent(ctx, h.Key, ev))
	}
	require.NoError(t, h.RunCtx.RefreshSession())

	agent := newTestAgent("assistant", nil)
	agent.maxHistory = 3

	req := &model.Request{}
	require.NoError(t, NewContentsProcessor().ProcessRequest(h.RunCtx, req, agent))

	require.Len(t, req.Contents, 2)
	assert.Equal(t, "answer", req.Contents[0].Text())
	assert.Equal(t, "second", req.Contents[1].Text())
}

func TestContentsProcessor_FallsBackToUserContent(t *testing.T) {
	rc := newTERunContext()
	rc.UserContent = *core.NewTextContent("user", "hello")

	req := &model.Request{}
	require.NoError(t, NewContentsProcessor().ProcessRequest(rc, req, newTestAgent("a", nil)))
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "hello", req.Contents[0].Text())
}

func TestTransferToolInjector_Injection(t *testing.T) {
	rc := newTERunContext()
	agent := newTestAgent("root", nil)
	agent.transfer = true
	child := newTestAgent("child", nil)
	child.description = "Handles child topics"
	agent.subAgents = []FlowAgent{child}

	inj := NewTransferToolInjector()
	req := &model.Request{}
	require.NoError(t, inj.ProcessRequest(rc, req, agent))
	require.NoError(t, inj.ProcessRequest(rc, req, agent))

	count := 0
	for _, td := range req.Tools {
		if td.Function.Name == tool.TransferToAgentName {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Contains(t, req.Instructions, "- child: Handles child topics")

	plain := newTestAgent("solo", nil)
	req = &model.Request{}
	require.NoError(t, inj.ProcessRequest(rc, req, plain))
	assert.Empty(t, req.Tools)
}

func TestOutputKeyProcessor(t *testing.T) {
	rc := newTERunContext()
	agent := newTestAgent("writer", nil)
	agent.outputKey = "draft_post"
	p := NewOutputKeyProcessor()

	partial := model.TextResponse("Dra")
	partial.Partial = true
	require.NoError(t, p.ProcessResponse(rc, &partial, agent))
	assert.NotContains(t, rc.StateDelta, "draft_post")

	call := model.FunctionCallResponse("1", "lookup", nil)
	require.NoError(t, p.ProcessResponse(rc, &call, agent))
	assert.NotContains(t, rc.StateDelta, "draft_post")

	final := model.TextResponse("Draft text")
	require.NoError(t, p.ProcessResponse(rc, &final, agent))
	assert.Equal(t, "Draft text", rc.StateDelta["draft_post"])
}
