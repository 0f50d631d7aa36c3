package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/tool"
)

type teMockTool struct {
	name        string
	delay       time.Duration
	result      any
	err         error
	panicMsg    any
	actionState map[string]any
	transferTo  string
}

func (mt *teMockTool) Name() string               { return mt.name }
func (mt *teMockTool) Description() string        { return "mock tool" }
func (mt *teMockTool) Parameters() map[string]any { return map[string]any{} }
func (mt *teMockTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	if mt.delay > 0 {
		select {
		case <-time.After(mt.delay):
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	}
	if mt.panicMsg != nil {
		panic(mt.panicMsg)
	}
	for k, v := range mt.actionState {
		tc.SetState(k, v)
	}
	if mt.transferTo != "" {
		tc.TransferToAgent(mt.transferTo)
	}
	return mt.result, mt.err
}

func newTERunContext() *core.RunContext {
	return core.NewRunContext(context.Background(), core.RunContextConfig{
		Key:    core.SessionKey{AppName: "app", UserID: "u", SessionID: "sess"},
		RunID:  "run",
		Agent:  core.AgentInfo{Name: "agent", Type: "test"},
		Logger: logging.NoOpLogger{},
	})
}

func collect(events *[]core.Event) func(core.Event) error {
	return func(ev core.Event) error {
		*events = append(*events, ev)
		return nil
	}
}

func responseNames(events []core.Event) []string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.GetFunctionResponses()[0].Name)
	}
	return names
}

func TestFunctionExecutor_Single(t *testing.T) {
	tools := map[string]tool.Tool{"one": &teMockTool{name: "one", result: 42}}
	te := NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: 4, PreserveOrder: true})

	var events []core.Event
	te.Execute(newTERunContext(), newTestAgent("A", nil), tools, []core.FunctionCall{{ID: "1", Name: "one", Arguments: "{}"}}, collect(&events))

	require.Len(t, events, 1)
	fr := events[0].GetFunctionResponses()[0]
	assert.Equal(t, "1", fr.ID)
	assert.Equal(t, 42, fr.Response)
	assert.Equal(t, "A", events[0].Author)
}

func TestFunctionExecutor_ParallelUnordered(t *testing.T) {
	tools := map[string]tool.Tool{
		"slow": &teMockTool{name: "slow", delay: 60 * time.Millisecond, result: "s"},
		"fast": &teMockTool{name: "fast", delay: 5 * time.Millisecond, result: "f"},
	}
	te := NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: 2})
	calls := []core.FunctionCall{{ID: "1", Name: "slow", Arguments: "{}"}, {ID: "2", Name: "fast", Arguments: "{}"}}

	var events []core.Event
	start := time.Now()
	te.Execute(newTERunContext(), newTestAgent("A", nil), tools, calls, collect(&events))

	assert.Equal(t, []string{"fast", "slow"}, responseNames(events))
	assert.Less(t, time.Since(start), 110*time.Millisecond)
}

func TestFunctionExecutor_PreserveOrder(t *testing.T) {
	tools := map[string]tool.Tool{
		"t1": &teMockTool{name: "t1", delay: 30 * time.Millisecond, result: 1},
		"t2": &teMockTool{name: "t2", delay: 5 * time.Millisecond, result: 2},
	}
	te := NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: 2, PreserveOrder: true})
	calls := []core.FunctionCall{{ID: "1", Name: "t1", Arguments: "{}"}, {ID: "2", Name: "t2", Arguments: "{}"}}

	var events []core.Event
	te.Execute(newTERunContext(), newTestAgent("A", nil), tools, calls, collect(&events))

	assert.Equal(t, []string{"t1", "t2"}, responseNames(events))
}

func TestFunctionExecutor_ErrorIsolation(t *testing.T) {
	tools := map[string]tool.Tool{
		"ok":  &teMockTool{name: "ok", result: "fine"},
		"bad": &teMockTool{name: "bad", err: errors.New("boom")},
	}
	te := NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: 2})
	calls := []core.FunctionCall{{ID: "1", Name: "ok", Arguments: "{}"}, {ID: "2", Name: "bad", Arguments: "{}"}}

	var events []core.Event
	te.Execute(newTERunContext(), newTestAgent("A", nil), tools, calls, collect(&events))

	require.Len(t, events, 2)
	errs := 0
	for _, ev := range events {
		if ev.GetFunctionResponses()[0].Error != "" {
			errs++
		}
	}
	assert.Equal(t, 1, errs)
}

func TestFunctionExecutor_PanicRecovery(t *testing.T) {
	tools := map[string]tool.Tool{"panic": &teMockTool{name: "panic", panicMsg: "boom"}}
	te := NewParallelFunctionExecutor(FunctionExecutorConfig{})

	var events []core.Event
	te.Execute(newTERunContext(), newTestAgent("A", nil), tools, []core.FunctionCall{{ID: "1", Name: "panic", Arguments: "{}"}}, collect(&events))

	require.Len(t, events, 1)
	assert.Contains(t, events[0].GetFunctionResponses()[0].Error, "panic recovered: boom")
}

func TestFunctionExecutor_ActionsApplied(t *testing.T) {
	tools := map[string]tool.Tool{
		"act": &teMockTool{name: "act", actionState: map[string]any{"k": "v"}, transferTo: "next"},
	}
	te := NewParallelFunctionExecutor(FunctionExecutorConfig{})

	var events []core.Event
	te.Execute(newTERunContext(), newTestAgent("A", nil), tools, []core.FunctionCall{{ID: "1", Name: "act", Arguments: "{}"}}, collect(&events))

	require.Len(t, events, 1)
	assert.Equal(t, "v", events[0].Actions.StateDelta["k"])
	require.NotNil(t, events[0].Actions.TransferToAgent)
	assert.Equal(t, "next", *events[0].Actions.TransferToAgent)
}

func TestFunctionExecutor_InvalidArguments(t *testing.T) {
	tools := map[string]tool.Tool{"one": &teMockTool{name: "one", result: 1}}
	te := NewParallelFunctionExecutor(FunctionExecutorConfig{})

	var events []core.Event
	te.Execute(newTERunContext(), newTestAgent("A", nil), tools, []core.FunctionCall{{ID: "1", Name: "one", Arguments: "{not json"}}, collect(&events))

	require.Len(t, events, 1)
	assert.Contains(t, events[0].GetFunctionResponses()[0].Error, tool.CodeValidation)
}
