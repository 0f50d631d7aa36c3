package flow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/hupe1980/agentcookbook/code"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/tool"
)

// Error codes attached to error events emitted by flows.
const (
	ErrorCodeModel     = "MODEL_ERROR"
	ErrorCodeProcessor = "PROCESSOR_ERROR"
	ErrorCodeLimit     = "MODEL_CALL_LIMIT"
)

// BaseFlow is a single-agent flow implementing the request -> model ->
// (optional tool loop) cycle with pluggable pre/post processors.
type BaseFlow struct {
	agent              FlowAgent
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
	executor           FunctionExecutor
}

// NewBaseFlow creates a new flow without processors. Function calls run on
// the default parallel executor preserving call order.
func NewBaseFlow(agent FlowAgent) *BaseFlow {
	return &BaseFlow{
		agent:              agent,
		requestProcessors:  []RequestProcessor{},
		responseProcessors: []ResponseProcessor{},
		executor:           NewParallelFunctionExecutor(FunctionExecutorConfig{PreserveOrder: true}),
	}
}

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed for each model chunk.
func (f *BaseFlow) AddResponseProcessor(processor ResponseProcessor) {
	f.responseProcessors = append(f.responseProcessors, processor)
}

// SetFunctionExecutor replaces the function executor.
func (f *BaseFlow) SetFunctionExecutor(executor FunctionExecutor) {
	f.executor = executor
}

// turnOutcome summarizes one model turn.
type turnOutcome struct {
	last     *core.Event
	transfer string
	escalate bool
}

// Run executes model turns until a final response, escalation, transfer,
// error or cancellation.
func (f *BaseFlow) Run(runCtx *core.RunContext) error {
	for {
		if err := runCtx.Err(); err != nil {
			return err
		}

		out, err := f.runOnce(runCtx)
		if err != nil {
			return err
		}

		switch {
		case out.transfer != "":
			runCtx.LogInfo("flow.transfer", "from_agent", f.agent.GetName(), "to_agent", out.transfer)
			return f.agent.TransferToAgent(runCtx, out.transfer)
		case out.escalate:
			return nil
		case out.last == nil:
			return nil
		case len(out.last.GetFunctionResponses()) > 0:
			if out.last.Actions.SkipSummarization != nil && *out.last.Actions.SkipSummarization {
				return nil
			}
			continue
		case out.last.IsFinalResponse():
			return nil
		}
	}
}

// emitError emits an error event and returns err wrapped with the code.
func (f *BaseFlow) emitError(runCtx *core.RunContext, errCode string, err error) error {
	ev := core.NewErrorEvent(runCtx.RunID, f.agent.GetName(), errCode, err)
	setBranch(runCtx, &ev)
	if emitErr := runCtx.EmitAndWait(ev); emitErr != nil {
		return errors.Join(err, emitErr)
	}
	return err
}

// toolRegistry returns the tools callable in this turn, including the local
// code execution and transfer tools when they apply.
func (f *BaseFlow) toolRegistry() map[string]tool.Tool {
	registry := map[string]tool.Tool{}
	if f.agent.IsFunctionCallingEnabled() {
		for name, t := range f.agent.GetTools() {
			registry[name] = t
		}
	}

	if exec := f.agent.CodeExecutor(); exec != nil && !code.IsBuiltIn(exec) {
		registry[tool.ExecuteCodeName] = tool.NewCodeExecutionTool(exec)
	}

	if f.agent.IsTransferEnabled() && len(f.agent.GetSubAgents()) > 0 {
		registry[tool.TransferToAgentName] = tool.NewTransferToAgentTool()
	}

	return registry
}

// toolDefinitions declares registry entries in name order.
func toolDefinitions(registry map[string]tool.Tool) []model.ToolDefinition {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)

	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := registry[name]
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

func setBranch(runCtx *core.RunContext, ev *core.Event) {
	if runCtx.Branch != "" {
		b := runCtx.Branch
		ev.Branch = &b
	}
}

// assignCallIDs gives every function call without an id a generated one so
// responses can be matched.
func assignCallIDs(content *core.Content) {
	for i, p := range content.Parts {
		fc, ok := p.(core.FunctionCallPart)
		if !ok || fc.FunctionCall.ID != "" {
			continue
		}
		fc.FunctionCall.ID = "call_" + core.NewID()
		content.Parts[i] = fc
	}
}

// runOnce performs one model turn including any tool executions.
func (f *BaseFlow) runOnce(runCtx *core.RunContext) (turnOutcome, error) {
	var out turnOutcome

	if runCtx.SessionStore != nil {
		if err := runCtx.RefreshSession(); err != nil {
			runCtx.LogWarn("flow.session.refresh_failed", "agent", f.agent.GetName(), "error", err.Error())
		}
	}

	registry := f.toolRegistry()

	req := &model.Request{
		Stream: f.agent.IsStreamingEnabled(),
		Config: f.agent.GenerateConfig(),
		Tools:  toolDefinitions(registry),
	}
	if exec := f.agent.CodeExecutor(); exec != nil && code.IsBuiltIn(exec) {
		req.CodeExecution = true
	}

	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(runCtx, req, f.agent); err != nil {
			return out, f.emitError(runCtx, ErrorCodeProcessor, fmt.Errorf("request processor %s failed: %w", processor.Name(), err))
		}
	}

	if runCtx.Limiter != nil {
		if err := runCtx.Limiter.Increment(); err != nil {
			return out, f.emitError(runCtx, ErrorCodeLimit, err)
		}
	}

	llm := f.agent.GetLLM()
	if llm == nil {
		return out, f.emitError(runCtx, ErrorCodeModel, fmt.Errorf("agent %s has no model", f.agent.GetName()))
	}

	runCtx.LogDebug("flow.model.request", "agent", f.agent.GetName(), "model", llm.Info().Name, "contents", len(req.Contents), "tools", len(req.Tools))

	genCtx, stopGen := context.WithCancel(runCtx.Context)
	respCh, errCh := llm.Generate(genCtx, *req)
	// an early return leaves the model mid-stream
	defer func() {
		stopGen()
		go func() {
			for range respCh {
			}
		}()
	}()

	for resp := range respCh {
		for _, processor := range f.responseProcessors {
			if err := processor.ProcessResponse(runCtx, &resp, f.agent); err != nil {
				return out, f.emitError(runCtx, ErrorCodeProcessor, fmt.Errorf("response processor %s failed: %w", processor.Name(), err))
			}
		}

		content := resp.Content
		content.Parts = slices.Clone(resp.Content.Parts)
		if content.Role == "" {
			content.Role = "assistant"
		}
		assignCallIDs(&content)

		ev := core.NewEvent(runCtx.RunID, f.agent.GetName())
		ev.Content = &content
		partial := resp.Partial
		ev.Partial = &partial
		setBranch(runCtx, &ev)

		if !resp.Partial && len(ev.GetFunctionCalls()) == 0 {
			complete := true
			ev.TurnComplete = &complete
		}
		if resp.Usage != nil {
			ev.CustomMetadata = map[string]string{
				"prompt_tokens":     strconv.Itoa(resp.Usage.PromptTokens),
				"completion_tokens": strconv.Itoa(resp.Usage.CompletionTokens),
				"total_tokens":      strconv.Itoa(resp.Usage.TotalTokens),
			}
		}

		if err := runCtx.EmitAndWait(ev); err != nil {
			return out, err
		}
		if !ev.IsPartial() {
			last := ev
			out.last = &last
		}

		fnCalls := ev.GetFunctionCalls()
		if len(fnCalls) == 0 || ev.IsPartial() {
			continue
		}

		var emitErr error
		f.executor.Execute(runCtx, f.agent, registry, fnCalls, func(respEv core.Event) error {
			setBranch(runCtx, &respEv)
			respEv.InvocationID = runCtx.RunID
			if err := runCtx.EmitAndWait(respEv); err != nil {
				emitErr = err
				return err
			}
			last := respEv
			out.last = &last
			if t := respEv.Actions.TransferToAgent; t != nil && out.transfer == "" {
				out.transfer = *t
			}
			if respEv.IsEscalation() {
				out.escalate = true
			}
			return nil
		})
		if emitErr != nil {
			return out, emitErr
		}
	}

	if err := <-errCh; err != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		runCtx.LogError("flow.model.error", "agent", f.agent.GetName(), "error", err.Error())
		return out, f.emitError(runCtx, ErrorCodeModel, fmt.Errorf("model %s: %w", llm.Info().Name, err))
	}

	return out, nil
}
