// Package flow drives a single model agent: it assembles model requests from
// session history and agent configuration, streams model output as events,
// executes requested tools and repeats until the model produces a final
// answer, escalates or transfers control.
package flow

import (
	"github.com/hupe1980/agentcookbook/code"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/tool"
)

// Flow defines the interface for agent execution flows.
//
// Run blocks until the agent turn completes. Events are emitted through the
// RunContext and each non-partial event waits for the runner to persist it
// before the flow continues.
type Flow interface {
	Run(runCtx *core.RunContext) error
}

// FlowAgent is the view of an agent a flow needs. It keeps flows independent
// of the concrete agent implementation.
type FlowAgent interface {
	// GetName returns the agent's display name, used as event author.
	GetName() string

	// Description is shown to peers deciding whether to transfer.
	Description() string

	// GetLLM returns the language model instance.
	GetLLM() model.Model

	// ResolveInstructions returns the raw instruction before state injection.
	ResolveInstructions(runCtx *core.RunContext) (string, error)

	// ResolveGlobalInstruction returns an instruction prepended for the
	// whole agent tree. Empty when unset.
	ResolveGlobalInstruction(runCtx *core.RunContext) (string, error)

	// GetTools returns the registered tools for function calling.
	GetTools() map[string]tool.Tool

	// GetSubAgents returns the transfer targets.
	GetSubAgents() []FlowAgent

	IsFunctionCallingEnabled() bool
	IsStreamingEnabled() bool
	IsTransferEnabled() bool

	// GetOutputKey returns the session state key the final text is saved under.
	GetOutputKey() string

	// MaxHistoryMessages bounds the history sent to the model. 0 means no limit.
	MaxHistoryMessages() int

	GenerateConfig() model.GenerateConfig

	// CodeExecutor returns the executor for model-written code or nil.
	CodeExecutor() code.Executor

	// TransferToAgent hands the current turn to a named agent.
	TransferToAgent(runCtx *core.RunContext, agentName string) error
}

// RequestProcessor processes the request before sending it to the LLM.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request before model execution.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error
}

// ResponseProcessor processes the response after receiving it from the LLM.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse inspects a model response before it is emitted.
	ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error
}
