package agent

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/agentcookbook/code"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/flow"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/tool"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Description           string
	Instruction           Instruction
	GlobalInstruction     Instruction
	EnableStreaming       bool
	EnableFunctionCalling bool
	OutputKey             string
	MaxHistoryMessages    int
	AllowTransfer         bool
	Tools                 map[string]tool.Tool
	GenerateConfig        model.GenerateConfig
	CodeExecutor          code.Executor
}

// ModelAgent answers with a language model. It supports tool calls,
// streaming, saving its final answer under an output key, handing the turn to
// a sub-agent and live bidirectional sessions.
type ModelAgent struct {
	BaseAgent
	llm model.Model

	toolsMu sync.RWMutex
	tools   map[string]tool.Tool

	instruction           Instruction
	globalInstruction     Instruction
	enableFunctionCalling bool
	enableStreaming       bool
	outputKey             string
	maxHistoryMessages    int
	allowTransfer         bool
	generateConfig        model.GenerateConfig
	codeExecutor          code.Executor
}

// NewModelAgent creates a model agent. Defaults: streaming and function
// calling on, transfer allowed, 20 history messages and the instruction
// "You are <name>, a helpful AI assistant.".
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:           StaticInstruction(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		EnableStreaming:       true,
		EnableFunctionCalling: true,
		MaxHistoryMessages:    20,
		AllowTransfer:         true,
		Tools:                 make(map[string]tool.Tool),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent:             NewBaseAgent(name),
		llm:                   llm,
		tools:                 make(map[string]tool.Tool, len(opts.Tools)),
		instruction:           opts.Instruction,
		globalInstruction:     opts.GlobalInstruction,
		enableStreaming:       opts.EnableStreaming,
		enableFunctionCalling: opts.EnableFunctionCalling,
		outputKey:             opts.OutputKey,
		maxHistoryMessages:    opts.MaxHistoryMessages,
		allowTransfer:         opts.AllowTransfer,
		generateConfig:        opts.GenerateConfig,
		codeExecutor:          opts.CodeExecutor,
	}
	maps.Copy(a.tools, opts.Tools)

	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}

	return a
}

// RegisterTool adds a tool, replacing any tool with the same name.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	a.toolsMu.Lock()
	defer a.toolsMu.Unlock()
	a.tools[t.Name()] = t
}

// RegisterTools adds multiple tools.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// UnregisterTool removes a tool and reports whether it was registered.
func (a *ModelAgent) UnregisterTool(name string) bool {
	a.toolsMu.Lock()
	defer a.toolsMu.Unlock()
	if _, exists := a.tools[name]; !exists {
		return false
	}
	delete(a.tools, name)
	return true
}

// HasTool reports whether a tool is registered.
func (a *ModelAgent) HasTool(name string) bool {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	_, exists := a.tools[name]
	return exists
}

// ListTools returns the sorted names of all registered tools.
func (a *ModelAgent) ListTools() []string {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	return slices.Sorted(maps.Keys(a.tools))
}

// SetSubAgents replaces the transfer targets of this agent.
func (a *ModelAgent) SetSubAgents(children ...core.Agent) error {
	return a.setSubAgents(a, children...)
}

// FindAgent searches this agent and its subtree by name.
func (a *ModelAgent) FindAgent(name string) core.Agent {
	if a.Name() == name {
		return a
	}
	return a.findSubAgent(name)
}

// GetName returns the agent's display name.
func (a *ModelAgent) GetName() string { return a.Name() }

// GetLLM returns the language model.
func (a *ModelAgent) GetLLM() model.Model { return a.llm }

// GetTools returns a copy of the registered tools.
func (a *ModelAgent) GetTools() map[string]tool.Tool {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	return maps.Clone(a.tools)
}

// GetSubAgents returns the children usable as transfer targets.
func (a *ModelAgent) GetSubAgents() []flow.FlowAgent {
	subAgents := a.SubAgents()
	flowAgents := make([]flow.FlowAgent, 0, len(subAgents))
	for _, sub := range subAgents {
		if fa, ok := sub.(flow.FlowAgent); ok {
			flowAgents = append(flowAgents, fa)
			continue
		}
		flowAgents = append(flowAgents, transferTarget{sub})
	}
	return flowAgents
}

func (a *ModelAgent) IsFunctionCallingEnabled() bool { return a.enableFunctionCalling }
func (a *ModelAgent) IsStreamingEnabled() bool       { return a.enableStreaming }
func (a *ModelAgent) IsTransferEnabled() bool        { return a.allowTransfer }

// GetOutputKey returns the state key the final answer is saved under.
func (a *ModelAgent) GetOutputKey() string { return a.outputKey }

// MaxHistoryMessages bounds the conversation history sent to the model.
func (a *ModelAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// GenerateConfig returns the sampling configuration.
func (a *ModelAgent) GenerateConfig() model.GenerateConfig { return a.generateConfig }

// CodeExecutor returns the configured code executor or nil.
func (a *ModelAgent) CodeExecutor() code.Executor { return a.codeExecutor }

// ResolveInstructions returns the instruction before state injection.
func (a *ModelAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	return a.instruction.Resolve(runCtx)
}

// ResolveGlobalInstruction returns the global instruction, or "" if unset.
func (a *ModelAgent) ResolveGlobalInstruction(runCtx *core.RunContext) (string, error) {
	return a.globalInstruction.Resolve(runCtx)
}

// TransferToAgent runs the named descendant on the current RunContext.
func (a *ModelAgent) TransferToAgent(runCtx *core.RunContext, agentName string) error {
	target := a.findSubAgent(agentName)
	if target == nil {
		return fmt.Errorf("agent '%s' not found in hierarchy of %s", agentName, a.Name())
	}
	return target.Run(runCtx)
}

// withAgent runs fn with runCtx.Agent pointing at a, restoring the previous
// value afterwards.
func (a *ModelAgent) withAgent(runCtx *core.RunContext, fn func() error) error {
	prev := runCtx.Agent
	runCtx.Agent = core.AgentInfo{Name: a.Name(), Type: agentType(a)}
	defer func() { runCtx.Agent = prev }()
	return fn()
}

// Run implements core.Agent by executing the flow selected for this agent.
func (a *ModelAgent) Run(runCtx *core.RunContext) error {
	return a.withAgent(runCtx, func() error {
		fl := flow.NewSelector().SelectFlow(a)

		runCtx.LogDebug("agent.run.start", "agent", a.Name(), "run", runCtx.RunID, "flow", fmt.Sprintf("%T", fl))

		if err := fl.Run(runCtx); err != nil {
			runCtx.LogError("agent.run.error", "agent", a.Name(), "error", err.Error())
			return err
		}

		runCtx.LogDebug("agent.run.complete", "agent", a.Name())
		return nil
	})
}

// RunLive drives a live session fed by queue until the queue closes, the
// model ends the session or runCtx is cancelled. The model must implement
// model.LiveModel.
func (a *ModelAgent) RunLive(runCtx *core.RunContext, queue *core.LiveRequestQueue, cfg model.LiveConfig) error {
	return a.withAgent(runCtx, func() error {
		return flow.NewLiveFlow(a).RunLive(runCtx, queue, cfg)
	})
}

// transferTarget exposes a non-model agent (e.g. a SequentialAgent) to the
// transfer tool. Only its name and description are consulted.
type transferTarget struct{ core.Agent }

func (t transferTarget) GetName() string                                      { return t.Name() }
func (t transferTarget) GetLLM() model.Model                                  { return nil }
func (t transferTarget) ResolveInstructions(*core.RunContext) (string, error) { return "", nil }
func (t transferTarget) ResolveGlobalInstruction(*core.RunContext) (string, error) {
	return "", nil
}
func (t transferTarget) GetTools() map[string]tool.Tool       { return nil }
func (t transferTarget) GetSubAgents() []flow.FlowAgent       { return nil }
func (t transferTarget) IsFunctionCallingEnabled() bool       { return false }
func (t transferTarget) IsStreamingEnabled() bool             { return false }
func (t transferTarget) IsTransferEnabled() bool              { return false }
func (t transferTarget) GetOutputKey() string                 { return "" }
func (t transferTarget) MaxHistoryMessages() int              { return 0 }
func (t transferTarget) GenerateConfig() model.GenerateConfig { return model.GenerateConfig{} }
func (t transferTarget) CodeExecutor() code.Executor          { return nil }
func (t transferTarget) TransferToAgent(_ *core.RunContext, _ string) error {
	return fmt.Errorf("agent %s cannot transfer", t.Name())
}
