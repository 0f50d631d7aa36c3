package core

// Agent defines the core interface that all agents must implement.
//
// Agents are the primary processing units of the framework. They receive
// inputs through a RunContext, process them, and emit events to communicate
// results and state changes back to the Runner.
//
// Implementations must:
//   - Respect context cancellation for graceful shutdown
//   - Emit events through the provided RunContext
//   - Wait for the resume signal after every non-partial event
//   - Manage their lifecycle through Start/Stop methods
type Agent interface {
	Name() string
	Description() string
	Start(runCtx *RunContext) error
	Stop(runCtx *RunContext) error
	Run(runCtx *RunContext) error
	SetSubAgents(children ...Agent) error
	SubAgents() []Agent
	Parent() Agent
	FindAgent(name string) Agent
}

// AgentInfo carries identifying details about an agent used in contexts & events.
// Name is the external identifier; Type categorizes implementation (e.g. "model", "sequential").
type AgentInfo struct{ Name, Type string }
