package agent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentcookbook/core"
)

// BaseAgent bundles shared lifecycle (Start/Stop), hierarchy management and
// identity helpers. Embed it in concrete agent implementations and supply a
// Run method to satisfy the core.Agent interface. All exported methods are
// goroutine-safe.
type BaseAgent struct {
	name        string
	description string
	mu          sync.Mutex
	active      int // runs between Start and Stop
	parent      core.Agent
	subAgents   []core.Agent
}

// NewBaseAgent constructs a BaseAgent with generated description (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.description
}

// SetDescription updates the agent's description. Peers read it when
// deciding whether to transfer.
func (b *BaseAgent) SetDescription(desc string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.description = desc
}

// Start marks the beginning of a run. An agent instance may serve several
// invocations concurrently; each Start must be paired with a Stop.
func (b *BaseAgent) Start(_ *core.RunContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active++
	return nil
}

// Stop marks the end of a run started with Start.
func (b *BaseAgent) Stop(_ *core.RunContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active == 0 {
		return errors.New("agent is not running")
	}
	b.active--

	return nil
}

// Running reports whether at least one run is in progress.
func (b *BaseAgent) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active > 0
}

// SetSubAgents atomically replaces the child agent set, clearing any previous
// parent links then assigning self as the parent of each new child. self is
// the embedding agent; pass nil to link the bare BaseAgent.
func (b *BaseAgent) setSubAgents(self core.Agent, children ...core.Agent) error {
	seen := map[string]bool{}
	for _, child := range children {
		if child == nil {
			return errors.New("sub-agent must not be nil")
		}
		if seen[child.Name()] {
			return fmt.Errorf("duplicate sub-agent name %q", child.Name())
		}
		seen[child.Name()] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, child := range b.subAgents {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			setter.setParent(nil)
		}
	}
	b.subAgents = nil

	if self == nil {
		self = &agentWrapper{b}
	}
	for _, child := range children {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			setter.setParent(self)
		}
		b.subAgents = append(b.subAgents, child)
	}

	return nil
}

// SetSubAgents replaces the children of this agent. Names must be unique.
func (b *BaseAgent) SetSubAgents(children ...core.Agent) error {
	return b.setSubAgents(nil, children...)
}

func (b *BaseAgent) setParent(p core.Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = p
}

// Parent returns the current parent agent or nil if this agent is root.
func (b *BaseAgent) Parent() core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// SubAgents returns a shallow copy of current child agents for safe iteration.
func (b *BaseAgent) SubAgents() []core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]core.Agent, len(b.subAgents))
	copy(result, b.subAgents)
	return result
}

// FindAgent performs a depth-first search over the subtree rooted at this
// agent (including itself) returning the first agent whose Name matches.
// Returns nil if no match is found.
func (b *BaseAgent) FindAgent(name string) core.Agent {
	if b.name == name {
		return &agentWrapper{b}
	}
	return b.findSubAgent(name)
}

func (b *BaseAgent) findSubAgent(name string) core.Agent {
	for _, child := range b.SubAgents() {
		if child.Name() == name {
			return child
		}
		if found := child.FindAgent(name); found != nil {
			return found
		}
	}
	return nil
}

// agentWrapper lets a bare BaseAgent appear in hierarchy references.
type agentWrapper struct{ *BaseAgent }

// Run implements core.Agent.
func (w *agentWrapper) Run(_ *core.RunContext) error {
	return fmt.Errorf("cannot execute BaseAgent directly - embed it in a concrete agent with Run implementation")
}
