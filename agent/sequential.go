package agent

import (
	"fmt"

	"github.com/hupe1980/agentcookbook/core"
)

// SequentialAgent runs its sub-agents one after another on the same
// RunContext. Every child sees the state its predecessors persisted, which
// is how pipelines hand results along through output keys.
type SequentialAgent struct {
	BaseAgent
}

// NewSequentialAgent creates a sequential coordinator over children.
func NewSequentialAgent(name string, children ...core.Agent) *SequentialAgent {
	s := &SequentialAgent{BaseAgent: NewBaseAgent(name)}
	if err := s.SetSubAgents(children...); err != nil {
		panic(err)
	}
	return s
}

// SetSubAgents replaces the pipeline steps.
func (s *SequentialAgent) SetSubAgents(children ...core.Agent) error {
	return s.setSubAgents(s, children...)
}

// FindAgent searches this agent and its subtree by name.
func (s *SequentialAgent) FindAgent(name string) core.Agent {
	if s.Name() == name {
		return s
	}
	return s.findSubAgent(name)
}

// Run implements core.Agent. The first failing child aborts the pipeline.
func (s *SequentialAgent) Run(runCtx *core.RunContext) error {
	for i, child := range s.SubAgents() {
		if err := runCtx.Err(); err != nil {
			return err
		}

		runCtx.LogDebug("agent.sequential.step", "agent", s.Name(), "step", i+1, "child", child.Name())

		if err := child.Run(runCtx); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
	}

	return nil
}
