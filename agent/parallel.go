package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentcookbook/core"
)

// ErrParallelTimeout is returned when a ParallelAgent's children do not
// finish within the configured timeout.
var ErrParallelTimeout = errors.New("parallel execution timed out")

// ParallelAgent runs its sub-agents concurrently. Each child works on its own
// branch ("Parent.Child") so it neither sees nor overwrites the pending
// changes of its siblings, and their events are forwarded to the runner one
// at a time.
type ParallelAgent struct {
	BaseAgent
	timeout time.Duration // 0 means no timeout
}

// NewParallelAgent creates a parallel coordinator. A zero timeout waits for
// the children indefinitely.
func NewParallelAgent(name string, timeout time.Duration, children ...core.Agent) *ParallelAgent {
	p := &ParallelAgent{BaseAgent: NewBaseAgent(name), timeout: timeout}
	if err := p.SetSubAgents(children...); err != nil {
		panic(err)
	}
	return p
}

// SetSubAgents replaces the concurrently executed children.
func (p *ParallelAgent) SetSubAgents(children ...core.Agent) error {
	return p.setSubAgents(p, children...)
}

// Timeout returns the configured timeout.
func (p *ParallelAgent) Timeout() time.Duration { return p.timeout }

// branchFor returns the branch label of a child run.
func (p *ParallelAgent) branchFor(runCtx *core.RunContext, child core.Agent) string {
	return buildBranchPath(runCtx.Branch, fmt.Sprintf("%s.%s", p.Name(), child.Name()))
}

// FindAgent searches this agent and its subtree by name.
func (p *ParallelAgent) FindAgent(name string) core.Agent {
	if p.Name() == name {
		return p
	}
	return p.findSubAgent(name)
}

// Run implements core.Agent. All children run to completion (or
// cancellation); the first error wins.
func (p *ParallelAgent) Run(runCtx *core.RunContext) error {
	children := p.SubAgents()
	if len(children) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(runCtx.Context)
	defer cancel()
	if p.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, p.timeout)
		defer cancelTimeout()
	}

	r := newRelay(runCtx)

	var (
		mu       sync.Mutex
		firstErr error
	)
	for _, child := range children {
		c := child
		r.spawn(ctx, p.branchFor(runCtx, c), c, func(err error) {
			if err == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if firstErr == nil {
				firstErr = fmt.Errorf("parallel execution failed for agent %s: %w", c.Name(), err)
			}
		})
	}

	runCtx.LogDebug("agent.parallel.start", "agent", p.Name(), "children", len(children))

	if err := r.serve(cancel, nil); err != nil {
		return err
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && runCtx.Err() == nil {
		return fmt.Errorf("%w after %s", ErrParallelTimeout, p.timeout)
	}

	return firstErr
}
