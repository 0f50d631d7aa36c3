package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentcookbook/core"
)

// ErrEscalated is returned by runLoopChild when a child signals escalation.
var ErrEscalated = errors.New("child agent escalated")

// DefaultMaxIters bounds a LoopAgent configured with zero iterations.
const DefaultMaxIters = 100

// LoopAgent runs its children in order, repeatedly, until one of them
// escalates (for example through the exit_loop tool), the stop predicate
// matches, the iteration limit is reached or the context ends. Children share
// the session state across iterations.
type LoopAgent struct {
	BaseAgent
	maxIters    int
	interval    time.Duration
	stopOnError bool
	predicate   func(string) bool
}

// LoopOption configures a LoopAgent.
type LoopOption func(*LoopAgent)

// WithMaxIters sets the iteration limit. Zero or less selects DefaultMaxIters.
func WithMaxIters(n int) LoopOption {
	return func(l *LoopAgent) { l.maxIters = n }
}

// WithInterval sets a delay between iterations.
func WithInterval(d time.Duration) LoopOption {
	return func(l *LoopAgent) { l.interval = d }
}

// WithPredicate ends the loop once pred returns true for the text of the last
// final response seen in an iteration.
//
//	WithPredicate(func(output string) bool {
//		return strings.Contains(output, "APPROVED")
//	})
func WithPredicate(pred func(string) bool) LoopOption {
	return func(l *LoopAgent) { l.predicate = pred }
}

// WithStopOnError controls whether a failing child ends the loop (default)
// or the next iteration starts anyway.
func WithStopOnError(stop bool) LoopOption {
	return func(l *LoopAgent) { l.stopOnError = stop }
}

// NewLoopAgent constructs a loop over children. Defaults: DefaultMaxIters
// iterations, no interval, stop on first error.
func NewLoopAgent(name string, children []core.Agent, opts ...LoopOption) *LoopAgent {
	l := &LoopAgent{
		BaseAgent:   NewBaseAgent(name),
		maxIters:    DefaultMaxIters,
		stopOnError: true,
	}

	for _, o := range opts {
		o(l)
	}
	if l.maxIters <= 0 {
		l.maxIters = DefaultMaxIters
	}

	if err := l.SetSubAgents(children...); err != nil {
		panic(err)
	}

	return l
}

// SetSubAgents replaces the children run in every iteration.
func (l *LoopAgent) SetSubAgents(children ...core.Agent) error {
	return l.setSubAgents(l, children...)
}

// FindAgent searches this agent and its subtree by name.
func (l *LoopAgent) FindAgent(name string) core.Agent {
	if l.Name() == name {
		return l
	}
	return l.findSubAgent(name)
}

// MaxIters returns the iteration limit.
func (l *LoopAgent) MaxIters() int { return l.maxIters }

// Run implements core.Agent. Escalation and predicate matches end the loop
// without error.
func (l *LoopAgent) Run(runCtx *core.RunContext) error {
	children := l.SubAgents()
	if len(children) == 0 {
		return nil
	}

	for i := 0; i < l.maxIters; i++ {
		if err := runCtx.Err(); err != nil {
			return err
		}

		runCtx.LogDebug("agent.loop.iteration", "agent", l.Name(), "iteration", i+1)

		var lastText string
		for _, child := range children {
			err := l.runChild(runCtx, child, &lastText)
			if errors.Is(err, ErrEscalated) {
				runCtx.LogInfo("agent.loop.escalated", "agent", l.Name(), "child", child.Name(), "iteration", i+1)
				return nil
			}
			if err != nil {
				if ctxErr := runCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				if l.stopOnError {
					return fmt.Errorf("loop iteration %d failed for agent %s: %w", i+1, child.Name(), err)
				}
				runCtx.LogWarn("agent.loop.child_failed", "agent", l.Name(), "child", child.Name(), "iteration", i+1, "error", err.Error())
			}
		}

		if l.predicate != nil && l.predicate(lastText) {
			runCtx.LogInfo("agent.loop.predicate_matched", "agent", l.Name(), "iteration", i+1)
			ev := CreateEscalationEvent(runCtx.RunID, l.Name(), nil)
			if runCtx.Branch != "" {
				b := runCtx.Branch
				ev.Branch = &b
			}
			return runCtx.EmitAndWait(ev)
		}

		if l.interval > 0 && i < l.maxIters-1 {
			select {
			case <-runCtx.Done():
				return runCtx.Err()
			case <-time.After(l.interval):
			}
		}
	}

	runCtx.LogDebug("agent.loop.max_iters_reached", "agent", l.Name(), "iterations", l.maxIters)

	return nil
}

// runChild runs child through a relay, recording the text of its final
// responses in lastText. It returns ErrEscalated once the child's escalation
// event has been persisted. Escalations raised inside a nested loop stop that
// loop only.
func (l *LoopAgent) runChild(runCtx *core.RunContext, child core.Agent, lastText *string) error {
	escalated := false
	inner := innerLoops(child)
	err := runRelayed(runCtx, runCtx.Branch, child, func(ev core.Event) {
		if ev.IsEscalation() && !handledBy(inner, ev.Author) {
			escalated = true
		}
		if ev.IsFinalResponse() {
			if text := ev.Text(); text != "" {
				*lastText = text
			}
		}
	})
	if escalated && err == nil {
		return ErrEscalated
	}
	return err
}

// innerLoops collects the loops in the subtree of a, a included.
func innerLoops(a core.Agent) []*LoopAgent {
	var loops []*LoopAgent
	if l, ok := a.(*LoopAgent); ok {
		loops = append(loops, l)
	}
	for _, child := range a.SubAgents() {
		loops = append(loops, innerLoops(child)...)
	}
	return loops
}

// handledBy reports whether author runs inside one of loops, which then has
// consumed its escalation already.
func handledBy(loops []*LoopAgent, author string) bool {
	for _, l := range loops {
		if l.FindAgent(author) != nil {
			return true
		}
	}
	return false
}

// CreateEscalationEvent builds an event asking the enclosing loop to stop.
func CreateEscalationEvent(invocationID, author string, content *core.Content) core.Event {
	escalate := true
	ev := core.NewEvent(invocationID, author)
	ev.Actions.Escalate = &escalate
	ev.Content = content
	return ev
}
