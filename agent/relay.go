package agent

import (
	"context"
	"sync"

	"github.com/hupe1980/agentcookbook/core"
)

// relayed is an event waiting to be forwarded together with the channel
// that releases its emitter.
type relayed struct {
	ev     core.Event
	resume chan<- struct{}
}

// relay forwards events of child runs to a parent RunContext one at a time.
// A child emitting a non-partial event stays blocked until the parent has
// persisted it, exactly as if it had emitted on the parent directly.
type relay struct {
	parent *core.RunContext
	in     chan relayed
	wg     sync.WaitGroup
}

func newRelay(parent *core.RunContext) *relay {
	return &relay{parent: parent, in: make(chan relayed)}
}

// spawn runs agent on a child context bound to ctx and branch. The child's
// error is passed to done.
func (r *relay) spawn(ctx context.Context, branch string, agent core.Agent, done func(error)) {
	emit := make(chan core.Event)
	resume := make(chan struct{}, 1)

	childCtx := r.parent.NewChildContext(emit, resume, branch).WithContext(ctx)
	childCtx.Agent = core.AgentInfo{Name: agent.Name(), Type: agentType(agent)}

	r.wg.Add(2)

	finished := make(chan struct{})
	go func() {
		defer r.wg.Done()
		defer close(finished)
		done(agent.Run(childCtx))
	}()

	go func() {
		defer r.wg.Done()
		for {
			select {
			case ev := <-emit:
				r.in <- relayed{ev: ev, resume: resume}
			case <-finished:
				return
			}
		}
	}()
}

// serve forwards events until every spawned child has finished. observe is
// called for each event before it is forwarded. After a forwarding failure
// cancel is invoked and the remaining events are drained without being
// forwarded. The first forwarding error is returned.
func (r *relay) serve(cancel context.CancelFunc, observe func(core.Event)) error {
	go func() {
		r.wg.Wait()
		close(r.in)
	}()

	var fwdErr error
	for msg := range r.in {
		if fwdErr == nil {
			if observe != nil {
				observe(msg.ev)
			}
			if err := r.parent.EmitAndWait(msg.ev); err != nil {
				fwdErr = err
				cancel()
			}
		}
		if !msg.ev.IsPartial() {
			select {
			case msg.resume <- struct{}{}:
			default:
			}
		}
	}

	return fwdErr
}

// runRelayed runs a single agent through a relay.
func runRelayed(parent *core.RunContext, branch string, agent core.Agent, observe func(core.Event)) error {
	ctx, cancel := context.WithCancel(parent.Context)
	defer cancel()

	r := newRelay(parent)

	var childErr error
	r.spawn(ctx, branch, agent, func(err error) { childErr = err })

	if err := r.serve(cancel, observe); err != nil {
		return err
	}
	return childErr
}

func agentType(a core.Agent) string {
	switch a.(type) {
	case *ModelAgent:
		return "model"
	case *SequentialAgent:
		return "sequential"
	case *ParallelAgent:
		return "parallel"
	case *LoopAgent:
		return "loop"
	default:
		return "custom"
	}
}
