package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/runner"
)

// Callbacks returns runner callbacks feeding the agent run and tool
// execution collectors. Register all of them on the same runner.
func (m *Metrics) Callbacks() []runner.Callback {
	var started sync.Map // run id -> time.Time

	return []runner.Callback{
		runner.NewFunctionCallback(runner.CallbackBeforeAgent, func(_ context.Context, cbCtx *runner.CallbackContext) error {
			started.Store(cbCtx.RunID, time.Now())
			return nil
		}),
		runner.NewFunctionCallback(runner.CallbackAfterAgent, func(_ context.Context, cbCtx *runner.CallbackContext) error {
			var d time.Duration
			if v, ok := started.LoadAndDelete(cbCtx.RunID); ok {
				d = time.Since(v.(time.Time))
			}
			m.ObserveAgentRun(cbCtx.AppName, cbCtx.Err, d)
			return nil
		}),
		runner.NewFunctionCallback(runner.CallbackOnEvent, func(_ context.Context, cbCtx *runner.CallbackContext) error {
			if cbCtx.Event == nil || cbCtx.Event.IsPartial() {
				return nil
			}
			for _, fr := range cbCtx.Event.GetFunctionResponses() {
				m.ObserveTool(fr.Name, fr.Error != "")
			}
			return nil
		}),
	}
}

// InstrumentStore wraps store so every call is counted under backend.
func (m *Metrics) InstrumentStore(store core.SessionStore, backend string) core.SessionStore {
	return &instrumentedStore{next: store, backend: backend, m: m}
}

type instrumentedStore struct {
	next    core.SessionStore
	backend string
	m       *Metrics
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.m.ObserveSessionOp(s.backend, op, err, time.Since(start))
}

func (s *instrumentedStore) Create(ctx context.Context, key core.SessionKey, state map[string]any) (*core.Session, error) {
	start := time.Now()
	sess, err := s.next.Create(ctx, key, state)
	s.observe("create", start, err)
	return sess, err
}

func (s *instrumentedStore) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	start := time.Now()
	sess, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return sess, err
}

func (s *instrumentedStore) List(ctx context.Context, appName, userID string) ([]*core.Session, error) {
	start := time.Now()
	sessions, err := s.next.List(ctx, appName, userID)
	s.observe("list", start, err)
	return sessions, err
}

func (s *instrumentedStore) Delete(ctx context.Context, key core.SessionKey) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *instrumentedStore) AppendEvent(ctx context.Context, key core.SessionKey, ev core.Event) error {
	start := time.Now()
	err := s.next.AppendEvent(ctx, key, ev)
	s.observe("append_event", start, err)
	return err
}

func (s *instrumentedStore) ApplyDelta(ctx context.Context, key core.SessionKey, delta map[string]any) error {
	start := time.Now()
	err := s.next.ApplyDelta(ctx, key, delta)
	s.observe("apply_delta", start, err)
	return err
}
