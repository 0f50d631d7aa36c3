package core

import (
	"context"
)

type testLogger struct{}

func (l testLogger) Debug(string, ...any) {}
func (l testLogger) Info(string, ...any)  {}
func (l testLogger) Warn(string, ...any)  {}
func (l testLogger) Error(string, ...any) {}

type rcMockSessionStore struct {
	applied map[string]map[string]any
}

func (s *rcMockSessionStore) Create(_ context.Context, key SessionKey, _ map[string]any) (*Session, error) {
	return NewSession(key), nil
}
func (s *rcMockSessionStore) Get(_ context.Context, key SessionKey) (*Session, error) {
	return NewSession(key), nil
}
func (s *rcMockSessionStore) List(context.Context, string, string) ([]*Session, error) {
	return nil, nil
}
func (s *rcMockSessionStore) Delete(context.Context, SessionKey) error             { return nil }
func (s *rcMockSessionStore) AppendEvent(context.Context, SessionKey, Event) error { return nil }
func (s *rcMockSessionStore) ApplyDelta(_ context.Context, key SessionKey, delta map[string]any) error {
	if s.applied == nil {
		s.applied = map[string]map[string]any{}
	}
	cp := map[string]any{}
	for k, v := range delta {
		cp[k] = v
	}
	s.applied[key.SessionID] = cp
	return nil
}

type rcMockArtifactStore struct{ saved map[string]map[string][]byte }

func (a *rcMockArtifactStore) Save(sid, aid string, data []byte) error {
	if a.saved == nil {
		a.saved = map[string]map[string][]byte{}
	}
	if _, ok := a.saved[sid]; !ok {
		a.saved[sid] = map[string][]byte{}
	}
	a.saved[sid][aid] = append([]byte{}, data...)
	return nil
}
func (a *rcMockArtifactStore) Get(sid, aid string) ([]byte, error) {
	if m, ok := a.saved[sid]; ok {
		return m[aid], nil
	}
	return nil, nil
}
func (a *rcMockArtifactStore) List(sid string) ([]string, error) {
	res := []string{}
	for k := range a.saved[sid] {
		res = append(res, k)
	}
	return res, nil
}
func (a *rcMockArtifactStore) Delete(string, string) error { return nil }

type rcMockMemoryStore struct{}

func (m *rcMockMemoryStore) Get(string) (map[string]any, error) { return map[string]any{}, nil }
func (m *rcMockMemoryStore) Put(string, map[string]any) error   { return nil }
func (m *rcMockMemoryStore) Search(string, string, int) ([]SearchResult, error) {
	return []SearchResult{}, nil
}
func (m *rcMockMemoryStore) Store(string, string, map[string]any) error { return nil }
func (m *rcMockMemoryStore) Delete(string, string) error                { return nil }

func newRunContextForTest() (*RunContext, chan Event) {
	emit := make(chan Event, 5)
	resume := make(chan struct{}, 5)
	key := SessionKey{AppName: "app", UserID: "user", SessionID: "sess-x"}
	return NewRunContext(context.Background(), RunContextConfig{
		Key:           key,
		RunID:         "inv-x",
		Agent:         AgentInfo{Name: "Agent1", Type: "test"},
		Emit:          emit,
		Resume:        resume,
		Session:       NewSession(key),
		SessionStore:  &rcMockSessionStore{},
		ArtifactStore: &rcMockArtifactStore{},
		MemoryStore:   &rcMockMemoryStore{},
		Logger:        testLogger{},
	}), emit
}
