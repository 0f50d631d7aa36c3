package session

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/agentcookbook/core"
)

// InMemoryStore is a volatile SessionStore keeping sessions in a process
// local map. It is safe for concurrent access and suited for tests, the CLI
// and single-process servers. Returned sessions are clones.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[core.SessionKey]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[core.SessionKey]*core.Session)}
}

// Create stores a new session. An empty SessionID is replaced by a uuid.
func (s *InMemoryStore) Create(_ context.Context, key core.SessionKey, state map[string]any) (*core.Session, error) {
	if key.SessionID == "" {
		key.SessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; ok {
		return nil, core.ErrSessionExists
	}

	sess := core.NewSession(key)
	sess.ApplyStateDelta(state)
	s.sessions[key] = sess

	return sess.Clone(), nil
}

// Get returns a clone of the session or core.ErrSessionNotFound.
func (s *InMemoryStore) Get(_ context.Context, key core.SessionKey) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// List returns sessions of appName (optionally narrowed to userID) ordered by
// last update, newest first. Event histories are omitted.
func (s *InMemoryStore) List(_ context.Context, appName, userID string) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Session, 0)
	for key, sess := range s.sessions {
		if key.AppName != appName || (userID != "" && key.UserID != userID) {
			continue
		}
		c := sess.Clone()
		c.Events = nil
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Updated.After(out[j].Updated) })

	return out, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *InMemoryStore) Delete(_ context.Context, key core.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

// AppendEvent adds an event and applies its state delta.
func (s *InMemoryStore) AppendEvent(_ context.Context, key core.SessionKey, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return core.ErrSessionNotFound
	}
	if ev.IsPartial() {
		return nil
	}
	sess.ApplyStateDelta(ev.Actions.StateDelta)
	sess.AddEvent(ev)
	return nil
}

// ApplyDelta merges a key/value delta into the session state.
func (s *InMemoryStore) ApplyDelta(_ context.Context, key core.SessionKey, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return core.ErrSessionNotFound
	}
	sess.ApplyStateDelta(delta)
	return nil
}
