package testutil

import (
	"github.com/hupe1980/agentcookbook/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").State("k","v").Events(ev1, ev2).Build()
type SessionBuilder struct {
	key    core.SessionKey
	state  map[string]any
	events []core.Event
}

// NewSessionBuilder creates a builder for session id of app "test_app" and
// user "test_user".
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{
		key:   core.SessionKey{AppName: "test_app", UserID: "test_user", SessionID: id},
		state: map[string]any{},
	}
}

// App overrides the application name (chainable).
func (b *SessionBuilder) App(name string) *SessionBuilder { b.key.AppName = name; return b }

// User overrides the user id (chainable).
func (b *SessionBuilder) User(id string) *SessionBuilder { b.key.UserID = id; return b }

// State sets or overwrites a state key/value pair on the resulting session (chainable).
func (b *SessionBuilder) State(key string, val any) *SessionBuilder {
	b.state[key] = val
	return b
}

// Event appends a single event to the session history (chainable).
func (b *SessionBuilder) Event(ev core.Event) *SessionBuilder {
	b.events = append(b.events, ev)
	return b
}

// Events appends multiple events to the session history (chainable).
func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Key returns the key of the session being built.
func (b *SessionBuilder) Key() core.SessionKey { return b.key }

// Build returns a *core.Session with pre-populated state and events.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.key)

	for k, v := range b.state {
		s.State[k] = v
	}

	s.Events = append(s.Events, b.events...)

	return s
}
