package core

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrSessionNotFound is returned when a session key does not resolve.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by Create for an id already in use.
	ErrSessionExists = errors.New("session already exists")
)

// TempStatePrefix marks state keys that live for a single invocation only.
const TempStatePrefix = "temp:"

// SessionKey addresses a session. Sessions are scoped per application and user.
type SessionKey struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// SessionStore persists sessions and their evolving state / event history.
//
// Create generates a session id when key.SessionID is empty. List returns
// all sessions of an application when userID is empty. Sessions returned by
// List may omit their event history.
type SessionStore interface {
	Create(ctx context.Context, key SessionKey, state map[string]any) (*Session, error)
	Get(ctx context.Context, key SessionKey) (*Session, error)
	List(ctx context.Context, appName, userID string) ([]*Session, error)
	Delete(ctx context.Context, key SessionKey) error
	AppendEvent(ctx context.Context, key SessionKey, event Event) error
	ApplyDelta(ctx context.Context, key SessionKey, delta map[string]any) error
}

// PersistableDelta returns delta without temp: keys. The input is returned
// unchanged when it has none.
func PersistableDelta(delta map[string]any) map[string]any {
	drop := false
	for k := range delta {
		if strings.HasPrefix(k, TempStatePrefix) {
			drop = true
			break
		}
	}
	if !drop {
		return delta
	}
	out := make(map[string]any, len(delta))
	for k, v := range delta {
		if !strings.HasPrefix(k, TempStatePrefix) {
			out[k] = v
		}
	}
	return out
}
