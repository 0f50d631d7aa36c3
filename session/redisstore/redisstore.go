// Package redisstore implements core.SessionStore on top of Redis.
//
// Every session is one string key holding a JSON document:
//
//	session:{app}:{user}:{id} -> {"app_name", "user_id", "session_id", "state",
//	                             "created_at", "updated_at", "events"}
//
// Key parts are escaped so ':' and the SCAN glob characters inside app, user
// or session ids cannot alias another key or widen a listing. Plain ids keep
// the readable layout above.
//
// Keys expire after TTL; writes refresh the expiry. Appends and state deltas
// use WATCH based optimistic transactions so concurrent writers never lose
// events.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
)

// DefaultTTL is the expiry applied to session keys.
const DefaultTTL = 24 * time.Hour

const (
	keyPrefix  = "session"
	maxRetries = 10
	scanCount  = 100
)

// Options configures a Store.
type Options struct {
	// TTL of session keys. Zero uses DefaultTTL, a negative value disables expiry.
	TTL time.Duration

	Logger logging.Logger
}

// Store is a Redis backed session store.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger logging.Logger
}

// New wraps an existing client.
func New(client redis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{
		TTL:    DefaultTTL,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}

	return &Store{client: client, ttl: ttl, logger: opts.Logger}
}

// NewFromURL connects to the server addressed by a redis:// or rediss:// URL
// and verifies the connection with PING.
func NewFromURL(ctx context.Context, url string, optFns ...func(o *Options)) (*Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	redisOpts.DialTimeout = 5 * time.Second

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return New(client, optFns...), nil
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

// record is the JSON document stored per session.
type record struct {
	AppName   string         `json:"app_name"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	State     map[string]any `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Events    []core.Event   `json:"events"`
}

func (r *record) session() *core.Session {
	sess := core.NewSession(core.SessionKey{AppName: r.AppName, UserID: r.UserID, SessionID: r.SessionID})
	if r.State != nil {
		sess.State = r.State
	}
	if r.Events != nil {
		sess.Events = r.Events
	}
	sess.Created = r.CreatedAt
	sess.Updated = r.UpdatedAt
	return sess
}

func (r *record) apply(delta map[string]any) {
	for k, v := range core.PersistableDelta(delta) {
		r.State[k] = v
	}
	r.UpdatedAt = time.Now().UTC()
}

// keyEscaper percent-encodes the separator, the glob metacharacters and the
// escape character itself, which keeps the encoding injective.
var keyEscaper = strings.NewReplacer(
	"%", "%25",
	":", "%3A",
	"*", "%2A",
	"?", "%3F",
	"[", "%5B",
	"]", "%5D",
	"\\", "%5C",
)

// Key returns the Redis key holding the session.
func Key(key core.SessionKey) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, keyEscaper.Replace(key.AppName), keyEscaper.Replace(key.UserID), keyEscaper.Replace(key.SessionID))
}

func listPattern(appName, userID string) string {
	if userID == "" {
		return fmt.Sprintf("%s:%s:*", keyPrefix, keyEscaper.Replace(appName))
	}
	return fmt.Sprintf("%s:%s:%s:*", keyPrefix, keyEscaper.Replace(appName), keyEscaper.Replace(userID))
}

// Create stores a new session. An empty SessionID is replaced by a uuid.
func (s *Store) Create(ctx context.Context, key core.SessionKey, state map[string]any) (*core.Session, error) {
	if key.SessionID == "" {
		key.SessionID = uuid.NewString()
	}

	now := time.Now().UTC()
	rec := &record{
		AppName:   key.AppName,
		UserID:    key.UserID,
		SessionID: key.SessionID,
		State:     map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
		Events:    []core.Event{},
	}
	rec.apply(state)

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, Key(key), data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return nil, core.ErrSessionExists
	}

	s.logger.Debug("session.created", "backend", "redis", "key", Key(key))

	return rec.session(), nil
}

// Get loads a session or returns core.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	rec, err := s.load(ctx, s.client, Key(key))
	if err != nil {
		return nil, err
	}
	return rec.session(), nil
}

// List scans the keys of appName, narrowed to userID when set. Event
// histories are omitted.
func (s *Store) List(ctx context.Context, appName, userID string) ([]*core.Session, error) {
	out := make([]*core.Session, 0)

	iter := s.client.Scan(ctx, 0, listPattern(appName, userID), scanCount).Iterator()
	for iter.Next(ctx) {
		rec, err := s.load(ctx, s.client, iter.Val())
		if errors.Is(err, core.ErrSessionNotFound) {
			// expired between SCAN and GET
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.AppName != appName || (userID != "" && rec.UserID != userID) {
			continue
		}
		sess := rec.session()
		sess.Events = nil
		out = append(out, sess)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	return out, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, key core.SessionKey) error {
	if err := s.client.Del(ctx, Key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// AppendEvent adds a non-partial event and applies its state delta.
func (s *Store) AppendEvent(ctx context.Context, key core.SessionKey, ev core.Event) error {
	return s.update(ctx, key, func(rec *record) bool {
		if ev.IsPartial() {
			return false
		}
		rec.apply(ev.Actions.StateDelta)
		rec.Events = append(rec.Events, ev)
		return true
	})
}

// ApplyDelta merges delta into the session state.
func (s *Store) ApplyDelta(ctx context.Context, key core.SessionKey, delta map[string]any) error {
	return s.update(ctx, key, func(rec *record) bool {
		rec.apply(delta)
		return true
	})
}

// update runs mutate inside a WATCH transaction, retrying when another
// writer changed the key in between. mutate reports whether to write back.
func (s *Store) update(ctx context.Context, key core.SessionKey, mutate func(rec *record) bool) error {
	k := Key(key)

	txf := func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, k)
		if err != nil {
			return err
		}
		if !mutate(rec) {
			return nil
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("session.update.conflict", "key", k, "attempt", attempt+1)
			continue
		}
		return err
	}

	return fmt.Errorf("failed to update session %s: too many concurrent writers", key.SessionID)
}

func (s *Store) load(ctx context.Context, c redis.Cmdable, k string) (*record, error) {
	data, err := c.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", k, err)
	}
	if rec.State == nil {
		rec.State = map[string]any{}
	}

	return &rec, nil
}
