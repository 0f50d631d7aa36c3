package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/session/sessiontest"
)

var _ core.SessionStore = (*Store)(nil)

func newTestStore(t *testing.T, optFns ...func(o *Options)) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, optFns...), mr
}

func TestStore(t *testing.T) {
	sessiontest.Run(t, func(t *testing.T) core.SessionStore {
		store, _ := newTestStore(t)
		return store
	})
}

func TestStore_DocumentLayout(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := core.SessionKey{AppName: "custom_session_agent", UserID: "alice", SessionID: "s1"}

	_, err := store.Create(ctx, key, map[string]any{"topic": "redis"})
	require.NoError(t, err)

	raw, err := mr.Get("session:custom_session_agent:alice:s1")
	require.NoError(t, err)
	assert.Contains(t, raw, `"app_name":"custom_session_agent"`)
	assert.Contains(t, raw, `"session_id":"s1"`)
	assert.Contains(t, raw, `"created_at"`)
	assert.Contains(t, raw, `"events":[]`)
	assert.Contains(t, raw, `"topic":"redis"`)
}

func TestStore_TTL(t *testing.T) {
	store, mr := newTestStore(t, func(o *Options) { o.TTL = time.Hour })
	ctx := context.Background()
	key := core.SessionKey{AppName: "app", UserID: "u", SessionID: "s"}

	_, err := store.Create(ctx, key, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("session:app:u:s"))

	mr.FastForward(30 * time.Minute)
	require.NoError(t, store.AppendEvent(ctx, key, core.NewUserMessageEvent("inv", "hi")))
	assert.Equal(t, time.Hour, mr.TTL("session:app:u:s"), "writes refresh the expiry")

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestStore_DefaultTTL(t *testing.T) {
	store, mr := newTestStore(t)

	_, err := store.Create(context.Background(), core.SessionKey{AppName: "app", UserID: "u", SessionID: "s"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, mr.TTL("session:app:u:s"))
}

func TestStore_EventsRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	key := core.SessionKey{AppName: "app", UserID: "u", SessionID: "s"}

	_, err := store.Create(ctx, key, nil)
	require.NoError(t, err)

	call := core.NewFunctionCallEvent("finance_assistant", "calculate_loan_payment", `{"principal":300000}`)
	require.NoError(t, store.AppendEvent(ctx, key, call))

	sess, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Len(t, sess.Events, 1)

	calls := sess.Events[0].GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "calculate_loan_payment", calls[0].Name)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	key := core.SessionKey{AppName: "app", UserID: "u", SessionID: "s"}

	_, err := store.Create(ctx, key, nil)
	require.NoError(t, err)

	const writers = 5
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			errs <- store.AppendEvent(ctx, key, core.NewUserMessageEvent("inv", "hello"))
		}()
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-errs)
	}

	sess, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Len(t, sess.Events, writers)
}

func TestNewFromURL_Invalid(t *testing.T) {
	_, err := NewFromURL(context.Background(), "http://nope")
	require.Error(t, err)
}

func TestNewFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewFromURL(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Create(context.Background(), core.SessionKey{AppName: "a", UserID: "u"}, nil)
	require.NoError(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "session:app:alice:s1", Key(core.SessionKey{AppName: "app", UserID: "alice", SessionID: "s1"}))
	assert.Equal(t, "session:app%3Ax:u%5B1%5D%2A:s%3F%25", Key(core.SessionKey{AppName: "app:x", UserID: "u[1]*", SessionID: "s?%"}))
	assert.NotEqual(t,
		Key(core.SessionKey{AppName: "app:x", UserID: "u1", SessionID: "s"}),
		Key(core.SessionKey{AppName: "app", UserID: "x:u1", SessionID: "s"}))
}

func TestStore_ListSkipsForeignRecords(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, core.SessionKey{AppName: "app", UserID: "u1", SessionID: "s1"}, nil)
	require.NoError(t, err)

	// a document written under this app's prefix by someone else
	require.NoError(t, mr.Set("session:app:u1:stray", `{"app_name":"other","user_id":"u1","session_id":"stray","state":{}}`))

	sessions, err := store.List(ctx, "app", "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
}
