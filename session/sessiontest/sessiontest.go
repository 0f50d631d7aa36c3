// Package sessiontest provides a behavioral test suite shared by all
// core.SessionStore implementations.
package sessiontest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
)

// Run exercises store against the SessionStore contract. newStore must return
// an empty store.
func Run(t *testing.T, newStore func(t *testing.T) core.SessionStore) {
	t.Helper()

	ctx := context.Background()

	t.Run("create generates id", func(t *testing.T) {
		store := newStore(t)
		sess, err := store.Create(ctx, core.SessionKey{AppName: "app", UserID: "u1"}, map[string]any{"k": "v"})
		require.NoError(t, err)
		assert.NotEmpty(t, sess.ID)
		assert.Equal(t, "app", sess.AppName)
		assert.Equal(t, "u1", sess.UserID)
		assert.Equal(t, "v", sess.State["k"])
	})

	t.Run("create duplicate", func(t *testing.T) {
		store := newStore(t)
		key := core.SessionKey{AppName: "app", UserID: "u1", SessionID: "s1"}
		_, err := store.Create(ctx, key, nil)
		require.NoError(t, err)
		_, err = store.Create(ctx, key, nil)
		require.ErrorIs(t, err, core.ErrSessionExists)
	})

	t.Run("temp state is not persisted", func(t *testing.T) {
		store := newStore(t)
		key := core.SessionKey{AppName: "app", UserID: "u1", SessionID: "s1"}
		_, err := store.Create(ctx, key, map[string]any{"temp:scratch": 1, "keep": 2})
		require.NoError(t, err)

		require.NoError(t, store.ApplyDelta(ctx, key, map[string]any{"temp:x": "y", "color": "blue"}))

		sess, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.NotContains(t, sess.State, "temp:scratch")
		assert.NotContains(t, sess.State, "temp:x")
		assert.EqualValues(t, 2, sess.State["keep"])
		assert.Equal(t, "blue", sess.State["color"])
	})

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, core.SessionKey{AppName: "app", UserID: "u1", SessionID: "nope"})
		require.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("append event", func(t *testing.T) {
		store := newStore(t)
		key := core.SessionKey{AppName: "app", UserID: "u1", SessionID: "s1"}
		_, err := store.Create(ctx, key, nil)
		require.NoError(t, err)

		user := core.NewUserMessageEvent("inv-1", "hello")
		reply := core.NewMessageEvent("assistant_agent", "hi there")
		reply.InvocationID = "inv-1"
		reply.Actions.StateDelta = map[string]any{"greeting": "hi there", "temp:t": true}

		partial := core.NewMessageEvent("assistant_agent", "h")
		p := true
		partial.Partial = &p

		require.NoError(t, store.AppendEvent(ctx, key, user))
		require.NoError(t, store.AppendEvent(ctx, key, partial))
		require.NoError(t, store.AppendEvent(ctx, key, reply))

		sess, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.Len(t, sess.Events, 2)
		assert.Equal(t, "hello", sess.Events[0].Text())
		assert.Equal(t, "hi there", sess.Events[1].Text())
		assert.Equal(t, "assistant_agent", sess.Events[1].Author)
		assert.Equal(t, "hi there", sess.State["greeting"])
		assert.NotContains(t, sess.State, "temp:t")

		err = store.AppendEvent(ctx, core.SessionKey{AppName: "app", UserID: "u1", SessionID: "nope"}, user)
		require.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("list and delete", func(t *testing.T) {
		store := newStore(t)
		for _, k := range []core.SessionKey{
			{AppName: "app", UserID: "u1", SessionID: "a"},
			{AppName: "app", UserID: "u1", SessionID: "b"},
			{AppName: "app", UserID: "u2", SessionID: "c"},
			{AppName: "other", UserID: "u1", SessionID: "d"},
		} {
			_, err := store.Create(ctx, k, nil)
			require.NoError(t, err)
		}

		u1, err := store.List(ctx, "app", "u1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, ids(u1))

		all, err := store.List(ctx, "app", "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(all))

		require.NoError(t, store.Delete(ctx, core.SessionKey{AppName: "app", UserID: "u1", SessionID: "a"}))
		u1, err = store.List(ctx, "app", "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(u1))
	})

	t.Run("separator in ids does not alias", func(t *testing.T) {
		store := newStore(t)
		a := core.SessionKey{AppName: "app:x", UserID: "u1", SessionID: "s1"}
		b := core.SessionKey{AppName: "app", UserID: "x:u1", SessionID: "s1"}

		_, err := store.Create(ctx, a, map[string]any{"owner": "a"})
		require.NoError(t, err)
		_, err = store.Create(ctx, b, map[string]any{"owner": "b"})
		require.NoError(t, err)

		sess, err := store.Get(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, "a", sess.State["owner"])

		sess, err = store.Get(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, "b", sess.State["owner"])
	})

	t.Run("list stays inside app and user", func(t *testing.T) {
		store := newStore(t)
		for _, k := range []core.SessionKey{
			{AppName: "app", UserID: "u1", SessionID: "mine"},
			{AppName: "app:x", UserID: "u1", SessionID: "other-app"},
			{AppName: "app", UserID: "u1:evil", SessionID: "other-user"},
			{AppName: "app", UserID: "u2", SessionID: "u2"},
		} {
			_, err := store.Create(ctx, k, nil)
			require.NoError(t, err)
		}

		all, err := store.List(ctx, "app", "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"mine", "other-user", "u2"}, ids(all))

		u1, err := store.List(ctx, "app", "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"mine"}, ids(u1))

		glob, err := store.List(ctx, "app", "u[12]")
		require.NoError(t, err)
		assert.Empty(t, glob)

		star, err := store.List(ctx, "*", "")
		require.NoError(t, err)
		assert.Empty(t, star)
	})
}

func ids(sessions []*core.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID)
	}
	return out
}
