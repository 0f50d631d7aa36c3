// Package session houses the in-process core.SessionStore. Persistent
// backends live in sub-packages (redisstore, sqlstore) and are selected by
// URI through the registry package, so callers only depend on the
// core.SessionStore interface.
package session
