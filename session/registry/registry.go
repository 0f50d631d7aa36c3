// Package registry maps session service URIs to store factories.
//
//	memory://                      in-process store
//	redis://host:6379/0            redis store (rediss:// for TLS)
//	sqlite:///var/lib/sessions.db  sqlite store (empty path: in-memory)
//
// Applications register additional backends with Register.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/session"
	"github.com/hupe1980/agentcookbook/session/redisstore"
	"github.com/hupe1980/agentcookbook/session/sqlstore"
)

// Options are handed to every factory.
type Options struct {
	// TTL for backends supporting expiry. Zero keeps the backend default, a
	// negative value disables expiry.
	TTL    time.Duration
	Logger logging.Logger
}

// Factory creates a store from a parsed URI.
type Factory func(ctx context.Context, uri *url.URL, opts Options) (core.SessionStore, error)

// Registry is a concurrency safe scheme to factory table.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New returns a registry with the built-in schemes registered.
func New() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("memory", memoryFactory)
	r.Register("redis", redisFactory)
	r.Register("rediss", redisFactory)
	r.Register("sqlite", sqliteFactory)
	return r
}

// Register binds scheme to factory, replacing any previous binding.
func (r *Registry) Register(scheme string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(scheme)] = factory
}

// Schemes lists the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open resolves uri to a store.
func (r *Registry) Open(ctx context.Context, uri string, optFns ...func(o *Options)) (core.SessionStore, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid session service uri %q: %w", uri, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("session service uri %q has no scheme", uri)
	}

	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(u.Scheme)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no session service registered for scheme %q (known: %s)", u.Scheme, strings.Join(r.Schemes(), ", "))
	}

	store, err := factory(ctx, u, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s session service: %w", u.Scheme, err)
	}

	opts.Logger.Info("session.service.opened", "scheme", u.Scheme)

	return store, nil
}

var defaultRegistry = New()

// Default returns the process wide registry.
func Default() *Registry { return defaultRegistry }

// Register binds scheme on the default registry.
func Register(scheme string, factory Factory) { defaultRegistry.Register(scheme, factory) }

// Schemes lists the schemes of the default registry.
func Schemes() []string { return defaultRegistry.Schemes() }

// Open resolves uri with the default registry.
func Open(ctx context.Context, uri string, optFns ...func(o *Options)) (core.SessionStore, error) {
	return defaultRegistry.Open(ctx, uri, optFns...)
}

func memoryFactory(context.Context, *url.URL, Options) (core.SessionStore, error) {
	return session.NewInMemoryStore(), nil
}

func redisFactory(ctx context.Context, u *url.URL, opts Options) (core.SessionStore, error) {
	return redisstore.NewFromURL(ctx, u.String(), func(o *redisstore.Options) {
		if opts.TTL != 0 {
			o.TTL = opts.TTL
		}
		o.Logger = opts.Logger
	})
}

func sqliteFactory(_ context.Context, u *url.URL, opts Options) (core.SessionStore, error) {
	dsn := u.Host + u.Path
	if dsn == "" {
		dsn = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	}
	return sqlstore.OpenSQLite(dsn, func(o *sqlstore.Options) { o.Logger = opts.Logger })
}
