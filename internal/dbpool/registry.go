// Package dbpool maintains one bounded connection pool per database schema.
// Pools are created lazily on first use with the schema's own credentials,
// so a home's queries can never run on another home's principal.
package dbpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/hearthhq/hearth/internal/platform"
	"github.com/hearthhq/hearth/internal/telemetry"
)

var (
	// ErrUnavailable means the schema's database could not be reached or the
	// pool could not be built. The failure is never cached; the next request
	// retries from scratch.
	ErrUnavailable = errors.New("database unavailable")

	// ErrSaturated means every connection in the schema's pool was busy for
	// the whole acquire window.
	ErrSaturated = errors.New("connection pool saturated")
)

// CredentialsFunc resolves the database principal for a schema. The registry
// never invents credentials; the mapping policy lives with the caller.
type CredentialsFunc func(schema string) (user, password string, err error)

// Options configures a Registry.
type Options struct {
	Engine         platform.Engine
	DSN            func(user, password string) string
	Credentials    CredentialsFunc
	Pool           platform.PoolOptions
	AcquireTimeout time.Duration
	QueryTimeout   time.Duration
	Logger         *slog.Logger
}

// Registry lazily opens and caches one Pool per schema. Concurrent first
// requests for the same schema are collapsed into a single pool construction.
type Registry struct {
	opts Options
	sfg  singleflight.Group

	mu    sync.RWMutex
	pools map[string]*Pool

	// replaced in tests to avoid dialing a real database
	open func(ctx context.Context, engine platform.Engine, dsn string, po platform.PoolOptions) (*sqlx.DB, error)
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 5 * time.Second
	}
	return &Registry{
		opts:  opts,
		pools: make(map[string]*Pool),
		open:  platform.Open,
	}
}

// Get returns the pool for schema, creating it on first use. Creation
// failures return ErrUnavailable and leave no trace in the registry.
func (r *Registry) Get(ctx context.Context, schema string) (*Pool, error) {
	r.mu.RLock()
	p, ok := r.pools[schema]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	v, err, _ := r.sfg.Do(schema, func() (any, error) {
		// Double-check after the singleflight barrier.
		r.mu.RLock()
		p, ok := r.pools[schema]
		r.mu.RUnlock()
		if ok {
			return p, nil
		}

		user, password, err := r.opts.Credentials(schema)
		if err != nil {
			return nil, fmt.Errorf("resolving credentials for schema %q: %w", schema, err)
		}

		db, err := r.open(ctx, r.opts.Engine, r.opts.DSN(user, password), r.opts.Pool)
		if err != nil {
			telemetry.PoolCreates.WithLabelValues("error").Inc()
			r.opts.Logger.Error("opening schema pool", "schema", schema, "error", err)
			return nil, fmt.Errorf("schema %q: %w", schema, ErrUnavailable)
		}

		p = &Pool{
			schema:         schema,
			engine:         r.opts.Engine,
			db:             db,
			acquireTimeout: r.opts.AcquireTimeout,
			queryTimeout:   r.opts.QueryTimeout,
		}

		r.mu.Lock()
		r.pools[schema] = p
		r.mu.Unlock()

		telemetry.PoolCreates.WithLabelValues("created").Inc()
		telemetry.PoolsOpen.Inc()
		r.opts.Logger.Info("opened schema pool", "schema", schema)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Pool), nil
}

// Seed inserts a pre-built pool, typically the admin pool the application
// opens during startup. Seeding an existing schema replaces the old pool
// without closing it; the caller owns the replaced handle.
func (r *Registry) Seed(p *Pool) {
	r.mu.Lock()
	_, existed := r.pools[p.schema]
	r.pools[p.schema] = p
	r.mu.Unlock()

	if !existed {
		telemetry.PoolsOpen.Inc()
	}
}

// Evict closes and removes the pool for schema, if present. Called when a
// home is torn down so its connections do not outlive it.
func (r *Registry) Evict(schema string) {
	r.mu.Lock()
	p, ok := r.pools[schema]
	delete(r.pools, schema)
	r.mu.Unlock()

	if ok {
		_ = p.db.Close()
		telemetry.PoolsOpen.Dec()
		r.opts.Logger.Info("closed schema pool", "schema", schema)
	}
}

// Len reports how many pools are currently open.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// Close shuts down every pool. Called once at process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for schema, p := range r.pools {
		if err := p.db.Close(); err != nil {
			r.opts.Logger.Error("closing schema pool", "schema", schema, "error", err)
		}
		delete(r.pools, schema)
		telemetry.PoolsOpen.Dec()
	}
}
