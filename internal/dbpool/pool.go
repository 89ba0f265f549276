package dbpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/platform"
)

// Pool wraps the bounded *sqlx.DB for one schema.
type Pool struct {
	schema         string
	engine         platform.Engine
	db             *sqlx.DB
	acquireTimeout time.Duration
	queryTimeout   time.Duration
}

// NewPool wraps an already-open handle. The application uses this for the
// admin pool it opens during startup; tests use it to back pools with mock
// databases.
func NewPool(db *sqlx.DB, engine platform.Engine, schema string, acquireTimeout, queryTimeout time.Duration) *Pool {
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	return &Pool{
		schema:         schema,
		engine:         engine,
		db:             db,
		acquireTimeout: acquireTimeout,
		queryTimeout:   queryTimeout,
	}
}

// Schema returns the schema this pool is bound to.
func (p *Pool) Schema() string { return p.schema }

// Engine returns the SQL engine behind the pool.
func (p *Pool) Engine() platform.Engine { return p.engine }

// DB exposes the underlying handle for store code.
func (p *Pool) DB() *sqlx.DB { return p.db }

// Rebind translates "?" placeholders to the engine's native style.
func (p *Pool) Rebind(query string) string {
	return platform.Rebind(p.engine, query)
}

// Acquire dedicates a single connection to the caller, waiting at most the
// configured acquire timeout. A pool that cannot hand out a connection in
// that window is saturated; the caller maps that to a retryable 503.
func (p *Pool) Acquire(ctx context.Context) (*sqlx.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	conn, err := p.db.Connx(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("schema %q: %w", p.schema, ErrSaturated)
		}
		return nil, fmt.Errorf("schema %q: %w", p.schema, ErrUnavailable)
	}
	return conn, nil
}

// QueryCtx derives a context carrying the per-operation query timeout.
// Callers must cancel it when the operation completes.
func (p *Pool) QueryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.queryTimeout)
}
