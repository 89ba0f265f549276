package dbpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/platform"
)

func testRegistry(t *testing.T) (*Registry, *int32) {
	t.Helper()

	r := NewRegistry(Options{
		Engine: platform.EngineSQLServer,
		DSN: func(user, password string) string {
			return "sqlserver://" + user + "@test"
		},
		Credentials: func(schema string) (string, string, error) {
			return schema, schema + "-secret", nil
		},
		Pool:           platform.PoolOptions{MaxOpenConns: 1},
		AcquireTimeout: 50 * time.Millisecond,
		QueryTimeout:   time.Second,
	})

	var opens int32
	r.open = func(ctx context.Context, engine platform.Engine, dsn string, po platform.PoolOptions) (*sqlx.DB, error) {
		atomic.AddInt32(&opens, 1)
		db, _, err := sqlmock.New()
		if err != nil {
			return nil, err
		}
		sdb := sqlx.NewDb(db, "sqlserver")
		if po.MaxOpenConns > 0 {
			sdb.SetMaxOpenConns(po.MaxOpenConns)
		}
		return sdb, nil
	}
	t.Cleanup(r.Close)
	return r, &opens
}

func TestGetCreatesPoolLazily(t *testing.T) {
	r, opens := testRegistry(t)

	if r.Len() != 0 {
		t.Fatalf("new registry holds %d pools, want 0", r.Len())
	}

	p, err := r.Get(context.Background(), "beresheet")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p.Schema() != "beresheet" {
		t.Errorf("Schema() = %q, want beresheet", p.Schema())
	}
	if got := atomic.LoadInt32(opens); got != 1 {
		t.Errorf("opener called %d times, want 1", got)
	}

	// Second call reuses the pool.
	p2, err := r.Get(context.Background(), "beresheet")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p2 != p {
		t.Error("second Get returned a different pool")
	}
	if got := atomic.LoadInt32(opens); got != 1 {
		t.Errorf("opener called %d times after reuse, want 1", got)
	}
}

func TestGetCollapsesConcurrentCreates(t *testing.T) {
	r, opens := testRegistry(t)

	const workers = 16
	var wg sync.WaitGroup
	pools := make([]*Pool, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pools[i], errs[i] = r.Get(context.Background(), "beresheet")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if pools[i] != pools[0] {
			t.Fatalf("worker %d got a different pool", i)
		}
	}
	if got := atomic.LoadInt32(opens); got != 1 {
		t.Errorf("opener called %d times under contention, want 1", got)
	}
	if r.Len() != 1 {
		t.Errorf("registry holds %d pools, want 1", r.Len())
	}
}

func TestGetKeepsSchemasSeparate(t *testing.T) {
	r, opens := testRegistry(t)

	a, err := r.Get(context.Background(), "beresheet")
	if err != nil {
		t.Fatalf("Get(beresheet) error: %v", err)
	}
	b, err := r.Get(context.Background(), "shalva")
	if err != nil {
		t.Fatalf("Get(shalva) error: %v", err)
	}
	if a == b {
		t.Error("distinct schemas share a pool")
	}
	if got := atomic.LoadInt32(opens); got != 2 {
		t.Errorf("opener called %d times, want 2", got)
	}
}

func TestGetDoesNotCacheFailure(t *testing.T) {
	r, _ := testRegistry(t)

	var calls int32
	r.open = func(ctx context.Context, engine platform.Engine, dsn string, po platform.PoolOptions) (*sqlx.DB, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, fmt.Errorf("dial tcp: connection refused")
		}
		db, _, err := sqlmock.New()
		if err != nil {
			return nil, err
		}
		return sqlx.NewDb(db, "sqlserver"), nil
	}

	if _, err := r.Get(context.Background(), "beresheet"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Get() error = %v, want ErrUnavailable", err)
	}
	if r.Len() != 0 {
		t.Fatalf("failed create left %d pools in registry", r.Len())
	}

	// The failure is not cached; the next request retries and succeeds.
	if _, err := r.Get(context.Background(), "beresheet"); err != nil {
		t.Fatalf("retry Get() error: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("registry holds %d pools after retry, want 1", r.Len())
	}
}

func TestGetCredentialsError(t *testing.T) {
	r, opens := testRegistry(t)
	r.opts.Credentials = func(schema string) (string, string, error) {
		return "", "", errors.New("no such principal")
	}

	if _, err := r.Get(context.Background(), "ghost"); err == nil {
		t.Fatal("Get() with failing credentials succeeded")
	}
	if got := atomic.LoadInt32(opens); got != 0 {
		t.Errorf("opener called %d times, want 0", got)
	}
}

func TestEvictClosesPool(t *testing.T) {
	r, opens := testRegistry(t)

	if _, err := r.Get(context.Background(), "beresheet"); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	r.Evict("beresheet")
	if r.Len() != 0 {
		t.Fatalf("registry holds %d pools after evict, want 0", r.Len())
	}

	// Next Get builds a fresh pool.
	if _, err := r.Get(context.Background(), "beresheet"); err != nil {
		t.Fatalf("Get() after evict error: %v", err)
	}
	if got := atomic.LoadInt32(opens); got != 2 {
		t.Errorf("opener called %d times, want 2", got)
	}
}

func TestAcquireSaturation(t *testing.T) {
	r, _ := testRegistry(t)

	p, err := r.Get(context.Background(), "beresheet")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	// The pool allows a single connection; hold it.
	conn, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer conn.Close()

	_, err = p.Acquire(context.Background())
	if !errors.Is(err, ErrSaturated) {
		t.Fatalf("second Acquire() error = %v, want ErrSaturated", err)
	}

	// Releasing the connection makes acquisition succeed again.
	_ = conn.Close()
	conn2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after release error: %v", err)
	}
	_ = conn2.Close()
}

func TestQueryCtxAppliesTimeout(t *testing.T) {
	r, _ := testRegistry(t)

	p, err := r.Get(context.Background(), "beresheet")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	ctx, cancel := p.QueryCtx(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("QueryCtx() context has no deadline")
	}
	if remaining := time.Until(deadline); remaining > time.Second {
		t.Errorf("deadline %v from now, want <= 1s", remaining)
	}
}
