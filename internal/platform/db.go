package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver
	_ "github.com/sijms/go-ora/v2"      // registers the "oracle" driver
)

func init() {
	// go-ora is not in sqlx's built-in bind table. Queries are written with
	// "?" placeholders and rebound per driver before execution.
	sqlx.BindDriver("oracle", sqlx.NAMED)
}

// PoolOptions bound a connection pool. Zero values leave the driver default.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open opens and pings a database handle for the given engine, applying pool
// limits. The ping uses the caller's context so startup and lazy pool
// creation both honor their deadlines.
func Open(ctx context.Context, engine Engine, dsn string, opts PoolOptions) (*sqlx.DB, error) {
	db, err := sqlx.Open(engine.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s handle: %w", engine, err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging %s: %w", engine, err)
	}

	return db, nil
}

// Rebind translates "?" placeholders into the engine's native style
// (@pN for SQL Server, :argN for Oracle).
func Rebind(engine Engine, query string) string {
	return sqlx.Rebind(sqlx.BindType(engine.DriverName()), query)
}
