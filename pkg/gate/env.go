// Package gate projects canonical domain routes under /{tenant_name} and
// enforces tenant isolation on every request before handler code runs. A
// handler registered once against its canonical path inherits tenant
// resolution, header validation, and web-session fallback at projection
// time; handler authors never touch any of it.
package gate

import (
	"context"

	"github.com/hearthhq/hearth/internal/catalog"
	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/push"
	"github.com/hearthhq/hearth/internal/storage"
	"github.com/hearthhq/hearth/pkg/tenant"
)

// Deps bundles the per-process singletons domain handlers reach through the
// gate: the pool registry, the table reflector, object storage, and the push
// sender. There is exactly one Deps per process, owned by the application
// root; handlers receive it through the request context and never cache any
// part of it.
type Deps struct {
	Pools   *dbpool.Registry
	Catalog *catalog.Reflector
	Blobs   storage.Store
	Push    push.Sender
}

// Env is the tenant context the gate attaches to every request it admits.
type Env struct {
	// Tenant is the resolved registry record for the home in the URL.
	Tenant *tenant.Record

	// HomeID is the canonical home id, equal to Tenant.ID. Handlers use it
	// for storage keys and denormalized columns.
	HomeID int64

	// UserID identifies the caller when known: the userId header on API
	// calls (recorded as sent, not verified) or the user_id claim of a
	// validated web session.
	UserID string

	// PushToken carries the firebaseToken header when the client sent one.
	PushToken string

	Deps *Deps
}

// Pool returns the tenant's connection pool. Handlers must call this per
// request rather than holding on to the pool; the registry is the single
// owner.
func (e *Env) Pool(ctx context.Context) (*dbpool.Pool, error) {
	return e.Deps.Pools.Get(ctx, e.Tenant.DatabaseSchema)
}

// Table reflects one of the tenant's tables through the shared catalog.
func (e *Env) Table(ctx context.Context, name string) (*catalog.Table, error) {
	return e.Deps.Catalog.Table(ctx, e.Tenant.DatabaseSchema, name)
}

type envKey struct{}

// NewContext stores the tenant environment in the context.
func NewContext(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// FromContext extracts the tenant environment from the context. Returns nil
// on requests that did not pass through the gate.
func FromContext(ctx context.Context) *Env {
	v, _ := ctx.Value(envKey{}).(*Env)
	return v
}
