package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/opsalert"
	"github.com/hearthhq/hearth/internal/platform"
	"github.com/hearthhq/hearth/internal/storage"
	"github.com/hearthhq/hearth/internal/telemetry"
)

// unwindTimeout bounds the cleanup that runs after a provisioning step
// fails. Cleanup must not inherit the request deadline that may already
// have expired.
const unwindTimeout = time.Minute

// Provisioner is the subset of the platform DDL provisioner the service
// drives during create and delete.
type Provisioner interface {
	PrincipalExists(ctx context.Context, db *sqlx.DB, name string) (bool, error)
	EnsurePrincipal(ctx context.Context, db *sqlx.DB, name, password string) error
	DropObjects(ctx context.Context, db *sqlx.DB, name string) error
	DropPrincipal(ctx context.Context, db *sqlx.DB, name string) error
	ObjectCount(ctx context.Context, db *sqlx.DB, name string) (int, error)
}

// Options wires a Service.
type Options struct {
	Store       *Store
	DB          *sqlx.DB // admin connection; all DDL runs here
	Engine      platform.Engine
	Provisioner Provisioner
	Tables      TableBootstrapper
	Blobs       storage.Store
	Pools       *dbpool.Registry // evicted on delete; may be nil in tests

	// DatabaseName is the physical database every schema lives in,
	// recorded on each registry row.
	DatabaseName string

	// PasswordFor derives the principal password for a home name.
	PasswordFor func(name string) string

	// CacheTTL bounds registry lookup staleness. Zero disables caching.
	CacheTTL time.Duration

	Alerts *opsalert.Notifier
	Logger *slog.Logger
}

// Service owns the home lifecycle: registry lookups on the request path, and
// the provision/teardown choreography behind the operator API.
type Service struct {
	store  *Store
	cache  *recordCache
	db     *sqlx.DB
	engine platform.Engine
	prov   Provisioner
	tables TableBootstrapper
	blobs  storage.Store
	pools  *dbpool.Registry

	databaseName string
	passwordFor  func(name string) string

	alerts *opsalert.Notifier
	logger *slog.Logger
}

// NewService creates a Service from its wiring options.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	passwordFor := opts.PasswordFor
	if passwordFor == nil {
		passwordFor = func(name string) string { return name }
	}
	return &Service{
		store:        opts.Store,
		cache:        newRecordCache(opts.CacheTTL),
		db:           opts.DB,
		engine:       opts.Engine,
		prov:         opts.Provisioner,
		tables:       opts.Tables,
		blobs:        opts.Blobs,
		pools:        opts.Pools,
		databaseName: opts.DatabaseName,
		passwordFor:  passwordFor,
		alerts:       opts.Alerts,
		logger:       logger.With("component", "tenant"),
	}
}

// LookupByName resolves a home by name, serving from the short-TTL cache
// when possible. Misses are never cached; a home created moments ago must
// resolve on the next request.
func (s *Service) LookupByName(ctx context.Context, name string) (*Record, error) {
	if rec, ok := s.cache.getByName(name); ok {
		return rec, nil
	}
	rec, err := s.store.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.put(rec)
	return rec, nil
}

// LookupByID resolves a home by registry id.
func (s *Service) LookupByID(ctx context.Context, id int64) (*Record, error) {
	if rec, ok := s.cache.getByID(id); ok {
		return rec, nil
	}
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.put(rec)
	return rec, nil
}

// List returns every registered home.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	return s.store.List(ctx)
}

// CreateParams are the inputs to provisioning a new home.
type CreateParams struct {
	Name          string
	DatabaseType  string // optional; must match the deployment engine when set
	AdminEmail    string
	AdminPassword string
}

// Create provisions a new home: database principal and schema, domain
// tables, the registry row, and the object-storage prefix. The registry row
// is written only after every database artifact exists, so its presence
// marks a completed provisioning run. Any failure unwinds the steps that
// already ran.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Record, error) {
	if err := ValidateName(params.Name); err != nil {
		telemetry.TenantOps.WithLabelValues("provision", "rejected").Inc()
		return nil, err
	}
	if params.DatabaseType != "" {
		engine, err := platform.ParseEngine(params.DatabaseType)
		if err != nil || engine != s.engine {
			telemetry.TenantOps.WithLabelValues("provision", "rejected").Inc()
			return nil, fmt.Errorf("%w: this deployment runs on %s", ErrUnsupportedEngine, s.engine)
		}
	}

	// Probe the registry up front so a duplicate name fails before any DDL
	// runs. The unique constraint on admin.home remains the backstop.
	switch _, err := s.store.GetByName(ctx, params.Name); {
	case err == nil:
		telemetry.TenantOps.WithLabelValues("provision", "rejected").Inc()
		return nil, ErrNameTaken
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	log := s.logger.With("home", params.Name)
	log.Info("provisioning home")

	if err := s.prov.EnsurePrincipal(ctx, s.db, params.Name, s.passwordFor(params.Name)); err != nil {
		return nil, s.provisionFailed(ctx, params.Name, nil, "creating principal", err)
	}
	if err := s.tables.CreateTables(ctx, s.db, params.Name); err != nil {
		return nil, s.provisionFailed(ctx, params.Name, nil, "creating tables", err)
	}

	rec := &Record{
		Name:              params.Name,
		DatabaseName:      s.databaseName,
		DatabaseType:      string(s.engine),
		DatabaseSchema:    params.Name,
		AdminUserEmail:    params.AdminEmail,
		AdminUserPassword: params.AdminPassword,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrNameTaken) {
			// Lost a race with a concurrent create; its artifacts are live,
			// so unwind nothing.
			telemetry.TenantOps.WithLabelValues("provision", "rejected").Inc()
			return nil, err
		}
		return nil, s.provisionFailed(ctx, params.Name, nil, "inserting registry row", err)
	}

	if err := s.blobs.EnsurePrefix(ctx, rec.ID); err != nil {
		return nil, s.provisionFailed(ctx, params.Name, rec, "creating storage prefix", err)
	}

	s.cache.purge()
	telemetry.TenantOps.WithLabelValues("provision", "ok").Inc()
	log.Info("home provisioned", "home_id", rec.ID)
	s.alerts.Info(ctx, fmt.Sprintf("home %q provisioned (id %d)", rec.Name, rec.ID))
	return rec, nil
}

// provisionFailed records a failed create, unwinds the completed steps, and
// returns the error the caller should surface. rec is non-nil once the
// registry row was written.
func (s *Service) provisionFailed(ctx context.Context, name string, rec *Record, step string, cause error) error {
	telemetry.TenantOps.WithLabelValues("provision", "error").Inc()
	s.logger.Error("home provisioning failed", "home", name, "step", step, "error", cause)
	s.alerts.ProvisioningFault(ctx, "provision", name, cause)

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unwindTimeout)
	defer cancel()
	s.unwind(cleanupCtx, name, rec)

	return fmt.Errorf("%s for home %s: %w", step, name, cause)
}

// unwind best-effort reverses provisioning: registry row, storage prefix,
// schema objects, principal. Every step tolerates the artifact being absent.
func (s *Service) unwind(ctx context.Context, name string, rec *Record) {
	if rec != nil && rec.ID != 0 {
		if err := s.store.Delete(ctx, name); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Error("unwind: deleting registry row", "home", name, "error", err)
		}
		if err := s.blobs.RemovePrefix(ctx, rec.ID); err != nil {
			s.logger.Error("unwind: removing storage prefix", "home", name, "error", err)
		}
	}
	if err := s.prov.DropObjects(ctx, s.db, name); err != nil {
		s.logger.Error("unwind: dropping schema objects", "home", name, "error", err)
	}
	if err := s.prov.DropPrincipal(ctx, s.db, name); err != nil {
		s.logger.Error("unwind: dropping principal", "home", name, "error", err)
	}
}

// Delete tears a home down in reverse provisioning order: registry row
// first (after which no new request can resolve the home), then storage,
// schema objects, and the principal. Teardown is idempotent; deleting a home
// whose record is already gone resumes cleanup of whatever remains, and a
// home with no trace at all reports ErrNotFound. Residual artifacts after a
// full pass surface as ErrTeardownIncomplete.
func (s *Service) Delete(ctx context.Context, name string) error {
	rec, err := s.store.GetByName(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if rec == nil {
		exists, err := s.prov.PrincipalExists(ctx, s.db, name)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		// Record gone but the principal survives: a previous teardown died
		// midway. Resume it.
		s.logger.Warn("resuming interrupted teardown", "home", name)
	}

	log := s.logger.With("home", name)
	log.Info("removing home")

	if s.pools != nil {
		s.pools.Evict(name)
	}
	s.cache.purge()

	var residue []string

	if rec != nil {
		if err := s.store.Delete(ctx, name); err != nil && !errors.Is(err, ErrNotFound) {
			telemetry.TenantOps.WithLabelValues("teardown", "error").Inc()
			return fmt.Errorf("deleting registry row for %s: %w", name, err)
		}

		if err := s.blobs.RemovePrefix(ctx, rec.ID); err != nil {
			residue = append(residue, fmt.Sprintf("storage prefix: %v", err))
		} else if empty, err := s.blobs.PrefixEmpty(ctx, rec.ID); err != nil {
			residue = append(residue, fmt.Sprintf("storage prefix check: %v", err))
		} else if !empty {
			residue = append(residue, "storage prefix not empty")
		}
	}

	if err := s.prov.DropObjects(ctx, s.db, name); err != nil {
		residue = append(residue, fmt.Sprintf("schema objects: %v", err))
	}
	if err := s.prov.DropPrincipal(ctx, s.db, name); err != nil {
		residue = append(residue, fmt.Sprintf("principal: %v", err))
	}

	if n, err := s.prov.ObjectCount(ctx, s.db, name); err != nil {
		residue = append(residue, fmt.Sprintf("object count: %v", err))
	} else if n > 0 {
		residue = append(residue, fmt.Sprintf("%d schema objects remain", n))
	}
	if exists, err := s.prov.PrincipalExists(ctx, s.db, name); err != nil {
		residue = append(residue, fmt.Sprintf("principal check: %v", err))
	} else if exists {
		residue = append(residue, "principal remains")
	}

	if len(residue) > 0 {
		telemetry.TenantOps.WithLabelValues("teardown", "error").Inc()
		err := fmt.Errorf("%w: %s", ErrTeardownIncomplete, strings.Join(residue, "; "))
		log.Error("home teardown incomplete", "residue", residue)
		s.alerts.ProvisioningFault(ctx, "teardown", name, err)
		return err
	}

	telemetry.TenantOps.WithLabelValues("teardown", "ok").Inc()
	log.Info("home removed")
	return nil
}
