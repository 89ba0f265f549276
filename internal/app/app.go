// Package app owns process wiring: it reads config, opens the registry
// database, builds the per-process singletons (pool registry, reflector,
// storage, tenant service), and runs the requested mode. Nothing here holds
// domain logic; handlers receive everything they need through the gate
// environment.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/audit"
	"github.com/hearthhq/hearth/internal/catalog"
	"github.com/hearthhq/hearth/internal/config"
	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/docs"
	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/internal/opsalert"
	"github.com/hearthhq/hearth/internal/platform"
	"github.com/hearthhq/hearth/internal/push"
	"github.com/hearthhq/hearth/internal/seed"
	"github.com/hearthhq/hearth/internal/storage"
	"github.com/hearthhq/hearth/internal/telemetry"
	"github.com/hearthhq/hearth/internal/tenantddl"
	"github.com/hearthhq/hearth/internal/webauth"
	"github.com/hearthhq/hearth/internal/webtoken"
	"github.com/hearthhq/hearth/internal/webui"
	"github.com/hearthhq/hearth/pkg/events"
	"github.com/hearthhq/hearth/pkg/gate"
	"github.com/hearthhq/hearth/pkg/homeindex"
	"github.com/hearthhq/hearth/pkg/notifications"
	"github.com/hearthhq/hearth/pkg/requests"
	"github.com/hearthhq/hearth/pkg/rooms"
	"github.com/hearthhq/hearth/pkg/tenant"
	"github.com/hearthhq/hearth/pkg/users"
)

// services are the per-process singletons shared by every mode.
type services struct {
	adminDB   *sqlx.DB
	adminPool *dbpool.Pool
	pools     *dbpool.Registry
	catalog   *catalog.Reflector
	blobs     storage.Store
	tenants   *tenant.Service
}

// Run is the main application entry point. It connects to infrastructure,
// bootstraps the system schemas, and starts the requested mode (api or seed).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting hearth",
		"mode", cfg.Mode,
		"engine", cfg.Engine(),
		"listen", cfg.ListenAddr(),
	)

	// Registry database, on the admin principal. Everything global lives
	// here: the home catalog, the audit log, and provisioning DDL.
	adminDB, err := platform.Open(ctx, cfg.Engine(), cfg.AdminDSN(), cfg.PoolOptions())
	if err != nil {
		return fmt.Errorf("connecting to registry database: %w", err)
	}
	defer adminDB.Close()

	if err := platform.Bootstrap(ctx, adminDB, cfg.Engine(), platform.BootstrapConfig{
		AdminPassword: cfg.DBAdminPassword,
		IndexPassword: cfg.IndexPassword,
	}); err != nil {
		return fmt.Errorf("bootstrapping system schemas: %w", err)
	}
	logger.Info("system schemas ready")

	// One bounded pool per schema, opened lazily with that schema's own
	// principal. The admin pool is seeded so registry traffic reuses the
	// startup handle instead of dialing a second one.
	pools := dbpool.NewRegistry(dbpool.Options{
		Engine:         cfg.Engine(),
		DSN:            cfg.SchemaDSN,
		Credentials:    schemaCredentials(cfg),
		Pool:           cfg.PoolOptions(),
		AcquireTimeout: cfg.AcquireTimeout,
		QueryTimeout:   cfg.QueryTimeout,
		Logger:         logger,
	})
	defer pools.Close()

	adminPool := dbpool.NewPool(adminDB, cfg.Engine(), platform.AdminSchema, cfg.AcquireTimeout, cfg.QueryTimeout)
	pools.Seed(adminPool)

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing object storage: %w", err)
	}

	tenants := tenant.NewService(tenant.Options{
		Store:        tenant.NewStore(adminDB, cfg.Engine()),
		DB:           adminDB,
		Engine:       cfg.Engine(),
		Provisioner:  platform.NewProvisioner(cfg.Engine()),
		Tables:       tenantddl.New(cfg.Engine()),
		Blobs:        blobs,
		Pools:        pools,
		DatabaseName: cfg.DBName,
		PasswordFor:  cfg.TenantPassword,
		CacheTTL:     cfg.TenantCacheTTL,
		Alerts:       opsalert.NewNotifier(cfg.SlackBotToken, cfg.SlackOpsChannel, cfg.SlackNotifyLevel, logger),
		Logger:       logger,
	})

	svc := &services{
		adminDB:   adminDB,
		adminPool: adminPool,
		pools:     pools,
		catalog:   catalog.NewReflector(pools),
		blobs:     blobs,
		tenants:   tenants,
	}

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, svc)
	case "seed":
		return seed.Run(ctx, seed.Options{
			Tenants: tenants,
			Pools:   pools,
			Logger:  logger,
		})
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// schemaCredentials maps a schema to the principal its pool connects as. The
// two system schemas use the credentials from config; every other schema is
// a home, whose principal is the schema name with the templated password.
func schemaCredentials(cfg *config.Config) dbpool.CredentialsFunc {
	return func(schema string) (string, string, error) {
		switch schema {
		case platform.AdminSchema:
			return cfg.DBAdminUser, cfg.DBAdminPassword, nil
		case platform.IndexSchema:
			return platform.IndexSchema, cfg.IndexPassword, nil
		default:
			return schema, cfg.TenantPassword(schema), nil
		}
	}
}

// newBlobStore builds the configured storage backend. Config validation has
// already pinned the provider to a known value.
func newBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.StorageProvider {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Options{
			Endpoint:   cfg.S3Endpoint,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Bucket:     cfg.S3Bucket,
			Region:     cfg.S3Region,
			UseSSL:     cfg.S3UseSSL,
			PublicRead: cfg.S3PublicRead,
			URLExpiry:  cfg.StorageURLExpiry,
			Timeout:    cfg.StorageTimeout,
		}, logger)
	default:
		return storage.NewLocalStore(cfg.LocalStorageDir, cfg.PublicBaseURL)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, svc *services) error {
	webSessions, err := webtoken.NewManager(cfg.WebJWTSecret, "web", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("WEB_JWT_SECRET: %w", err)
	}
	adminSessions, err := webtoken.NewManager(cfg.AdminJWTSecret, "admin", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("ADMIN_JWT_SECRET: %w", err)
	}

	// Push sender, a no-op unless FCM credentials are configured.
	var sender push.Sender
	if cfg.FCMCredentialsFile != "" {
		fcm, err := push.NewFCMSender(ctx, cfg.FCMCredentialsFile, logger)
		if err != nil {
			return fmt.Errorf("initializing push sender: %w", err)
		}
		sender = fcm
		logger.Info("push notifications enabled")
	} else {
		sender = &push.NoopSender{Logger: logger}
		logger.Info("push notifications disabled (FCM_CREDENTIALS_FILE not set)")
	}

	// Login rate limiting needs Redis; without it the limiter stays nil
	// and admits everything.
	var limiter *webauth.RateLimiter
	if cfg.RedisURL != "" {
		rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
		limiter = webauth.NewRateLimiter(rdb, 10, 15*time.Minute)
		logger.Info("login rate limiting enabled")
	} else {
		logger.Info("login rate limiting disabled (REDIS_URL not set)")
	}

	// Audit log writer (async, buffered).
	auditWriter := audit.NewWriter(svc.adminPool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	// The home_index pool is opened eagerly: discovery is the first call a
	// fresh client makes and should not pay the cold-start there.
	indexPool, err := svc.pools.Get(ctx, platform.IndexSchema)
	if err != nil {
		return fmt.Errorf("opening home_index pool: %w", err)
	}
	indexHandler := homeindex.NewHandler(homeindex.NewStore(indexPool), logger)

	metricsReg := telemetry.NewMetricsRegistry()
	srv := httpserver.NewServer(httpserver.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsPath:        cfg.MetricsPath,
	}, logger, svc.adminDB, metricsReg)

	// Canonical routes. Handlers register against the paths they would
	// occupy in a single-home deployment; the projector mounts all of them
	// under /{tenant_name} with the gate in front.
	set := gate.NewRouteSet()
	set.Handle(http.MethodGet, "/api/health", "home_health", handleHomeHealth)

	webauth.NewHandler(webSessions, limiter, logger).Register(set)
	events.NewHandler(logger).Register(set)
	users.NewHandler(logger).Register(set)
	notifications.NewHandler(logger).Register(set)
	requests.NewHandler(logger).Register(set)
	rooms.NewHandler(logger).Register(set)
	webui.NewHandler().Register(set)

	deps := &gate.Deps{
		Pools:   svc.pools,
		Catalog: svc.catalog,
		Blobs:   svc.blobs,
		Push:    sender,
	}
	projector := gate.NewProjector(gate.New(svc.tenants, webSessions, deps, logger))
	projector.Mount(srv.Router, set)

	// Discovery endpoints run in front of the gate: the caller does not yet
	// know which home it belongs to.
	srv.Router.Get("/api/home_index/get_home_by_phone", indexHandler.HandleLookup)
	srv.Router.Get("/api/users/get_user_home", indexHandler.HandleLookup)

	// Operator API: home lifecycle, the directory, and the audit trail.
	adminAuth := webauth.NewAdminHandler(adminSessions, cfg.AdminEmail, cfg.AdminPassword, auditWriter, logger)
	srv.Router.Route("/home/admin/api", func(r chi.Router) {
		r.Post("/auth/login", adminAuth.HandleLogin)
		r.Group(func(r chi.Router) {
			r.Use(adminAuth.Require)
			r.Mount("/tenants", tenant.NewHandler(svc.tenants, auditWriter, logger).Routes())
			r.Mount("/home_index", indexHandler.AdminRoutes())
			r.Mount("/audit", audit.NewHandler(auditWriter, logger).Routes())
		})
	})

	srv.Router.Get("/", handleRoot(svc.tenants, logger))

	index := docs.NewBuilder("hearth")
	index.Add("root", http.MethodGet, "/", "none")
	index.Add("health", http.MethodGet, "/health", "none")
	index.Add("api_health", http.MethodGet, "/api/health", "none")
	index.Add("get_home_by_phone", http.MethodGet, "/api/home_index/get_home_by_phone", "none")
	index.Add("get_user_home", http.MethodGet, "/api/users/get_user_home", "none")
	index.Add("operations_index", http.MethodGet, "/api/docs", "none")
	index.Add("admin_login", http.MethodPost, "/home/admin/api/auth/login", "none")
	index.Add("admin_list_homes", http.MethodGet, "/home/admin/api/tenants", "admin")
	index.Add("admin_create_home", http.MethodPost, "/home/admin/api/tenants", "admin")
	index.Add("admin_get_home", http.MethodGet, "/home/admin/api/tenants/{name}", "admin")
	index.Add("admin_delete_home", http.MethodDelete, "/home/admin/api/tenants/{name}", "admin")
	index.Add("admin_home_index", http.MethodGet, "/home/admin/api/home_index", "admin")
	index.Add("admin_audit_log", http.MethodGet, "/home/admin/api/audit", "admin")
	index.AddProjected(projector.Operations())
	srv.Router.Get("/api/docs", index.Handler())

	// The local backend serves its media directly; S3 URLs point at the
	// bucket and never come back here.
	if local, ok := svc.blobs.(*storage.LocalStore); ok {
		fs := http.StripPrefix("/media/", http.FileServer(http.Dir(local.Dir())))
		srv.Router.Get("/media/*", fs.ServeHTTP)
	}

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleHomeHealth is the tenant-scoped liveness probe. Reaching it at all
// proves the gate admitted the caller for this home.
func handleHomeHealth(w http.ResponseWriter, r *http.Request) {
	env := gate.FromContext(r.Context())
	if env == nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "tenant environment missing")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"home":    env.Tenant.Name,
		"home_id": env.HomeID,
	})
}

type homeLink struct {
	ID    int64             `json:"id"`
	Name  string            `json:"name"`
	Links map[string]string `json:"links"`
}

// handleRoot lists the known homes with links into their surfaces.
func handleRoot(tenants *tenant.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := tenants.List(r.Context())
		if err != nil {
			httpserver.WriteError(w, r, logger, err)
			return
		}

		homes := make([]homeLink, 0, len(recs))
		for _, rec := range recs {
			homes = append(homes, homeLink{
				ID:   rec.ID,
				Name: rec.Name,
				Links: map[string]string{
					"api":   "/" + rec.Name + "/api",
					"web":   "/" + rec.Name + "/web",
					"login": "/" + rec.Name + "/login",
				},
			})
		}

		httpserver.Respond(w, http.StatusOK, map[string]any{
			"service": "hearth",
			"homes":   homes,
			"docs":    "/api/docs",
			"health":  "/health",
		})
	}
}
