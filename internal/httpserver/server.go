package httpserver

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the HTTP server shell.
type Options struct {
	CORSAllowedOrigins []string
	MetricsPath        string
}

// Server is the outer HTTP shell: global middleware, health endpoints, and
// the Prometheus exporter. Home-scoped routes, the admin API, and the root
// listing are mounted on Router by the application after construction.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	AdminDB   *sqlx.DB
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer creates the HTTP shell with middleware and health/metrics
// endpoints.
func NewServer(opts Options, logger *slog.Logger, adminDB *sqlx.DB, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		AdminDB:   adminDB,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	// Global middleware
	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "homeID", "userId", "firebaseToken"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (unauthenticated). /health is pure liveness; the API
	// variant also reports registry database connectivity and uptime.
	s.Router.Get("/health", s.handleHealth)
	s.Router.Get("/api/health", s.handleAPIHealth)

	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	s.Router.Handle(metricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// apiHealthResponse is the JSON shape returned by /api/health.
type apiHealthResponse struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	Database        string  `json:"database"`
	DatabaseLatency float64 `json:"database_latency_ms"`
}

func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uptime := time.Since(s.startedAt)

	resp := apiHealthResponse{
		Status:        "ok",
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
	}

	dbStart := time.Now()
	if err := s.AdminDB.PingContext(ctx); err != nil {
		s.Logger.Error("health check: registry database ping failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "error"
	} else {
		resp.Database = "ok"
	}
	resp.DatabaseLatency = math.Round(float64(time.Since(dbStart).Microseconds())/10) / 100 // ms with 2 decimal places

	Respond(w, http.StatusOK, resp)
}
