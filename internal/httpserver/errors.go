package httpserver

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/catalog"
	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
	"github.com/hearthhq/hearth/internal/storage"
)

// WriteError translates infrastructure errors into the standard error
// envelope. Domain handlers deal with their own not-found and validation
// cases and fall through to WriteError for everything else, so the mapping
// from failure to status code lives in exactly one place. Server-side
// faults are logged with the home name and path; responses carry the error
// kind, never internal detail.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	log := logger.With("path", r.URL.Path)
	if name := chi.URLParam(r, "tenant_name"); name != "" {
		log = log.With("home", name)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		RespondError(w, http.StatusGatewayTimeout, "timeout", "the operation timed out")

	case errors.Is(err, dbpool.ErrUnavailable):
		log.Error("database unavailable", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "pool_unavailable", "database is unavailable, retry shortly")

	case errors.Is(err, dbpool.ErrSaturated):
		RespondError(w, http.StatusServiceUnavailable, "pool_saturated", "all database connections are busy, retry shortly")

	case errors.Is(err, catalog.ErrTableMissing), platform.IsMissingObject(err):
		log.Error("table missing; home schema may be incompletely provisioned", "error", err)
		RespondError(w, http.StatusInternalServerError, "table_missing", "a required table is missing")

	case errors.Is(err, storage.ErrUnavailable):
		log.Error("storage backend failed", "error", err)
		RespondError(w, http.StatusBadGateway, "storage_failed", "media storage is unavailable")

	case errors.Is(err, sql.ErrNoRows):
		RespondError(w, http.StatusNotFound, "not_found", "no such record")

	case platform.IsUniqueViolation(err):
		RespondError(w, http.StatusConflict, "conflict", "a conflicting record already exists")

	default:
		log.Error("request failed", "error", err)
		RespondError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
