package tenant

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/audit"
	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/internal/webtoken"
)

// Handler serves the operator API for managing homes. It is mounted behind
// the admin bearer-token middleware; nothing here is reachable by residents.
type Handler struct {
	svc    *Service
	audit  *audit.Writer
	logger *slog.Logger
}

// NewHandler creates a Handler over the tenant service.
func NewHandler(svc *Service, auditor *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, audit: auditor, logger: logger}
}

// Routes returns a chi.Router with the home management routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{name}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
	})
	return r
}

// CreateRequest is the operator payload for provisioning a new home.
type CreateRequest struct {
	Name          string `json:"name" validate:"required,max=50"`
	DatabaseType  string `json:"database_type" validate:"omitempty,oneof=sqlserver oracle"`
	AdminEmail    string `json:"admin_user_email" validate:"required,email"`
	AdminPassword string `json:"admin_user_password" validate:"required,min=4"`
}

// actor names the authenticated operator for the audit trail.
func actor(r *http.Request) string {
	if claims := webtoken.FromContext(r.Context()); claims != nil && claims.PhoneNumber != "" {
		return claims.PhoneNumber
	}
	return "admin"
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rec, err := h.svc.Create(r.Context(), CreateParams{
		Name:          req.Name,
		DatabaseType:  req.DatabaseType,
		AdminEmail:    req.AdminEmail,
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidName), errors.Is(err, ErrUnsupportedEngine):
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		case errors.Is(err, ErrNameTaken):
			httpserver.RespondError(w, http.StatusConflict, "conflict", err.Error())
		default:
			h.logger.Error("creating home", "home", req.Name, "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to provision home")
		}
		return
	}

	h.audit.LogRequest(r, actor(r), "home.create", rec.Name, fmt.Sprintf("home_id=%d", rec.ID))
	httpserver.Respond(w, http.StatusCreated, rec)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error("listing homes", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list homes")
		return
	}
	httpserver.Respond(w, http.StatusOK, recs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rec, err := h.svc.LookupByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "home not found")
			return
		}
		h.logger.Error("getting home", "home", name, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to load home")
		return
	}
	httpserver.Respond(w, http.StatusOK, rec)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.svc.Delete(r.Context(), name); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "home not found")
		case errors.Is(err, ErrTeardownIncomplete):
			h.audit.LogRequest(r, actor(r), "home.delete_incomplete", name, err.Error())
			httpserver.RespondError(w, http.StatusInternalServerError, "teardown_incomplete", err.Error())
		default:
			h.logger.Error("deleting home", "home", name, "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to remove home")
		}
		return
	}

	h.audit.LogRequest(r, actor(r), "home.delete", name, "")
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}
