package homeindex

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/httpserver"
)

// Handler serves phone-number discovery and the operator CRUD surface for
// the directory.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler creates a Handler over the index store.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger.With("component", "homeindex")}
}

type lookupResponse struct {
	HomeID      int64  `json:"home_id"`
	HomeName    string `json:"home_name"`
	PhoneNumber string `json:"phone_number"`
}

// HandleLookup answers the public discovery question: which home does this
// phone number belong to? It is mounted twice (/api/home_index/
// get_home_by_phone and the legacy /api/users/get_user_home alias) and runs
// in front of the tenant gate because the caller does not yet know its home.
// The response echoes the phone number in normalized form.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone_number")
	if phone == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "phone_number query parameter is required")
		return
	}

	entry, err := h.store.Get(r.Context(), phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "phone number is not registered to any home")
			return
		}
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, lookupResponse{
		HomeID:      entry.HomeID,
		HomeName:    entry.HomeName,
		PhoneNumber: entry.PhoneNumber,
	})
}

// AdminRoutes returns the operator CRUD routes for the directory, mounted
// behind the admin bearer-token middleware.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleUpsert)
	r.Route("/{phone}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
	})
	return r
}

// UpsertRequest is the operator payload for writing a directory entry.
type UpsertRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,max=32"`
	HomeID      int64  `json:"home_id" validate:"required,gt=0"`
	HomeName    string `json:"home_name" validate:"required,max=50"`
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req UpsertRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	entry, err := h.store.Upsert(r.Context(), req.PhoneNumber, req.HomeID, req.HomeName)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, entry)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	entries, total, err := h.store.List(r.Context(), params.PageSize, params.Offset)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(entries, params, total))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.Get(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "phone number is not indexed")
			return
		}
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, entry)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "phone")); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "phone number is not indexed")
			return
		}
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}
