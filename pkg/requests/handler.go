package requests

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/internal/storage"
	"github.com/hearthhq/hearth/pkg/gate"
)

// Handler provides the service-requests API.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a requests Handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger.With("component", "requests")}
}

// Register adds the request routes to the canonical route set.
func (h *Handler) Register(set *gate.RouteSet) {
	set.Handle(http.MethodGet, "/api/requests", "list_requests", h.handleList)
	set.Handle(http.MethodPost, "/api/requests", "create_request", h.handleCreate)
	set.Handle(http.MethodGet, "/api/requests/{id}", "get_request", h.handleGet)
	set.Handle(http.MethodPut, "/api/requests/{id}/status", "update_request_status", h.handleSetStatus)
	set.Handle(http.MethodDelete, "/api/requests/{id}", "delete_request", h.handleDelete)
	set.Handle(http.MethodGet, "/api/requests/{id}/messages", "list_request_messages", h.handleMessages)
	set.Handle(http.MethodPost, "/api/requests/{id}/messages", "add_request_message", h.handleAddMessage)
	set.Handle(http.MethodPost, "/api/requests/{id}/messages/media", "add_request_media_message", h.handleAddMediaMessage)
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*Store, *gate.Env, bool) {
	env := gate.FromContext(r.Context())
	if env == nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "tenant environment missing")
		return nil, nil, false
	}
	pool, err := env.Pool(r.Context())
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return nil, nil, false
	}
	return NewStore(pool, env.Tenant.DatabaseSchema), env, true
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	filters := Filters{Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user_id")
			return
		}
		filters.UserID = &userID
	}

	items, total, err := store.List(r.Context(), filters, params.PageSize, params.Offset)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

// CreateRequest is the payload opening a service request.
type CreateRequest struct {
	UserID         int64  `json:"user_id" validate:"required,gt=0"`
	ProviderTypeID *int64 `json:"provider_type_id" validate:"omitempty,gt=0"`
	Subject        string `json:"subject" validate:"required,max=500"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	created, err := store.Create(r.Context(), CreateParams{
		UserID:         req.UserID,
		ProviderTypeID: req.ProviderTypeID,
		Subject:        req.Subject,
	})
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, created)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid request id")
		return
	}

	req, err := store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, req)
}

// StatusRequest moves a request between states.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open in_progress closed"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid request id")
		return
	}

	var req StatusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	updated, err := store.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid request id")
		return
	}

	if err := store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid request id")
		return
	}

	items, err := store.Messages(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

// MessageRequest is a plain text chat message. Media messages go through the
// multipart endpoint instead.
type MessageRequest struct {
	SenderID int64  `json:"sender_id" validate:"required,gt=0"`
	Body     string `json:"body" validate:"required,max=4000"`
}

func (h *Handler) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid request id")
		return
	}

	var req MessageRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	msg, err := store.AddMessage(r.Context(), id, MessageParams{
		SenderID: req.SenderID,
		Body:     &req.Body,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, msg)
}

// handleAddMediaMessage accepts a multipart form: the media file plus a
// sender_id field and an optional body caption. The message row is written
// first so its id can name the blob.
func (h *Handler) handleAddMediaMessage(w http.ResponseWriter, r *http.Request) {
	store, env, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid request id")
		return
	}

	data, filename, contentType, err := httpserver.ReadUpload(r, "media")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	senderID, err := strconv.ParseInt(r.FormValue("sender_id"), 10, 64)
	if err != nil || senderID <= 0 {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "sender_id is required")
		return
	}
	var body *string
	if caption := r.FormValue("body"); caption != "" {
		body = &caption
	}

	msg, err := store.AddMessage(r.Context(), id, MessageParams{SenderID: senderID, Body: body})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	key := storage.RequestMediaKey(env.HomeID, id, msg.ID, storage.ExtFromFilename(filename, contentType))
	url, err := env.Deps.Blobs.Upload(r.Context(), key, data, contentType)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	if err := store.SetMessageMediaURL(r.Context(), msg.ID, url); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	msg.MediaURL = &url
	httpserver.Respond(w, http.StatusCreated, msg)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "request not found")
		return
	}
	httpserver.WriteError(w, r, h.logger, err)
}
