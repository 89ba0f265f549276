package notifications

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/internal/push"
	"github.com/hearthhq/hearth/pkg/gate"
)

// Handler provides the notifications API.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a notifications Handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger.With("component", "notifications")}
}

// Register adds the notification routes to the canonical route set.
func (h *Handler) Register(set *gate.RouteSet) {
	set.Handle(http.MethodGet, "/api/notifications/user/{userID}", "list_user_notifications", h.handleListForUser)
	set.Handle(http.MethodGet, "/api/notifications/user/{userID}/unread_count", "count_unread_notifications", h.handleUnreadCount)
	set.Handle(http.MethodPost, "/api/notifications/user", "create_user_notification", h.handleCreateForUser)
	set.Handle(http.MethodPut, "/api/notifications/user/{id}/read", "mark_notification_read", h.handleMarkRead)
	set.Handle(http.MethodDelete, "/api/notifications/user/{id}", "delete_user_notification", h.handleDeleteForUser)
	set.Handle(http.MethodGet, "/api/notifications/home", "list_home_notifications", h.handleListForHome)
	set.Handle(http.MethodPost, "/api/notifications/home", "create_home_notification", h.handleCreateForHome)
	set.Handle(http.MethodDelete, "/api/notifications/home/{id}", "delete_home_notification", h.handleDeleteForHome)
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

func (h *Handler) handleListForUser(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(r, "userID")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	items, total, err := store.ListForUser(r.Context(), userID, params.PageSize, params.Offset)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(r, "userID")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	total, err := store.UnreadCount(r.Context(), userID)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]int{"unread": total})
}

// UserNotificationRequest is the create payload for a resident notification.
type UserNotificationRequest struct {
	UserID   int64  `json:"user_id" validate:"required,gt=0"`
	Title    string `json:"title" validate:"required,max=255"`
	Body     string `json:"body" validate:"required,max=4000"`
	SenderID *int64 `json:"sender_id" validate:"omitempty,gt=0"`
}

func (h *Handler) handleCreateForUser(w http.ResponseWriter, r *http.Request) {
	store, env, ok := h.store(w, r)
	if !ok {
		return
	}

	var req UserNotificationRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	token, err := store.PushTokenFor(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	n, err := store.CreateForUser(r.Context(), UserParams{
		UserID:   req.UserID,
		Title:    req.Title,
		Body:     req.Body,
		SenderID: req.SenderID,
	})
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	if token != "" {
		h.send(r.Context(), env, []string{token}, n.Title, n.Body, map[string]string{
			"notification_id": strconv.FormatInt(n.ID, 10),
			"type":            "user",
		})
	}
	httpserver.Respond(w, http.StatusCreated, n)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid notification id")
		return
	}

	if err := store.MarkRead(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleDeleteForUser(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid notification id")
		return
	}

	if err := store.DeleteForUser(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleListForHome(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	items, total, err := store.ListForHome(r.Context(), params.PageSize, params.Offset)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

// HomeNotificationRequest is the create payload for a home-wide notification.
type HomeNotificationRequest struct {
	Title    string `json:"title" validate:"required,max=255"`
	Body     string `json:"body" validate:"required,max=4000"`
	SenderID *int64 `json:"sender_id" validate:"omitempty,gt=0"`
}

func (h *Handler) handleCreateForHome(w http.ResponseWriter, r *http.Request) {
	store, env, ok := h.store(w, r)
	if !ok {
		return
	}

	var req HomeNotificationRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	n, err := store.CreateForHome(r.Context(), HomeParams{
		Title:    req.Title,
		Body:     req.Body,
		SenderID: req.SenderID,
	})
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	tokens, err := store.PushTokens(r.Context())
	if err != nil {
		h.logger.Warn("push token listing failed", "error", err)
	} else {
		h.send(r.Context(), env, tokens, n.Title, n.Body, map[string]string{
			"notification_id": strconv.FormatInt(n.ID, 10),
			"type":            "home",
		})
	}
	httpserver.Respond(w, http.StatusCreated, n)
}

func (h *Handler) handleDeleteForHome(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid notification id")
		return
	}

	if err := store.DeleteForHome(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// send fans the notification out to device tokens. Delivery is best-effort:
// the row is already stored, so failures are logged and the request still
// succeeds.
func (h *Handler) send(ctx context.Context, env *gate.Env, tokens []string, title, body string, data map[string]string) {
	if env.Deps.Push == nil || len(tokens) == 0 {
		return
	}
	if err := env.Deps.Push.Send(ctx, tokens, push.Notification{Title: title, Body: body, Data: data}); err != nil {
		h.logger.Warn("push fanout failed", "tokens", len(tokens), "error", err)
	}
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}
	httpserver.WriteError(w, r, h.logger, err)
}
