package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/internal/platform"
	"github.com/hearthhq/hearth/internal/storage"
	"github.com/hearthhq/hearth/pkg/gate"
	"github.com/hearthhq/hearth/pkg/homeindex"
)

// Handler provides the users API. Phone writes are mirrored into the
// cross-home directory so login discovery keeps working; directory failures
// are logged but never fail the user write itself.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a users Handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger.With("component", "users")}
}

// Register adds the user routes to the canonical route set.
func (h *Handler) Register(set *gate.RouteSet) {
	set.Handle(http.MethodGet, "/api/users", "list_users", h.handleList)
	set.Handle(http.MethodPost, "/api/users", "create_user", h.handleCreate)
	set.Handle(http.MethodGet, "/api/users/by_phone", "get_user_by_phone", h.handleGetByPhone)
	set.Handle(http.MethodGet, "/api/users/{id}", "get_user", h.handleGet)
	set.Handle(http.MethodPut, "/api/users/{id}", "update_user", h.handleUpdate)
	set.Handle(http.MethodDelete, "/api/users/{id}", "delete_user", h.handleDelete)
	set.Handle(http.MethodPost, "/api/users/{id}/photo", "upload_user_photo", h.handleUploadPhoto)
	set.Handle(http.MethodPost, "/api/users/{id}/push_token", "register_push_token", h.handlePushToken)
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

// UserRequest is the create/update payload. Password is optional: residents
// provisioned by an admin may have no credential until they first log in
// through a device.
type UserRequest struct {
	PhoneNumber string  `json:"phone_number" validate:"required,max=32"`
	Email       *string `json:"email" validate:"omitempty,email"`
	FullName    string  `json:"full_name" validate:"required,max=255"`
	Password    string  `json:"password" validate:"omitempty,min=4,max=128"`
	Role        string  `json:"role" validate:"omitempty,max=50"`
	Apartment   *string `json:"apartment" validate:"omitempty,max=50"`
}

func (req *UserRequest) params() (Params, error) {
	p := Params{
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		FullName:    req.FullName,
		Role:        req.Role,
		Apartment:   req.Apartment,
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return Params{}, err
		}
		hashed := string(hash)
		p.PasswordHash = &hashed
	}
	return p, nil
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

	items, total, err := store.List(r.Context(), params.PageSize, params.Offset)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	store, env, ok := h.store(w, r)
	if !ok {
		return
	}

	var req UserRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	params, err := req.params()
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	user, err := store.Create(r.Context(), params)
	if err != nil {
		h.writeStoreError(w, r, err, "user not found")
		return
	}

	h.indexUpsert(r.Context(), env, user.PhoneNumber)
	httpserver.Respond(w, http.StatusCreated, user)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	user, err := store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "user not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, user)
}

func (h *Handler) handleGetByPhone(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	phone := r.URL.Query().Get("phone_number")
	if phone == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "phone_number is required")
		return
	}

	user, err := store.GetByPhone(r.Context(), phone)
	if err != nil {
		h.writeStoreError(w, r, err, "user not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, user)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	store, env, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	var req UserRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	existing, err := store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "user not found")
		return
	}

	params, err := req.params()
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	user, err := store.Update(r.Context(), id, params)
	if err != nil {
		h.writeStoreError(w, r, err, "user not found")
		return
	}

	if existing.PhoneNumber != user.PhoneNumber {
		h.indexDelete(r.Context(), env, existing.PhoneNumber)
		h.indexUpsert(r.Context(), env, user.PhoneNumber)
	}
	httpserver.Respond(w, http.StatusOK, user)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	store, env, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	existing, err := store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "user not found")
		return
	}

	if err := store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "user not found")
		return
	}

	h.indexDelete(r.Context(), env, existing.PhoneNumber)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	store, env, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	if _, err := store.Get(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "user not found")
		return
	}

	data, filename, contentType, err := httpserver.ReadUpload(r, "photo")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	key := storage.UserPhotoKey(env.HomeID, id, storage.ExtFromFilename(filename, contentType))
	url, err := env.Deps.Blobs.Upload(r.Context(), key, data, contentType)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	if err := store.SetPhotoURL(r.Context(), id, url); err != nil {
		h.writeStoreError(w, r, err, "user not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"photo_url": url})
}

// PushTokenRequest carries the device token. An empty token clears the
// stored one, so clients can unregister on logout.
type PushTokenRequest struct {
	PushToken string `json:"push_token" validate:"max=4096"`
}

func (h *Handler) handlePushToken(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	var req PushTokenRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := store.SetPushToken(r.Context(), id, req.PushToken); err != nil {
		h.writeStoreError(w, r, err, "user not found")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// indexStore opens the cross-home phone directory through the shared
// registry. Returns nil when the directory pool is unavailable.
func (h *Handler) indexStore(ctx context.Context, env *gate.Env) *homeindex.Store {
	pool, err := env.Deps.Pools.Get(ctx, platform.IndexSchema)
	if err != nil {
		h.logger.Warn("home index unavailable", "error", err)
		return nil
	}
	return homeindex.NewStore(pool)
}

func (h *Handler) indexUpsert(ctx context.Context, env *gate.Env, phone string) {
	idx := h.indexStore(ctx, env)
	if idx == nil {
		return
	}
	if _, err := idx.Upsert(ctx, phone, env.HomeID, env.Tenant.Name); err != nil {
		h.logger.Warn("home index upsert failed", "home_id", env.HomeID, "error", err)
	}
}

func (h *Handler) indexDelete(ctx context.Context, env *gate.Env, phone string) {
	idx := h.indexStore(ctx, env)
	if idx == nil {
		return
	}
	if err := idx.Delete(ctx, phone); err != nil && !errors.Is(err, homeindex.ErrNotFound) {
		h.logger.Warn("home index delete failed", "home_id", env.HomeID, "error", err)
	}
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", notFoundMsg)
	case errors.Is(err, ErrPhoneTaken):
		httpserver.RespondError(w, http.StatusConflict, "phone_taken", "the phone number is already in use")
	default:
		httpserver.WriteError(w, r, h.logger, err)
	}
}
