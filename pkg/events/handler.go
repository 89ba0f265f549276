package events

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/internal/storage"
	"github.com/hearthhq/hearth/pkg/gate"
)

// Handler provides the events API. All routes are tenant-scoped: the store
// is built per request from the gate environment.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates an events Handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger.With("component", "events")}
}

// Register adds the event and instructor routes to the canonical route set.
func (h *Handler) Register(set *gate.RouteSet) {
	set.Handle(http.MethodGet, "/api/events", "list_events", h.handleList)
	set.Handle(http.MethodPost, "/api/events", "create_event", h.handleCreate)
	set.Handle(http.MethodGet, "/api/events/{id}", "get_event", h.handleGet)
	set.Handle(http.MethodPut, "/api/events/{id}", "update_event", h.handleUpdate)
	set.Handle(http.MethodDelete, "/api/events/{id}", "delete_event", h.handleDelete)
	set.Handle(http.MethodPost, "/api/events/{id}/register", "register_for_event", h.handleRegister)
	set.Handle(http.MethodPost, "/api/events/{id}/unregister", "unregister_from_event", h.handleUnregister)
	set.Handle(http.MethodGet, "/api/events/{id}/registrations", "list_event_registrations", h.handleRegistrations)
	set.Handle(http.MethodPost, "/api/events/{id}/image", "upload_event_image", h.handleUploadImage)
	set.Handle(http.MethodGet, "/api/events/{id}/gallery", "list_event_gallery", h.handleListGallery)
	set.Handle(http.MethodPost, "/api/events/{id}/gallery", "add_event_gallery_image", h.handleAddGalleryImage)
	set.Handle(http.MethodDelete, "/api/events/{id}/gallery/{imageID}", "delete_event_gallery_image", h.handleDeleteGalleryImage)
	set.Handle(http.MethodGet, "/api/instructors", "list_instructors", h.handleListInstructors)
	set.Handle(http.MethodPost, "/api/instructors", "create_instructor", h.handleCreateInstructor)
	set.Handle(http.MethodGet, "/api/instructors/{id}", "get_instructor", h.handleGetInstructor)
	set.Handle(http.MethodPut, "/api/instructors/{id}", "update_instructor", h.handleUpdateInstructor)
	set.Handle(http.MethodPost, "/api/instructors/{id}/photo", "upload_instructor_photo", h.handleUploadInstructorPhoto)
}

// store builds the per-request Store from the tenant environment.
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

// EventRequest is the create/update payload.
type EventRequest struct {
	Name            string     `json:"name" validate:"required,max=255"`
	Description     *string    `json:"description" validate:"omitempty,max=2000"`
	EventType       *string    `json:"event_type" validate:"omitempty,max=50"`
	Location        *string    `json:"location" validate:"omitempty,max=255"`
	StartTime       time.Time  `json:"start_time" validate:"required"`
	EndTime         *time.Time `json:"end_time"`
	MaxParticipants int        `json:"max_participants" validate:"gte=0"`
	InstructorID    *int64     `json:"instructor_id" validate:"omitempty,gt=0"`
	ImageURL        *string    `json:"image_url" validate:"omitempty,url"`
}

func (req *EventRequest) params() CreateParams {
	return CreateParams{
		Name:            req.Name,
		Description:     req.Description,
		EventType:       req.EventType,
		Location:        req.Location,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		MaxParticipants: req.MaxParticipants,
		InstructorID:    req.InstructorID,
		ImageURL:        req.ImageURL,
	}
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

	filters := Filters{Type: r.URL.Query().Get("type")}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "from must be RFC 3339")
			return
		}
		filters.From = &t
	}

	items, total, err := store.List(r.Context(), filters, params.PageSize, params.Offset)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}

	var req EventRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ev, err := store.Create(r.Context(), req.params())
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, ev)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid event id")
		return
	}

	ev, err := store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "event not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, ev)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid event id")
		return
	}

	var req EventRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ev, err := store.Update(r.Context(), id, req.params())
	if err != nil {
		h.writeStoreError(w, r, err, "event not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, ev)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid event id")
		return
	}

	if err := store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "event not found")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// RegisterRequest identifies the resident taking the seat.
type RegisterRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid event id")
		return
	}

	var req RegisterRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	reg, err := store.Register(r.Context(), id, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "event not found")
		case errors.Is(err, ErrFull):
			httpserver.RespondError(w, http.StatusConflict, "event_full", "the event has no seats left")
		case errors.Is(err, ErrRegistered):
			httpserver.RespondError(w, http.StatusConflict, "already_registered", "the user is already registered")
		default:
			httpserver.WriteError(w, r, h.logger, err)
		}
		return
	}
	httpserver.Respond(w, http.StatusCreated, reg)
}

func (h *Handler) handleUnregister(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid event id")
		return
	}

	var req RegisterRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := store.Unregister(r.Context(), id, req.UserID); err != nil {
		if errors.Is(err, ErrNotRegistered) {
			httpserver.RespondError(w, http.StatusNotFound, "not_registered", "the user is not registered for this event")
			return
		}
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleRegistrations(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid event id")
		return
	}

	items, err := store.Registrations(r.Context(), id)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	store, env, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid event id")
		return
	}

	if _, err := store.Get(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "event not found")
		return
	}

	data, filename, contentType, err := httpserver.ReadUpload(r, "image")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	key := storage.EventImageKey(env.HomeID, id, storage.ExtFromFilename(filename, contentType))
	url, err := env.Deps.Blobs.Upload(r.Context(), key, data, contentType)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	if err := store.SetImageURL(r.Context(), id, url); err != nil {
		h.writeStoreError(w, r, err, "event not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"image_url": url})
}

// GalleryRequest attaches an already-hosted image to an event.
type GalleryRequest struct {
	ImageURL string `json:"image_url" validate:"required,url,max=1000"`
}

func (h *Handler) handleListGallery(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid event id")
		return
	}

	items, err := store.ListGallery(r.Context(), id)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleAddGalleryImage(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid event id")
		return
	}

	var req GalleryRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	img, err := store.AddGalleryImage(r.Context(), id, req.ImageURL)
	if err != nil {
		h.writeStoreError(w, r, err, "event not found")
		return
	}
	httpserver.Respond(w, http.StatusCreated, img)
}

func (h *Handler) handleDeleteGalleryImage(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid event id")
		return
	}
	imageID, ok := pathID(r, "imageID")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid image id")
		return
	}

	if err := store.DeleteGalleryImage(r.Context(), id, imageID); err != nil {
		h.writeStoreError(w, r, err, "gallery image not found")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// InstructorRequest is the create/update payload for instructors.
type InstructorRequest struct {
	FullName    string  `json:"full_name" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	PhotoURL    *string `json:"photo_url" validate:"omitempty,url"`
}

func (h *Handler) handleListInstructors(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}

	items, err := store.ListInstructors(r.Context())
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleCreateInstructor(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}

	var req InstructorRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ins, err := store.CreateInstructor(r.Context(), InstructorParams{
		FullName:    req.FullName,
		Description: req.Description,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, ins)
}

func (h *Handler) handleGetInstructor(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid instructor id")
		return
	}

	ins, err := store.GetInstructor(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "instructor not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, ins)
}

func (h *Handler) handleUpdateInstructor(w http.ResponseWriter, r *http.Request) {
	store, _, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid instructor id")
		return
	}

	var req InstructorRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ins, err := store.UpdateInstructor(r.Context(), id, InstructorParams{
		FullName:    req.FullName,
		Description: req.Description,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		h.writeStoreError(w, r, err, "instructor not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, ins)
}

func (h *Handler) handleUploadInstructorPhoto(w http.ResponseWriter, r *http.Request) {
	store, env, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid instructor id")
		return
	}

	if _, err := store.GetInstructor(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "instructor not found")
		return
	}

	data, filename, contentType, err := httpserver.ReadUpload(r, "photo")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	key := storage.InstructorPhotoKey(env.HomeID, id, storage.ExtFromFilename(filename, contentType))
	url, err := env.Deps.Blobs.Upload(r.Context(), key, data, contentType)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	if err := store.SetInstructorPhotoURL(r.Context(), id, url); err != nil {
		h.writeStoreError(w, r, err, "instructor not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"photo_url": url})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	if errors.Is(err, ErrNotFound) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", notFoundMsg)
		return
	}
	httpserver.WriteError(w, r, h.logger, err)
}
