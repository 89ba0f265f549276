package rooms

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/pkg/gate"
)

// Handler provides the rooms and provider-types API.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a rooms Handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger.With("component", "rooms")}
}

// Register adds the room and provider-type routes to the canonical route set.
func (h *Handler) Register(set *gate.RouteSet) {
	set.Handle(http.MethodGet, "/api/rooms", "list_rooms", h.handleListRooms)
	set.Handle(http.MethodPost, "/api/rooms", "create_room", h.handleCreateRoom)
	set.Handle(http.MethodGet, "/api/rooms/{id}", "get_room", h.handleGetRoom)
	set.Handle(http.MethodPut, "/api/rooms/{id}", "update_room", h.handleUpdateRoom)
	set.Handle(http.MethodDelete, "/api/rooms/{id}", "delete_room", h.handleDeleteRoom)
	set.Handle(http.MethodGet, "/api/service_provider_types", "list_provider_types", h.handleListProviderTypes)
	set.Handle(http.MethodPost, "/api/service_provider_types", "create_provider_type", h.handleCreateProviderType)
	set.Handle(http.MethodGet, "/api/service_provider_types/{id}", "get_provider_type", h.handleGetProviderType)
	set.Handle(http.MethodPut, "/api/service_provider_types/{id}", "update_provider_type", h.handleUpdateProviderType)
	set.Handle(http.MethodDelete, "/api/service_provider_types/{id}", "delete_provider_type", h.handleDeleteProviderType)
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	env := gate.FromContext(r.Context())
	if env == nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "tenant environment missing")
		return nil, false
	}
	pool, err := env.Pool(r.Context())
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return nil, false
	}
	return NewStore(pool, env.Tenant.DatabaseSchema), true
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// RoomRequest is the create/update payload for rooms.
type RoomRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Location    *string `json:"location" validate:"omitempty,max=255"`
	Capacity    int     `json:"capacity" validate:"gte=0"`
}

func (h *Handler) handleListRooms(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	items, err := store.ListRooms(r.Context())
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	var req RoomRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	room, err := store.CreateRoom(r.Context(), RoomParams{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		Capacity:    req.Capacity,
	})
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, room)
}

func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid room id")
		return
	}

	room, err := store.GetRoom(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "room not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, room)
}

func (h *Handler) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid room id")
		return
	}

	var req RoomRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	room, err := store.UpdateRoom(r.Context(), id, RoomParams{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		Capacity:    req.Capacity,
	})
	if err != nil {
		h.writeStoreError(w, r, err, "room not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, room)
}

func (h *Handler) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid room id")
		return
	}

	if err := store.DeleteRoom(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "room not found")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// ProviderTypeRequest is the create/update payload for provider types.
type ProviderTypeRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

func (h *Handler) handleListProviderTypes(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	items, err := store.ListProviderTypes(r.Context())
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleCreateProviderType(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	var req ProviderTypeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	pt, err := store.CreateProviderType(r.Context(), ProviderTypeParams{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, pt)
}

func (h *Handler) handleGetProviderType(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider type id")
		return
	}

	pt, err := store.GetProviderType(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "provider type not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, pt)
}

func (h *Handler) handleUpdateProviderType(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider type id")
		return
	}

	var req ProviderTypeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	pt, err := store.UpdateProviderType(r.Context(), id, ProviderTypeParams{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.writeStoreError(w, r, err, "provider type not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, pt)
}

func (h *Handler) handleDeleteProviderType(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider type id")
		return
	}

	if err := store.DeleteProviderType(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "provider type not found")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	if errors.Is(err, ErrNotFound) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", notFoundMsg)
		return
	}
	httpserver.WriteError(w, r, h.logger, err)
}
