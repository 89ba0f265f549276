package rooms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
)

const (
	roomColumns     = `id, name, description, location, capacity, created_at, updated_at`
	providerColumns = `id, name, description, created_at`
)

// Store runs room and provider-type queries on one home's schema.
type Store struct {
	pool   *dbpool.Pool
	schema string
}

// NewStore creates a Store bound to a home schema.
func NewStore(pool *dbpool.Pool, schema string) *Store {
	return &Store{pool: pool, schema: schema}
}

func (s *Store) table(name string) string {
	return s.pool.Engine().QualifyTable(s.schema, name)
}

// ListRooms returns every room, ordered by name. Homes have at most a few
// dozen rooms, so the list is not paged.
func (s *Store) ListRooms(ctx context.Context) ([]Room, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY name`, roomColumns, s.table("rooms"))

	items := []Room{}
	if err := s.pool.DB().SelectContext(qctx, &items, query); err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	return items, nil
}

// GetRoom returns a single room by id.
func (s *Store) GetRoom(ctx context.Context, id int64) (*Room, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, roomColumns, s.table("rooms")))

	var room Room
	if err := s.pool.DB().GetContext(qctx, &room, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting room %d: %w", id, err)
	}
	return &room, nil
}

// RoomParams holds the writable fields of a room.
type RoomParams struct {
	Name        string
	Description *string
	Location    *string
	Capacity    int
}

// CreateRoom inserts a room.
func (s *Store) CreateRoom(ctx context.Context, p RoomParams) (*Room, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	id, err := platform.InsertReturningID(qctx, s.pool.DB(), s.pool.Engine(), s.table("rooms"),
		[]string{"name", "description", "location", "capacity", "created_at", "updated_at"},
		p.Name, p.Description, p.Location, p.Capacity, now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting room: %w", err)
	}

	return &Room{
		ID:          id,
		Name:        p.Name,
		Description: p.Description,
		Location:    p.Location,
		Capacity:    p.Capacity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UpdateRoom rewrites the editable fields and returns the stored row.
func (s *Store) UpdateRoom(ctx context.Context, id int64, p RoomParams) (*Room, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET name = ?, description = ?, location = ?, capacity = ?, updated_at = ? WHERE id = ?`,
		s.table("rooms")))
	res, err := s.pool.DB().ExecContext(qctx, query, p.Name, p.Description, p.Location, p.Capacity, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("updating room %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.GetRoom(ctx, id)
}

// DeleteRoom removes a room.
func (s *Store) DeleteRoom(ctx context.Context, id int64) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table("rooms")))
	res, err := s.pool.DB().ExecContext(qctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting room %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProviderTypes returns every provider type, ordered by name.
func (s *Store) ListProviderTypes(ctx context.Context) ([]ProviderType, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY name`, providerColumns, s.table("service_provider_types"))

	items := []ProviderType{}
	if err := s.pool.DB().SelectContext(qctx, &items, query); err != nil {
		return nil, fmt.Errorf("listing provider types: %w", err)
	}
	return items, nil
}

// GetProviderType returns a single provider type by id.
func (s *Store) GetProviderType(ctx context.Context, id int64) (*ProviderType, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = ?`, providerColumns, s.table("service_provider_types")))

	var pt ProviderType
	if err := s.pool.DB().GetContext(qctx, &pt, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting provider type %d: %w", id, err)
	}
	return &pt, nil
}

// ProviderTypeParams holds the writable fields of a provider type.
type ProviderTypeParams struct {
	Name        string
	Description *string
}

// CreateProviderType inserts a provider type.
func (s *Store) CreateProviderType(ctx context.Context, p ProviderTypeParams) (*ProviderType, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	id, err := platform.InsertReturningID(qctx, s.pool.DB(), s.pool.Engine(), s.table("service_provider_types"),
		[]string{"name", "description", "created_at"}, p.Name, p.Description, now)
	if err != nil {
		return nil, fmt.Errorf("inserting provider type: %w", err)
	}
	return &ProviderType{ID: id, Name: p.Name, Description: p.Description, CreatedAt: now}, nil
}

// UpdateProviderType rewrites the editable fields and returns the stored row.
func (s *Store) UpdateProviderType(ctx context.Context, id int64, p ProviderTypeParams) (*ProviderType, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET name = ?, description = ? WHERE id = ?`, s.table("service_provider_types")))
	res, err := s.pool.DB().ExecContext(qctx, query, p.Name, p.Description, id)
	if err != nil {
		return nil, fmt.Errorf("updating provider type %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.GetProviderType(ctx, id)
}

// DeleteProviderType removes a provider type. Requests referencing it keep
// their provider_type_id; the reference simply stops resolving.
func (s *Store) DeleteProviderType(ctx context.Context, id int64) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table("service_provider_types")))
	res, err := s.pool.DB().ExecContext(qctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting provider type %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
