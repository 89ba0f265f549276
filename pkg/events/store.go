package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
)

const (
	eventColumns = `id, name, description, event_type, location, start_time, end_time,
		max_participants, current_participants, instructor_id, image_url, created_at, updated_at`
	instructorColumns = `id, full_name, description, photo_url, created_at, updated_at`
	galleryColumns    = `id, event_id, image_url, created_at`
)

// Store runs event queries on one home's schema. Handlers build a Store per
// request from the gate environment; it holds no state beyond the pool.
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

// Filters narrows List to an event type and a time window.
type Filters struct {
	Type string
	From *time.Time
}

// List returns a page of events ordered by start time, plus the total count
// under the same filters.
func (s *Store) List(ctx context.Context, f Filters, limit, offset int) ([]Event, int, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	where := []string{"1 = 1"}
	var args []any
	if f.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.Type)
	}
	if f.From != nil {
		where = append(where, "start_time >= ?")
		args = append(args, *f.From)
	}
	cond := strings.Join(where, " AND ")

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s ORDER BY start_time OFFSET ? ROWS FETCH NEXT ? ROWS ONLY`,
		eventColumns, s.table("events"), cond))

	items := []Event{}
	if err := s.pool.DB().SelectContext(qctx, &items, query, append(args, offset, limit)...); err != nil {
		return nil, 0, fmt.Errorf("listing events: %w", err)
	}

	var total int
	count := s.pool.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.table("events"), cond))
	if err := s.pool.DB().GetContext(qctx, &total, count, args...); err != nil {
		return nil, 0, fmt.Errorf("counting events: %w", err)
	}
	return items, total, nil
}

// Get returns a single event by id.
func (s *Store) Get(ctx context.Context, id int64) (*Event, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, eventColumns, s.table("events")))

	var ev Event
	if err := s.pool.DB().GetContext(qctx, &ev, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting event %d: %w", id, err)
	}
	return &ev, nil
}

// CreateParams holds the writable fields of a new event.
type CreateParams struct {
	Name            string
	Description     *string
	EventType       *string
	Location        *string
	StartTime       time.Time
	EndTime         *time.Time
	MaxParticipants int
	InstructorID    *int64
	ImageURL        *string
}

// Create inserts an event and returns it with its generated id.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Event, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	id, err := platform.InsertReturningID(qctx, s.pool.DB(), s.pool.Engine(), s.table("events"),
		[]string{"name", "description", "event_type", "location", "start_time", "end_time",
			"max_participants", "current_participants", "instructor_id", "image_url",
			"created_at", "updated_at"},
		p.Name, p.Description, p.EventType, p.Location, p.StartTime, p.EndTime,
		p.MaxParticipants, 0, p.InstructorID, p.ImageURL, now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}

	return &Event{
		ID:              id,
		Name:            p.Name,
		Description:     p.Description,
		EventType:       p.EventType,
		Location:        p.Location,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
		MaxParticipants: p.MaxParticipants,
		InstructorID:    p.InstructorID,
		ImageURL:        p.ImageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Update rewrites the editable fields and returns the stored row.
func (s *Store) Update(ctx context.Context, id int64, p CreateParams) (*Event, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET name = ?, description = ?, event_type = ?, location = ?,
			start_time = ?, end_time = ?, max_participants = ?, instructor_id = ?,
			image_url = ?, updated_at = ?
		WHERE id = ?`, s.table("events")))

	res, err := s.pool.DB().ExecContext(qctx, query,
		p.Name, p.Description, p.EventType, p.Location, p.StartTime, p.EndTime,
		p.MaxParticipants, p.InstructorID, p.ImageURL, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("updating event %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes an event with its registrations and gallery rows.
func (s *Store) Delete(ctx context.Context, id int64) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	tx, err := s.pool.DB().BeginTxx(qctx, nil)
	if err != nil {
		return fmt.Errorf("beginning event delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, dependent := range []string{"events_registration", "event_gallery"} {
		del := s.pool.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE event_id = ?`, s.table(dependent)))
		if _, err := tx.ExecContext(qctx, del, id); err != nil {
			return fmt.Errorf("deleting %s for event %d: %w", dependent, id, err)
		}
	}

	del := s.pool.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table("events")))
	res, err := tx.ExecContext(qctx, del, id)
	if err != nil {
		return fmt.Errorf("deleting event %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// SetImageURL points the event at its uploaded image.
func (s *Store) SetImageURL(ctx context.Context, id int64, url string) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET image_url = ?, updated_at = ? WHERE id = ?`, s.table("events")))
	res, err := s.pool.DB().ExecContext(qctx, query, url, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("setting event image: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Register adds a registration under the capacity check. The counter
// increment and the registration row commit together; a duplicate
// registration rolls the increment back.
func (s *Store) Register(ctx context.Context, eventID, userID int64) (*Registration, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	tx, err := s.pool.DB().BeginTxx(qctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning registration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	claim := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET current_participants = current_participants + 1, updated_at = ?
		WHERE id = ? AND current_participants < max_participants`, s.table("events")))
	res, err := tx.ExecContext(qctx, claim, now, eventID)
	if err != nil {
		return nil, fmt.Errorf("claiming event seat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists int
		probe := s.pool.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ?`, s.table("events")))
		if err := tx.GetContext(qctx, &exists, probe, eventID); err != nil {
			return nil, fmt.Errorf("probing event %d: %w", eventID, err)
		}
		if exists == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrFull
	}

	id, err := platform.InsertReturningID(qctx, tx, s.pool.Engine(), s.table("events_registration"),
		[]string{"event_id", "user_id", "created_at"}, eventID, userID, now)
	if err != nil {
		if platform.IsUniqueViolation(err) {
			return nil, ErrRegistered
		}
		return nil, fmt.Errorf("inserting registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing registration: %w", err)
	}
	return &Registration{ID: id, EventID: eventID, UserID: userID, CreatedAt: now}, nil
}

// Unregister removes a registration and releases the seat. The counter never
// goes below zero even if it was already out of step.
func (s *Store) Unregister(ctx context.Context, eventID, userID int64) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	tx, err := s.pool.DB().BeginTxx(qctx, nil)
	if err != nil {
		return fmt.Errorf("beginning unregistration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del := s.pool.Rebind(fmt.Sprintf(
		`DELETE FROM %s WHERE event_id = ? AND user_id = ?`, s.table("events_registration")))
	res, err := tx.ExecContext(qctx, del, eventID, userID)
	if err != nil {
		return fmt.Errorf("deleting registration: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotRegistered
	}

	release := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET current_participants = current_participants - 1, updated_at = ?
		WHERE id = ? AND current_participants > 0`, s.table("events")))
	if _, err := tx.ExecContext(qctx, release, time.Now().UTC(), eventID); err != nil {
		return fmt.Errorf("releasing event seat: %w", err)
	}

	return tx.Commit()
}

// Registrations lists an event's registrations, oldest first.
func (s *Store) Registrations(ctx context.Context, eventID int64) ([]Registration, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT id, event_id, user_id, created_at FROM %s WHERE event_id = ? ORDER BY created_at`,
		s.table("events_registration")))

	items := []Registration{}
	if err := s.pool.DB().SelectContext(qctx, &items, query, eventID); err != nil {
		return nil, fmt.Errorf("listing registrations: %w", err)
	}
	return items, nil
}

// InstructorParams holds the writable fields of an instructor.
type InstructorParams struct {
	FullName    string
	Description *string
	PhotoURL    *string
}

// ListInstructors returns every instructor, ordered by name.
func (s *Store) ListInstructors(ctx context.Context) ([]Instructor, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY full_name`, instructorColumns, s.table("event_instructor"))

	items := []Instructor{}
	if err := s.pool.DB().SelectContext(qctx, &items, query); err != nil {
		return nil, fmt.Errorf("listing instructors: %w", err)
	}
	return items, nil
}

// GetInstructor returns a single instructor by id.
func (s *Store) GetInstructor(ctx context.Context, id int64) (*Instructor, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = ?`, instructorColumns, s.table("event_instructor")))

	var ins Instructor
	if err := s.pool.DB().GetContext(qctx, &ins, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting instructor %d: %w", id, err)
	}
	return &ins, nil
}

// CreateInstructor inserts an instructor.
func (s *Store) CreateInstructor(ctx context.Context, p InstructorParams) (*Instructor, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	id, err := platform.InsertReturningID(qctx, s.pool.DB(), s.pool.Engine(), s.table("event_instructor"),
		[]string{"full_name", "description", "photo_url", "created_at", "updated_at"},
		p.FullName, p.Description, p.PhotoURL, now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting instructor: %w", err)
	}

	return &Instructor{
		ID:          id,
		FullName:    p.FullName,
		Description: p.Description,
		PhotoURL:    p.PhotoURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UpdateInstructor rewrites the editable fields and returns the stored row.
func (s *Store) UpdateInstructor(ctx context.Context, id int64, p InstructorParams) (*Instructor, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET full_name = ?, description = ?, photo_url = ?, updated_at = ? WHERE id = ?`,
		s.table("event_instructor")))
	res, err := s.pool.DB().ExecContext(qctx, query, p.FullName, p.Description, p.PhotoURL, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("updating instructor %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.GetInstructor(ctx, id)
}

// SetInstructorPhotoURL points the instructor at the uploaded photo.
func (s *Store) SetInstructorPhotoURL(ctx context.Context, id int64, url string) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET photo_url = ?, updated_at = ? WHERE id = ?`, s.table("event_instructor")))
	res, err := s.pool.DB().ExecContext(qctx, query, url, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("setting instructor photo: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGallery returns an event's gallery, newest first.
func (s *Store) ListGallery(ctx context.Context, eventID int64) ([]GalleryImage, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT %s FROM %s WHERE event_id = ? ORDER BY id DESC`, galleryColumns, s.table("event_gallery")))

	items := []GalleryImage{}
	if err := s.pool.DB().SelectContext(qctx, &items, query, eventID); err != nil {
		return nil, fmt.Errorf("listing gallery: %w", err)
	}
	return items, nil
}

// AddGalleryImage attaches an image URL to an event.
func (s *Store) AddGalleryImage(ctx context.Context, eventID int64, imageURL string) (*GalleryImage, error) {
	if _, err := s.Get(ctx, eventID); err != nil {
		return nil, err
	}

	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	id, err := platform.InsertReturningID(qctx, s.pool.DB(), s.pool.Engine(), s.table("event_gallery"),
		[]string{"event_id", "image_url", "created_at"}, eventID, imageURL, now)
	if err != nil {
		return nil, fmt.Errorf("inserting gallery image: %w", err)
	}
	return &GalleryImage{ID: id, EventID: eventID, ImageURL: imageURL, CreatedAt: now}, nil
}

// DeleteGalleryImage removes one gallery row.
func (s *Store) DeleteGalleryImage(ctx context.Context, eventID, imageID int64) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`DELETE FROM %s WHERE id = ? AND event_id = ?`, s.table("event_gallery")))
	res, err := s.pool.DB().ExecContext(qctx, query, imageID, eventID)
	if err != nil {
		return fmt.Errorf("deleting gallery image: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
