package requests

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
	requestColumns = `id, user_id, provider_type_id, subject, status, created_at, updated_at`
	messageColumns = `m.id, m.request_id, m.sender_id, u.full_name AS sender_name, m.body,
		m.media_url, m.created_at`
)

// Store runs request queries on one home's schema.
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

// Filters narrows List to one requester and/or status.
type Filters struct {
	UserID *int64
	Status string
}

// List returns a page of requests, most recently active first, plus the
// total count under the same filters.
func (s *Store) List(ctx context.Context, f Filters, limit, offset int) ([]Request, int, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	where := []string{"1 = 1"}
	var args []any
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	cond := strings.Join(where, " AND ")

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s ORDER BY updated_at DESC OFFSET ? ROWS FETCH NEXT ? ROWS ONLY`,
		requestColumns, s.table("requests"), cond))

	items := []Request{}
	if err := s.pool.DB().SelectContext(qctx, &items, query, append(args, offset, limit)...); err != nil {
		return nil, 0, fmt.Errorf("listing requests: %w", err)
	}

	var total int
	count := s.pool.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.table("requests"), cond))
	if err := s.pool.DB().GetContext(qctx, &total, count, args...); err != nil {
		return nil, 0, fmt.Errorf("counting requests: %w", err)
	}
	return items, total, nil
}

// Get returns a single request by id.
func (s *Store) Get(ctx context.Context, id int64) (*Request, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, requestColumns, s.table("requests")))

	var req Request
	if err := s.pool.DB().GetContext(qctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting request %d: %w", id, err)
	}
	return &req, nil
}

// CreateParams holds the writable fields of a new request.
type CreateParams struct {
	UserID         int64
	ProviderTypeID *int64
	Subject        string
}

// Create opens a request.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Request, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	id, err := platform.InsertReturningID(qctx, s.pool.DB(), s.pool.Engine(), s.table("requests"),
		[]string{"user_id", "provider_type_id", "subject", "status", "created_at", "updated_at"},
		p.UserID, p.ProviderTypeID, p.Subject, StatusOpen, now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting request: %w", err)
	}

	return &Request{
		ID:             id,
		UserID:         p.UserID,
		ProviderTypeID: p.ProviderTypeID,
		Subject:        p.Subject,
		Status:         StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// SetStatus moves a request to a new state.
func (s *Store) SetStatus(ctx context.Context, id int64, status string) (*Request, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET status = ?, updated_at = ? WHERE id = ?`, s.table("requests")))
	res, err := s.pool.DB().ExecContext(qctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("updating request %d status: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a request with its whole thread.
func (s *Store) Delete(ctx context.Context, id int64) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	tx, err := s.pool.DB().BeginTxx(qctx, nil)
	if err != nil {
		return fmt.Errorf("beginning request delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del := s.pool.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE request_id = ?`, s.table("request_messages")))
	if _, err := tx.ExecContext(qctx, del, id); err != nil {
		return fmt.Errorf("deleting messages for request %d: %w", id, err)
	}

	del = s.pool.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table("requests")))
	res, err := tx.ExecContext(qctx, del, id)
	if err != nil {
		return fmt.Errorf("deleting request %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// Messages returns a request's thread, oldest first. Sender names come from
// the users table; a deleted sender leaves the name null.
func (s *Store) Messages(ctx context.Context, requestID int64) ([]Message, error) {
	if _, err := s.Get(ctx, requestID); err != nil {
		return nil, err
	}

	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT %s FROM %s m LEFT JOIN %s u ON u.id = m.sender_id
		WHERE m.request_id = ? ORDER BY m.id`,
		messageColumns, s.table("request_messages"), s.table("users")))

	items := []Message{}
	if err := s.pool.DB().SelectContext(qctx, &items, query, requestID); err != nil {
		return nil, fmt.Errorf("listing request messages: %w", err)
	}
	return items, nil
}

// MessageParams holds the writable fields of a new message.
type MessageParams struct {
	SenderID int64
	Body     *string
	MediaURL *string
}

// AddMessage appends a message to a request's thread. Touching the request's
// updated_at doubles as the existence check: zero rows means no request, and
// nothing is inserted.
func (s *Store) AddMessage(ctx context.Context, requestID int64, p MessageParams) (*Message, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	tx, err := s.pool.DB().BeginTxx(qctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning message insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	touch := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET updated_at = ? WHERE id = ?`, s.table("requests")))
	res, err := tx.ExecContext(qctx, touch, now, requestID)
	if err != nil {
		return nil, fmt.Errorf("touching request %d: %w", requestID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	id, err := platform.InsertReturningID(qctx, tx, s.pool.Engine(), s.table("request_messages"),
		[]string{"request_id", "sender_id", "body", "media_url", "created_at"},
		requestID, p.SenderID, p.Body, p.MediaURL, now)
	if err != nil {
		return nil, fmt.Errorf("inserting request message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing request message: %w", err)
	}
	return &Message{
		ID:        id,
		RequestID: requestID,
		SenderID:  p.SenderID,
		Body:      p.Body,
		MediaURL:  p.MediaURL,
		CreatedAt: now,
	}, nil
}

// SetMessageMediaURL points a message at its uploaded media blob.
func (s *Store) SetMessageMediaURL(ctx context.Context, messageID int64, url string) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET media_url = ? WHERE id = ?`, s.table("request_messages")))
	res, err := s.pool.DB().ExecContext(qctx, query, url, messageID)
	if err != nil {
		return fmt.Errorf("setting message media: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
