package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
)

// Store runs notification queries on one home's schema.
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

// ListForUser returns a page of a resident's notifications, newest first,
// plus the total count. Sender names come from the users table; a deleted
// sender leaves the name null.
func (s *Store) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]UserNotification, int, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT n.id, n.user_id, n.title, n.body, n.sender_id, u.full_name AS sender_name,
			n.is_read, n.created_at
		FROM %s n LEFT JOIN %s u ON u.id = n.sender_id
		WHERE n.user_id = ?
		ORDER BY n.id DESC OFFSET ? ROWS FETCH NEXT ? ROWS ONLY`,
		s.table("user_notification"), s.table("users")))

	items := []UserNotification{}
	if err := s.pool.DB().SelectContext(qctx, &items, query, userID, offset, limit); err != nil {
		return nil, 0, fmt.Errorf("listing user notifications: %w", err)
	}

	var total int
	count := s.pool.Rebind(fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE user_id = ?`, s.table("user_notification")))
	if err := s.pool.DB().GetContext(qctx, &total, count, userID); err != nil {
		return nil, 0, fmt.Errorf("counting user notifications: %w", err)
	}
	return items, total, nil
}

// UnreadCount returns how many of a resident's notifications are unread.
func (s *Store) UnreadCount(ctx context.Context, userID int64) (int, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE user_id = ? AND is_read = ?`, s.table("user_notification")))

	var total int
	if err := s.pool.DB().GetContext(qctx, &total, query, userID, platform.Bool(false)); err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return total, nil
}

// UserParams holds the writable fields of a user notification.
type UserParams struct {
	UserID   int64
	Title    string
	Body     string
	SenderID *int64
}

// CreateForUser inserts a notification addressed to one resident.
func (s *Store) CreateForUser(ctx context.Context, p UserParams) (*UserNotification, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	id, err := platform.InsertReturningID(qctx, s.pool.DB(), s.pool.Engine(), s.table("user_notification"),
		[]string{"user_id", "title", "body", "sender_id", "is_read", "created_at"},
		p.UserID, p.Title, p.Body, p.SenderID, platform.Bool(false), now)
	if err != nil {
		return nil, fmt.Errorf("inserting user notification: %w", err)
	}

	return &UserNotification{
		ID:        id,
		UserID:    p.UserID,
		Title:     p.Title,
		Body:      p.Body,
		SenderID:  p.SenderID,
		CreatedAt: now,
	}, nil
}

// MarkRead flags one notification as read. Marking twice is a no-op that
// still succeeds.
func (s *Store) MarkRead(ctx context.Context, id int64) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET is_read = ? WHERE id = ?`, s.table("user_notification")))
	res, err := s.pool.DB().ExecContext(qctx, query, platform.Bool(true), id)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteForUser removes one user notification.
func (s *Store) DeleteForUser(ctx context.Context, id int64) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table("user_notification")))
	res, err := s.pool.DB().ExecContext(qctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting user notification: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForHome returns a page of home-wide notifications, newest first, plus
// the total count.
func (s *Store) ListForHome(ctx context.Context, limit, offset int) ([]HomeNotification, int, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT n.id, n.title, n.body, n.sender_id, u.full_name AS sender_name, n.created_at
		FROM %s n LEFT JOIN %s u ON u.id = n.sender_id
		ORDER BY n.id DESC OFFSET ? ROWS FETCH NEXT ? ROWS ONLY`,
		s.table("home_notification"), s.table("users")))

	items := []HomeNotification{}
	if err := s.pool.DB().SelectContext(qctx, &items, query, offset, limit); err != nil {
		return nil, 0, fmt.Errorf("listing home notifications: %w", err)
	}

	var total int
	count := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table("home_notification"))
	if err := s.pool.DB().GetContext(qctx, &total, count); err != nil {
		return nil, 0, fmt.Errorf("counting home notifications: %w", err)
	}
	return items, total, nil
}

// HomeParams holds the writable fields of a home notification.
type HomeParams struct {
	Title    string
	Body     string
	SenderID *int64
}

// CreateForHome inserts a home-wide notification.
func (s *Store) CreateForHome(ctx context.Context, p HomeParams) (*HomeNotification, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	id, err := platform.InsertReturningID(qctx, s.pool.DB(), s.pool.Engine(), s.table("home_notification"),
		[]string{"title", "body", "sender_id", "created_at"},
		p.Title, p.Body, p.SenderID, now)
	if err != nil {
		return nil, fmt.Errorf("inserting home notification: %w", err)
	}

	return &HomeNotification{
		ID:        id,
		Title:     p.Title,
		Body:      p.Body,
		SenderID:  p.SenderID,
		CreatedAt: now,
	}, nil
}

// DeleteForHome removes one home notification.
func (s *Store) DeleteForHome(ctx context.Context, id int64) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table("home_notification")))
	res, err := s.pool.DB().ExecContext(qctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting home notification: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// PushTokenFor returns a resident's device token, empty when none is
// registered. A missing user row is ErrUserNotFound so callers can reject
// the notification before writing it.
func (s *Store) PushTokenFor(ctx context.Context, userID int64) (string, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`SELECT push_token FROM %s WHERE id = ?`, s.table("users")))

	var token sql.NullString
	if err := s.pool.DB().GetContext(qctx, &token, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("looking up push token: %w", err)
	}
	return token.String, nil
}

// PushTokens returns every registered device token in the home.
func (s *Store) PushTokens(ctx context.Context) ([]string, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(
		`SELECT push_token FROM %s WHERE push_token IS NOT NULL`, s.table("users"))

	tokens := []string{}
	if err := s.pool.DB().SelectContext(qctx, &tokens, query); err != nil {
		return nil, fmt.Errorf("listing push tokens: %w", err)
	}
	return tokens, nil
}
