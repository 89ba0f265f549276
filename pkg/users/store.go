package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
	"github.com/hearthhq/hearth/pkg/homeindex"
)

const userColumns = `id, phone_number, email, full_name, password_hash, role, apartment,
	photo_url, push_token, created_at, updated_at`

// Store runs user queries on one home's schema.
type Store struct {
	pool   *dbpool.Pool
	schema string
}

// NewStore creates a Store bound to a home schema.
func NewStore(pool *dbpool.Pool, schema string) *Store {
	return &Store{pool: pool, schema: schema}
}

func (s *Store) table() string {
	return s.pool.Engine().QualifyTable(s.schema, "users")
}

// List returns a page of users ordered by name, plus the total count.
func (s *Store) List(ctx context.Context, limit, offset int) ([]User, int, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT %s FROM %s ORDER BY full_name OFFSET ? ROWS FETCH NEXT ? ROWS ONLY`,
		userColumns, s.table()))

	items := []User{}
	if err := s.pool.DB().SelectContext(qctx, &items, query, offset, limit); err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}

	var total int
	count := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table())
	if err := s.pool.DB().GetContext(qctx, &total, count); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}
	return items, total, nil
}

// Get returns a user by id.
func (s *Store) Get(ctx context.Context, id int64) (*User, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, userColumns, s.table()))

	var u User
	if err := s.pool.DB().GetContext(qctx, &u, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return &u, nil
}

// GetByPhone returns a user by normalized phone number.
func (s *Store) GetByPhone(ctx context.Context, phone string) (*User, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE phone_number = ?`, userColumns, s.table()))

	var u User
	if err := s.pool.DB().GetContext(qctx, &u, query, homeindex.Normalize(phone)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user by phone: %w", err)
	}
	return &u, nil
}

// Params holds the writable fields of a user. PasswordHash is the bcrypt
// hash, already computed by the caller; nil leaves the stored hash untouched
// on update.
type Params struct {
	PhoneNumber  string
	Email        *string
	FullName     string
	PasswordHash *string
	Role         string
	Apartment    *string
}

// Create inserts a user. The phone number is normalized before writing.
func (s *Store) Create(ctx context.Context, p Params) (*User, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	phone := homeindex.Normalize(p.PhoneNumber)
	if phone == "" {
		return nil, fmt.Errorf("empty phone number")
	}
	if p.Role == "" {
		p.Role = "resident"
	}

	now := time.Now().UTC()
	id, err := platform.InsertReturningID(qctx, s.pool.DB(), s.pool.Engine(), s.table(),
		[]string{"phone_number", "email", "full_name", "password_hash", "role", "apartment",
			"photo_url", "push_token", "created_at", "updated_at"},
		phone, p.Email, p.FullName, p.PasswordHash, p.Role, p.Apartment, nil, nil, now, now)
	if err != nil {
		if platform.IsUniqueViolation(err) {
			return nil, ErrPhoneTaken
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	return &User{
		ID:           id,
		PhoneNumber:  phone,
		Email:        p.Email,
		FullName:     p.FullName,
		PasswordHash: p.PasswordHash,
		Role:         p.Role,
		Apartment:    p.Apartment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Update rewrites the editable fields and returns the stored row. A nil
// PasswordHash keeps the existing credential.
func (s *Store) Update(ctx context.Context, id int64, p Params) (*User, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	phone := homeindex.Normalize(p.PhoneNumber)
	if phone == "" {
		return nil, fmt.Errorf("empty phone number")
	}
	if p.Role == "" {
		p.Role = "resident"
	}

	var (
		query string
		args  []any
	)
	if p.PasswordHash != nil {
		query = fmt.Sprintf(
			`UPDATE %s SET phone_number = ?, email = ?, full_name = ?, password_hash = ?,
				role = ?, apartment = ?, updated_at = ? WHERE id = ?`, s.table())
		args = []any{phone, p.Email, p.FullName, p.PasswordHash, p.Role, p.Apartment, time.Now().UTC(), id}
	} else {
		query = fmt.Sprintf(
			`UPDATE %s SET phone_number = ?, email = ?, full_name = ?,
				role = ?, apartment = ?, updated_at = ? WHERE id = ?`, s.table())
		args = []any{phone, p.Email, p.FullName, p.Role, p.Apartment, time.Now().UTC(), id}
	}

	res, err := s.pool.DB().ExecContext(qctx, s.pool.Rebind(query), args...)
	if err != nil {
		if platform.IsUniqueViolation(err) {
			return nil, ErrPhoneTaken
		}
		return nil, fmt.Errorf("updating user %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a user row.
func (s *Store) Delete(ctx context.Context, id int64) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table()))
	res, err := s.pool.DB().ExecContext(qctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPhotoURL points the user at the uploaded photo.
func (s *Store) SetPhotoURL(ctx context.Context, id int64, url string) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET photo_url = ?, updated_at = ? WHERE id = ?`, s.table()))
	res, err := s.pool.DB().ExecContext(qctx, query, url, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("setting user photo: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPushToken stores the device token pushes are sent to. An empty token
// clears it.
func (s *Store) SetPushToken(ctx context.Context, id int64, token string) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	var tok *string
	if token != "" {
		tok = &token
	}

	query := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET push_token = ?, updated_at = ? WHERE id = ?`, s.table()))
	res, err := s.pool.DB().ExecContext(qctx, query, tok, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("setting push token: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
