package homeindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
)

const entryColumns = `phone_number, home_id, home_name, created_at, updated_at`

// Store reads and writes the directory table through the index-scoped pool.
type Store struct {
	pool *dbpool.Pool
}

// NewStore creates a Store over the home_index pool.
func NewStore(pool *dbpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) table() string {
	return s.pool.Engine().QualifyTable(platform.IndexSchema, "home_index")
}

// Get looks up the entry for a phone number. The input is normalized first,
// so callers may pass numbers exactly as users typed them.
func (s *Store) Get(ctx context.Context, phone string) (*Entry, error) {
	phone = Normalize(phone)

	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE phone_number = ?`, entryColumns, s.table()))

	var entry Entry
	if err := s.pool.DB().GetContext(qctx, &entry, query, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up phone number: %w", err)
	}
	return &entry, nil
}

// Upsert inserts or replaces the mapping for a phone number. Update-then-
// insert inside a transaction is the portable upsert both engines accept.
func (s *Store) Upsert(ctx context.Context, phone string, homeID int64, homeName string) (*Entry, error) {
	phone = Normalize(phone)
	if phone == "" {
		return nil, fmt.Errorf("empty phone number")
	}

	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	tx, err := s.pool.DB().BeginTxx(qctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning index transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	update := s.pool.Rebind(fmt.Sprintf(
		`UPDATE %s SET home_id = ?, home_name = ?, updated_at = ? WHERE phone_number = ?`, s.table()))
	res, err := tx.ExecContext(qctx, update, homeID, homeName, now, phone)
	if err != nil {
		return nil, fmt.Errorf("updating index entry: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		insert := s.pool.Rebind(fmt.Sprintf(
			`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?)`, s.table(), entryColumns))
		if _, err := tx.ExecContext(qctx, insert, phone, homeID, homeName, now, now); err != nil {
			return nil, fmt.Errorf("inserting index entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing index entry: %w", err)
	}
	return &Entry{PhoneNumber: phone, HomeID: homeID, HomeName: homeName, CreatedAt: now, UpdatedAt: now}, nil
}

// Delete removes the mapping for a phone number. Deleting a number that was
// never indexed returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, phone string) error {
	phone = Normalize(phone)

	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE phone_number = ?`, s.table()))
	res, err := s.pool.DB().ExecContext(qctx, query, phone)
	if err != nil {
		return fmt.Errorf("deleting index entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByHome removes every mapping that points at a home. Used when a
// home's users are bulk-removed.
func (s *Store) DeleteByHome(ctx context.Context, homeID int64) error {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE home_id = ?`, s.table()))
	if _, err := s.pool.DB().ExecContext(qctx, query, homeID); err != nil {
		return fmt.Errorf("deleting index entries for home %d: %w", homeID, err)
	}
	return nil
}

// List returns a page of entries ordered by phone number, plus the total
// count.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	qctx, cancel := s.pool.QueryCtx(ctx)
	defer cancel()

	query := s.pool.Rebind(fmt.Sprintf(
		`SELECT %s FROM %s ORDER BY phone_number OFFSET ? ROWS FETCH NEXT ? ROWS ONLY`,
		entryColumns, s.table()))

	entries := []Entry{}
	if err := s.pool.DB().SelectContext(qctx, &entries, query, offset, limit); err != nil {
		return nil, 0, fmt.Errorf("listing index entries: %w", err)
	}

	var total int
	count := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table())
	if err := s.pool.DB().GetContext(qctx, &total, count); err != nil {
		return nil, 0, fmt.Errorf("counting index entries: %w", err)
	}
	return entries, total, nil
}
