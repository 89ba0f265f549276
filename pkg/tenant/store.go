package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/platform"
)

const recordColumns = `id, name, database_name, database_type, database_schema, admin_user_email, admin_user_password, created_at, updated_at`

// Store reads and writes home records in the admin.home registry table.
// All queries run on the admin connection.
type Store struct {
	db     *sqlx.DB
	engine platform.Engine
	table  string
}

// NewStore creates a Store over the admin connection.
func NewStore(db *sqlx.DB, engine platform.Engine) *Store {
	return &Store{
		db:     db,
		engine: engine,
		table:  engine.QualifyTable(platform.AdminSchema, "home"),
	}
}

// GetByName loads the record for a home name.
func (s *Store) GetByName(ctx context.Context, name string) (*Record, error) {
	query := platform.Rebind(s.engine, fmt.Sprintf(`SELECT %s FROM %s WHERE name = ?`, recordColumns, s.table))

	var rec Record
	if err := s.db.GetContext(ctx, &rec, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading home %s: %w", name, err)
	}
	return &rec, nil
}

// GetByID loads the record for a home id.
func (s *Store) GetByID(ctx context.Context, id int64) (*Record, error) {
	query := platform.Rebind(s.engine, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, recordColumns, s.table))

	var rec Record
	if err := s.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading home id %d: %w", id, err)
	}
	return &rec, nil
}

// List returns every registered home in creation order.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, recordColumns, s.table)

	recs := []Record{}
	if err := s.db.SelectContext(ctx, &recs, query); err != nil {
		return nil, fmt.Errorf("listing homes: %w", err)
	}
	return recs, nil
}

// Insert writes a new record and fills in its generated id and timestamps.
// A name collision surfaces as ErrNameTaken.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	columns := []string{
		"name", "database_name", "database_type", "database_schema",
		"admin_user_email", "admin_user_password", "created_at", "updated_at",
	}
	id, err := platform.InsertReturningID(ctx, s.db, s.engine, s.table, columns,
		rec.Name, rec.DatabaseName, rec.DatabaseType, rec.DatabaseSchema,
		rec.AdminUserEmail, rec.AdminUserPassword, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if platform.IsUniqueViolation(err) {
			return ErrNameTaken
		}
		return fmt.Errorf("inserting home %s: %w", rec.Name, err)
	}
	rec.ID = id
	return nil
}

// Delete removes the record for a home name. Deleting a name that is not
// registered returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	query := platform.Rebind(s.engine, fmt.Sprintf(`DELETE FROM %s WHERE name = ?`, s.table))

	res, err := s.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("deleting home %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
