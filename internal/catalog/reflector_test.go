package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
)

func testReflector(t *testing.T) (*Reflector, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg := dbpool.NewRegistry(dbpool.Options{
		Engine:      platform.EngineSQLServer,
		DSN:         func(user, password string) string { return "" },
		Credentials: func(schema string) (string, string, error) { return schema, schema, nil },
	})
	reg.Seed(dbpool.NewPool(sqlx.NewDb(db, "sqlserver"), platform.EngineSQLServer, "beresheet", time.Second, time.Second))

	return NewReflector(reg), mock
}

// expectUsersTable queues the three dictionary queries one reflection of
// beresheet.users performs.
func expectUsersTable(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`FROM INFORMATION_SCHEMA\.COLUMNS`).
		WithArgs("beresheet", "users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "ORDINAL_POSITION"}).
			AddRow("id", "bigint", "NO", 1).
			AddRow("phone_number", "nvarchar", "NO", 2).
			AddRow("email", "nvarchar", "YES", 3))

	mock.ExpectQuery(`CONSTRAINT_TYPE = 'PRIMARY KEY'`).
		WithArgs("beresheet", "users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))

	mock.ExpectQuery(`FROM sys\.indexes`).
		WithArgs("beresheet", "users").
		WillReturnRows(sqlmock.NewRows([]string{"index_name", "is_unique", "column_name"}).
			AddRow("uq_users_phone", true, "phone_number").
			AddRow("ix_users_name", false, "full_name").
			AddRow("ix_users_name", false, "created_at"))
}

func TestTableReflectsShape(t *testing.T) {
	r, mock := testReflector(t)
	expectUsersTable(mock)

	tbl, err := r.Table(context.Background(), "beresheet", "users")
	if err != nil {
		t.Fatalf("Table() error: %v", err)
	}

	if tbl.Schema != "beresheet" || tbl.Name != "users" {
		t.Errorf("reflected %s.%s, want beresheet.users", tbl.Schema, tbl.Name)
	}
	if got := tbl.ColumnNames(); len(got) != 3 || got[0] != "id" || got[2] != "email" {
		t.Errorf("ColumnNames() = %v, want [id phone_number email]", got)
	}

	email, ok := tbl.Column("email")
	if !ok {
		t.Fatal("Column(email) not found")
	}
	if !email.Nullable {
		t.Error("email should be nullable")
	}
	if phone, _ := tbl.Column("phone_number"); phone.Nullable {
		t.Error("phone_number should not be nullable")
	}

	if len(tbl.PrimaryKey) != 1 || tbl.PrimaryKey[0] != "id" {
		t.Errorf("PrimaryKey = %v, want [id]", tbl.PrimaryKey)
	}

	// Rows belonging to the same index collapse into one entry.
	if len(tbl.Indexes) != 2 {
		t.Fatalf("Indexes = %d entries, want 2", len(tbl.Indexes))
	}
	if tbl.Indexes[0].Name != "uq_users_phone" || !tbl.Indexes[0].Unique {
		t.Errorf("index 0 = %+v, want unique uq_users_phone", tbl.Indexes[0])
	}
	if got := tbl.Indexes[1].Columns; len(got) != 2 || got[0] != "full_name" || got[1] != "created_at" {
		t.Errorf("ix_users_name columns = %v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTableServesSecondCallFromCache(t *testing.T) {
	r, mock := testReflector(t)
	expectUsersTable(mock)

	first, err := r.Table(context.Background(), "beresheet", "users")
	if err != nil {
		t.Fatalf("Table() error: %v", err)
	}
	if r.Size() != 1 {
		t.Fatalf("Size() = %d after first reflection, want 1", r.Size())
	}

	// No further expectations are queued: any query here fails the test.
	second, err := r.Table(context.Background(), "beresheet", "users")
	if err != nil {
		t.Fatalf("cached Table() error: %v", err)
	}
	if second != first {
		t.Error("second call returned a different shape than the cached one")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTableMissingIsNotCached(t *testing.T) {
	r, mock := testReflector(t)

	// An absent table yields zero column rows and skips the remaining
	// dictionary queries.
	mock.ExpectQuery(`FROM INFORMATION_SCHEMA\.COLUMNS`).
		WithArgs("beresheet", "users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "ORDINAL_POSITION"}))

	_, err := r.Table(context.Background(), "beresheet", "users")
	if !errors.Is(err, ErrTableMissing) {
		t.Fatalf("Table() error = %v, want ErrTableMissing", err)
	}
	if r.Size() != 0 {
		t.Fatalf("missing table left %d cache entries", r.Size())
	}

	// Once provisioning catches up, the next call reflects normally.
	expectUsersTable(mock)
	if _, err := r.Table(context.Background(), "beresheet", "users"); err != nil {
		t.Fatalf("Table() after table appeared: %v", err)
	}
	if r.Size() != 1 {
		t.Errorf("Size() = %d, want 1", r.Size())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTablePoolFailure(t *testing.T) {
	reg := dbpool.NewRegistry(dbpool.Options{
		Engine: platform.EngineSQLServer,
		DSN:    func(user, password string) string { return "" },
		Credentials: func(schema string) (string, string, error) {
			return "", "", errors.New("no such principal")
		},
	})
	r := NewReflector(reg)

	if _, err := r.Table(context.Background(), "ghost", "users"); err == nil {
		t.Fatal("Table() with unreachable pool succeeded")
	}
	if r.Size() != 0 {
		t.Errorf("failed reflection left %d cache entries", r.Size())
	}
}
