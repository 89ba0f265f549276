package tenant

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/platform"
)

func testStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(sqlx.NewDb(db, "sqlserver"), platform.EngineSQLServer), mock
}

func recordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "database_name", "database_type", "database_schema",
		"admin_user_email", "admin_user_password", "created_at", "updated_at",
	})
}

func TestStoreGetByName(t *testing.T) {
	store, mock := testStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, name, database_name, database_type, database_schema, admin_user_email, admin_user_password, created_at, updated_at FROM [admin].[home] WHERE name = @p1`,
	)).WithArgs("beresheet").WillReturnRows(
		recordRows().AddRow(1, "beresheet", "hearth", "sqlserver", "beresheet", "admin@beresheet.example", "seed-pass", now, now),
	)

	rec, err := store.GetByName(context.Background(), "beresheet")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if rec.ID != 1 || rec.DatabaseSchema != "beresheet" {
		t.Errorf("record = %+v", rec)
	}
	if rec.AdminUserPassword != "seed-pass" {
		t.Errorf("AdminUserPassword = %q, want stored value back verbatim", rec.AdminUserPassword)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStoreGetByName_NotFound(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectQuery(`SELECT .+ FROM \[admin\]\.\[home\] WHERE name = @p1`).
		WithArgs("nowhere").
		WillReturnRows(recordRows())

	_, err := store.GetByName(context.Background(), "nowhere")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByName = %v, want ErrNotFound", err)
	}
}

func TestStoreInsert(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO [admin].[home] (name, database_name, database_type, database_schema, admin_user_email, admin_user_password, created_at, updated_at) OUTPUT INSERTED.id VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8)`,
	)).WithArgs(
		"beresheet", "hearth", "sqlserver", "beresheet",
		"admin@beresheet.example", "seed-pass", sqlmock.AnyArg(), sqlmock.AnyArg(),
	).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	rec := &Record{
		Name:              "beresheet",
		DatabaseName:      "hearth",
		DatabaseType:      "sqlserver",
		DatabaseSchema:    "beresheet",
		AdminUserEmail:    "admin@beresheet.example",
		AdminUserPassword: "seed-pass",
	}
	if err := store.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rec.ID != 42 {
		t.Errorf("ID = %d, want 42", rec.ID)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("Insert left timestamps zero")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStoreInsert_NameTaken(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectQuery(`INSERT INTO \[admin\]\.\[home\]`).
		WillReturnError(errors.New("mssql: Violation of UNIQUE KEY constraint 'uq_home_name'"))

	err := store.Insert(context.Background(), &Record{Name: "beresheet"})
	if !errors.Is(err, ErrNameTaken) {
		t.Errorf("Insert = %v, want ErrNameTaken", err)
	}
}

func TestStoreDelete(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM [admin].[home] WHERE name = @p1`)).
		WithArgs("beresheet").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Delete(context.Background(), "beresheet"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	mock.ExpectExec(`DELETE FROM \[admin\]\.\[home\] WHERE name = @p1`).
		WithArgs("beresheet").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "beresheet"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestStoreList(t *testing.T) {
	store, mock := testStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, name, database_name, database_type, database_schema, admin_user_email, admin_user_password, created_at, updated_at FROM [admin].[home] ORDER BY id`,
	)).WillReturnRows(
		recordRows().
			AddRow(1, "beresheet", "hearth", "sqlserver", "beresheet", "a@x.example", "p1", now, now).
			AddRow(2, "northside", "hearth", "sqlserver", "northside", "b@x.example", "p2", now, now),
	)

	recs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 || recs[0].Name != "beresheet" || recs[1].Name != "northside" {
		t.Errorf("List = %+v", recs)
	}
}
