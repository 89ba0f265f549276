package tenantddl

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/platform"
)

const probeQuery = `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`

func testDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlserver"), mock
}

func TestCreateTablesSkipsExisting(t *testing.T) {
	db, mock := testDB(t)

	for _, name := range Names() {
		mock.ExpectQuery(regexp.QuoteMeta(probeQuery)).
			WithArgs("beresheet", name).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	}

	b := New(platform.EngineSQLServer)
	if err := b.CreateTables(context.Background(), db, "beresheet"); err != nil {
		t.Fatalf("CreateTables: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateTablesBuildsMissing(t *testing.T) {
	db, mock := testDB(t)

	for i, name := range Names() {
		count := 1
		if i == 0 {
			count = 0
		}
		mock.ExpectQuery(regexp.QuoteMeta(probeQuery)).
			WithArgs("beresheet", name).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
		if count == 0 {
			mock.ExpectExec(`CREATE TABLE \[beresheet\]\.\[` + name + `\]`).
				WillReturnResult(sqlmock.NewResult(0, 0))
		}
	}

	b := New(platform.EngineSQLServer)
	if err := b.CreateTables(context.Background(), db, "beresheet"); err != nil {
		t.Fatalf("CreateTables: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestNamesCoversDomainTables(t *testing.T) {
	names := Names()
	if len(names) != len(tables) {
		t.Fatalf("Names() returned %d entries, want %d", len(names), len(tables))
	}
	want := map[string]bool{
		"users":               true,
		"events":              true,
		"events_registration": true,
		"requests":            true,
		"request_messages":    true,
	}
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	for n := range want {
		if !seen[n] {
			t.Errorf("Names() missing %q", n)
		}
	}
	for _, tbl := range tables {
		for _, engine := range []platform.Engine{platform.EngineSQLServer, platform.EngineOracle} {
			if tbl.ddl[engine] == "" {
				t.Errorf("table %q has no DDL for %s", tbl.name, engine)
			}
		}
	}
}
