package homeindex

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0541111666", "541111666"},
		{"00541111666", "541111666"},
		{"541111666", "541111666"},
		{"+972541111666", "+972541111666"},
		{" 0541111666 ", "541111666"},
		{"", ""},
		{"0", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	// Idempotence: normalizing a normalized number changes nothing.
	for _, tt := range tests {
		once := Normalize(tt.in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize(Normalize(%q)) = %q, want %q", tt.in, twice, once)
		}
	}
}

func testPool(t *testing.T) (*dbpool.Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	pool := dbpool.NewPool(sqlx.NewDb(db, "sqlserver"), platform.EngineSQLServer,
		platform.IndexSchema, time.Second, time.Second)
	return pool, mock
}

func entryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"phone_number", "home_id", "home_name", "created_at", "updated_at"})
}

func TestStoreGetNormalizesInput(t *testing.T) {
	pool, mock := testPool(t)
	store := NewStore(pool)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT phone_number, home_id, home_name, created_at, updated_at FROM [home_index].[home_index] WHERE phone_number = @p1`,
	)).WithArgs("541111666").WillReturnRows(
		entryRows().AddRow("541111666", 1, "beresheet", now, now),
	)

	entry, err := store.Get(context.Background(), "0541111666")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.HomeID != 1 || entry.HomeName != "beresheet" || entry.PhoneNumber != "541111666" {
		t.Errorf("entry = %+v", entry)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	pool, mock := testPool(t)
	store := NewStore(pool)

	mock.ExpectQuery(`SELECT .+ FROM \[home_index\]\.\[home_index\]`).
		WillReturnRows(entryRows())

	if _, err := store.Get(context.Background(), "999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestStoreUpsertUpdatesExisting(t *testing.T) {
	pool, mock := testPool(t)
	store := NewStore(pool)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE [home_index].[home_index] SET home_id = @p1, home_name = @p2, updated_at = @p3 WHERE phone_number = @p4`,
	)).WithArgs(int64(2), "northside", sqlmock.AnyArg(), "541111666").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := store.Upsert(context.Background(), "0541111666", 2, "northside")
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if entry.PhoneNumber != "541111666" || entry.HomeID != 2 {
		t.Errorf("entry = %+v", entry)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStoreUpsertInsertsWhenMissing(t *testing.T) {
	pool, mock := testPool(t)
	store := NewStore(pool)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE \[home_index\]\.\[home_index\]`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO [home_index].[home_index] (phone_number, home_id, home_name, created_at, updated_at) VALUES (@p1, @p2, @p3, @p4, @p5)`,
	)).WithArgs("541111666", int64(1), "beresheet", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if _, err := store.Upsert(context.Background(), "0541111666", 1, "beresheet"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStoreDelete(t *testing.T) {
	pool, mock := testPool(t)
	store := NewStore(pool)

	mock.ExpectExec(`DELETE FROM \[home_index\]\.\[home_index\] WHERE phone_number = @p1`).
		WithArgs("541111666").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "0541111666"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete = %v, want ErrNotFound", err)
	}
}

func TestHandleLookup(t *testing.T) {
	pool, mock := testPool(t)
	h := NewHandler(NewStore(pool), slog.Default())
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM \[home_index\]\.\[home_index\] WHERE phone_number = @p1`).
		WithArgs("541111666").
		WillReturnRows(entryRows().AddRow("541111666", 1, "beresheet", now, now))

	r := httptest.NewRequest("GET", "/api/home_index/get_home_by_phone?phone_number=0541111666", nil)
	w := httptest.NewRecorder()
	h.HandleLookup(w, r)

	if w.Code != 200 {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp lookupResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.HomeID != 1 || resp.HomeName != "beresheet" || resp.PhoneNumber != "541111666" {
		t.Errorf("response = %+v, want normalized echo", resp)
	}
}

func TestHandleLookupMissingParam(t *testing.T) {
	pool, _ := testPool(t)
	h := NewHandler(NewStore(pool), slog.Default())

	r := httptest.NewRequest("GET", "/api/home_index/get_home_by_phone", nil)
	w := httptest.NewRecorder()
	h.HandleLookup(w, r)

	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleLookupUnknownNumber(t *testing.T) {
	pool, mock := testPool(t)
	h := NewHandler(NewStore(pool), slog.Default())

	mock.ExpectQuery(`SELECT .+ FROM \[home_index\]\.\[home_index\]`).
		WillReturnRows(entryRows())

	r := httptest.NewRequest("GET", "/api/home_index/get_home_by_phone?phone_number=12345", nil)
	w := httptest.NewRecorder()
	h.HandleLookup(w, r)

	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
