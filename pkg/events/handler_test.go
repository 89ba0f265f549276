package events

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
	"github.com/hearthhq/hearth/pkg/gate"
	"github.com/hearthhq/hearth/pkg/tenant"
)

type fakeBlobs struct {
	uploads map[string]string
}

func (f *fakeBlobs) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	f.uploads[key] = contentType
	return "https://media.example/" + key, nil
}

func (f *fakeBlobs) Delete(ctx context.Context, key string) error           { return nil }
func (f *fakeBlobs) EnsurePrefix(ctx context.Context, homeID int64) error   { return nil }
func (f *fakeBlobs) RemovePrefix(ctx context.Context, homeID int64) error   { return nil }
func (f *fakeBlobs) PrefixEmpty(ctx context.Context, homeID int64) (bool, error) {
	return true, nil
}

func testRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock, *fakeBlobs) {
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

	blobs := &fakeBlobs{}
	env := &gate.Env{
		Tenant: &tenant.Record{ID: 1, Name: "beresheet", DatabaseSchema: "beresheet"},
		HomeID: 1,
		Deps:   &gate.Deps{Pools: reg, Blobs: blobs},
	}

	set := gate.NewRouteSet()
	NewHandler(nil).Register(set)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(gate.NewContext(req.Context(), env)))
		})
	})
	for _, rt := range set.Routes() {
		r.Method(rt.Method, rt.Pattern, rt.Handler)
	}
	return r, mock, blobs
}

func TestHandlerRegisterConflict(t *testing.T) {
	router, mock, _ := testRouter(t)

	mock.ExpectBegin()
	mock.ExpectExec(claimQuery).
		WithArgs(sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(probeQuery).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/events/5/register",
		strings.NewReader(`{"user_id":3}`)))

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "event_full") {
		t.Errorf("body should name the conflict: %s", w.Body.String())
	}
}

func TestHandlerGetEvent(t *testing.T) {
	router, mock, _ := testRouter(t)

	mock.ExpectQuery(`(?s)SELECT id, name,.*FROM \[beresheet\]\.\[events\] WHERE id = @p1`).
		WithArgs(int64(5)).
		WillReturnRows(eventRows())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events/5", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Morning yoga") {
		t.Errorf("body missing event name: %s", w.Body.String())
	}
}

func TestHandlerGetEventNotFound(t *testing.T) {
	router, mock, _ := testRouter(t)

	mock.ExpectQuery(`(?s)SELECT id, name,.*FROM \[beresheet\]\.\[events\] WHERE id = @p1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events/99", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandlerCreateEventValidation(t *testing.T) {
	router, _, _ := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/events",
		strings.NewReader(`{"name":""}`)))

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (body %s)", w.Code, w.Body.String())
	}
}

func TestHandlerUploadImage(t *testing.T) {
	router, mock, blobs := testRouter(t)

	mock.ExpectQuery(`(?s)SELECT id, name,.*FROM \[beresheet\]\.\[events\] WHERE id = @p1`).
		WithArgs(int64(5)).
		WillReturnRows(eventRows())
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE [beresheet].[events] SET image_url = @p1, updated_at = @p2 WHERE id = @p3`)).
		WithArgs("https://media.example/1/events/images/5.jpg", sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "party.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte("jpeg-bytes")); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/events/5/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if _, ok := blobs.uploads["1/events/images/5.jpg"]; !ok {
		t.Errorf("upload key missing; got %v", blobs.uploads)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHandlerRouteNames(t *testing.T) {
	set := gate.NewRouteSet()
	NewHandler(nil).Register(set)

	want := map[string]bool{
		"list_events":             true,
		"register_for_event":      true,
		"unregister_from_event":   true,
		"upload_event_image":      true,
		"list_instructors":        true,
		"upload_instructor_photo": true,
	}
	seen := map[string]bool{}
	for _, rt := range set.Routes() {
		seen[rt.Name] = true
		if rt.Mode() != gate.ModeStandard {
			t.Errorf("route %q mode = %v, want standard", rt.Name, rt.Mode())
		}
	}
	for name := range want {
		if !seen[name] {
			t.Errorf("route %q not registered", name)
		}
	}
}
