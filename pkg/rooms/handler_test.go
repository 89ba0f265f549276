package rooms

import (
	"net/http"
	"net/http/httptest"
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

func testRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
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

	env := &gate.Env{
		Tenant: &tenant.Record{ID: 1, Name: "beresheet", DatabaseSchema: "beresheet"},
		HomeID: 1,
		Deps:   &gate.Deps{Pools: reg},
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
	return r, mock
}

func TestHandlerCreateRoomValidation(t *testing.T) {
	router, _ := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/rooms",
		strings.NewReader(`{"capacity":-1}`)))

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (body %s)", w.Code, w.Body.String())
	}
}

func TestHandlerGetRoomNotFound(t *testing.T) {
	router, mock := testRouter(t)

	mock.ExpectQuery(`SELECT id, name, description, location, capacity, created_at, updated_at FROM \[beresheet\]\.\[rooms\] WHERE id = @p1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/99", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (body %s)", w.Code, w.Body.String())
	}
}

func TestHandlerCreateProviderType(t *testing.T) {
	router, mock := testRouter(t)

	mock.ExpectQuery(`INSERT INTO \[beresheet\]\.\[service_provider_types\]`).
		WithArgs("Electrician", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/service_provider_types",
		strings.NewReader(`{"name":"Electrician"}`)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"name":"Electrician"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHandlerRouteNames(t *testing.T) {
	set := gate.NewRouteSet()
	NewHandler(nil).Register(set)

	names := map[string]bool{}
	for _, rt := range set.Routes() {
		names[rt.Name] = true
		if rt.Mode() != gate.ModeStandard {
			t.Errorf("route %s mode = %v, want standard", rt.Name, rt.Mode())
		}
	}
	for _, want := range []string{"list_rooms", "create_room", "get_room", "update_room",
		"delete_room", "list_provider_types", "create_provider_type", "get_provider_type",
		"update_provider_type", "delete_provider_type"} {
		if !names[want] {
			t.Errorf("route %s not registered", want)
		}
	}
}
