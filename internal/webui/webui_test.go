package webui

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/pkg/gate"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()

	set := gate.NewRouteSet()
	NewHandler().Register(set)

	r := chi.NewRouter()
	for _, rt := range set.Routes() {
		r.Method(rt.Method, rt.Pattern, rt.Handler)
	}
	return r
}

func TestShellPages(t *testing.T) {
	router := testRouter(t)

	tests := []struct {
		path        string
		wantStatus  int
		wantType    string
		wantContent string
	}{
		{"/login", http.StatusOK, "text/html", "<form"},
		{"/web", http.StatusOK, "text/html", "api/auth/validate"},
		{"/login/hearth.css", http.StatusOK, "text/css", ".card"},
		{"/web/hearth.css", http.StatusOK, "text/css", ".card"},
		{"/login/missing.js", http.StatusNotFound, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantType != "" && !strings.Contains(w.Header().Get("Content-Type"), tt.wantType) {
				t.Errorf("content type = %q, want %q", w.Header().Get("Content-Type"), tt.wantType)
			}
			if tt.wantContent != "" && !strings.Contains(w.Body.String(), tt.wantContent) {
				t.Errorf("body does not contain %q", tt.wantContent)
			}
		})
	}
}

func TestRouteModes(t *testing.T) {
	set := gate.NewRouteSet()
	NewHandler().Register(set)

	want := map[string]gate.Mode{
		"login_page":  gate.ModeTenantOnly,
		"login_asset": gate.ModeTenantOnly,
		"web_app":     gate.ModeWeb,
		"web_asset":   gate.ModeWeb,
	}
	for _, rt := range set.Routes() {
		if got := rt.Mode(); got != want[rt.Name] {
			t.Errorf("route %q mode = %v, want %v", rt.Name, got, want[rt.Name])
		}
	}
}
