// Package webui serves the embedded browser shell: the per-home login page
// under /{tenant}/login and the app shell under /{tenant}/web. The real
// front-end bundle is deployed separately; this shell is enough to exercise
// the web gate, the session cookies, and the auth endpoints end to end.
package webui

import (
	"embed"
	"io/fs"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/pkg/gate"
)

//go:embed static
var assets embed.FS

// Handler serves the embedded shell pages and their assets.
type Handler struct{}

// NewHandler creates the shell handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Register adds the browser routes to the canonical route set. The login
// page and its assets render for signed-out users; the app shell sits behind
// the web gate and redirects to the login page without a session.
func (h *Handler) Register(set *gate.RouteSet) {
	set.Handle(http.MethodGet, "/login", "login_page", h.servePage("login.html"))
	set.Handle(http.MethodGet, "/login/{asset}", "login_asset", h.serveParamAsset)
	set.HandleWeb(http.MethodGet, "/web", "web_app", h.servePage("app.html"))
	set.HandleWeb(http.MethodGet, "/web/{asset}", "web_asset", h.serveParamAsset)
}

func (h *Handler) servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serveAsset(w, name)
	}
}

func (h *Handler) serveParamAsset(w http.ResponseWriter, r *http.Request) {
	// Base strips any path traversal the router let through.
	h.serveAsset(w, path.Base(chi.URLParam(r, "asset")))
}

func (h *Handler) serveAsset(w http.ResponseWriter, name string) {
	data, err := fs.ReadFile(assets, "static/"+name)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no such asset")
		return
	}

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
