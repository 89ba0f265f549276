package gate

import (
	"net/http"
	"strings"
)

// Mode is the validation the gate applies to one projected route. It is
// derived from the canonical pattern at projection time, never per request.
type Mode int

const (
	// ModeStandard requires the homeID header to equal the resolved
	// tenant's id. All domain API routes run here.
	ModeStandard Mode = iota

	// ModeAuth resolves the tenant only; the caller has not authenticated
	// yet. Applied to /api/auth/... routes.
	ModeAuth

	// ModeWeb is the standard check with a browser fallback: a missing
	// homeID header may be satisfied by a valid web session cookie, and
	// failures redirect to the tenant's login page instead of returning
	// JSON.
	ModeWeb

	// ModeTenantOnly resolves the tenant and nothing else. The login page
	// and its assets run here; they must render for signed-out users.
	ModeTenantOnly
)

func (m Mode) String() string {
	switch m {
	case ModeAuth:
		return "auth"
	case ModeWeb:
		return "web"
	case ModeTenantOnly:
		return "tenant_only"
	default:
		return "standard"
	}
}

// Route is one canonical operation: a handler registered against the path it
// would occupy in a single-tenant deployment.
type Route struct {
	Method  string
	Pattern string // canonical, e.g. /api/events/{id}
	Name    string // operation id, e.g. list_events
	Web     bool   // browser-facing: gate failures redirect instead of JSON
	Handler http.HandlerFunc
}

// Mode classifies the route from its canonical pattern.
func (r Route) Mode() Mode {
	switch {
	case r.Pattern == "/api/auth" || strings.HasPrefix(r.Pattern, "/api/auth/"):
		return ModeAuth
	case r.Pattern == "/login" || strings.HasPrefix(r.Pattern, "/login/"):
		return ModeTenantOnly
	case r.Web:
		return ModeWeb
	default:
		return ModeStandard
	}
}

// RouteSet collects canonical routes for projection. Register everything at
// startup, then hand the set to a Projector; the set is not safe for
// concurrent mutation.
type RouteSet struct {
	routes []Route
}

// NewRouteSet creates an empty route set.
func NewRouteSet() *RouteSet {
	return &RouteSet{}
}

// Handle registers a canonical API route.
func (s *RouteSet) Handle(method, pattern, name string, h http.HandlerFunc) {
	s.routes = append(s.routes, Route{Method: method, Pattern: pattern, Name: name, Handler: h})
}

// HandleWeb registers a browser-facing route: on gate failure the response
// is a redirect to the tenant's login page rather than a JSON error.
func (s *RouteSet) HandleWeb(method, pattern, name string, h http.HandlerFunc) {
	s.routes = append(s.routes, Route{Method: method, Pattern: pattern, Name: name, Web: true, Handler: h})
}

// Routes returns the registered routes in registration order.
func (s *RouteSet) Routes() []Route {
	return s.routes
}

// Operation describes one projected route; internal/docs serves the full
// list as the operations index.
type Operation struct {
	Name    string `json:"name"`
	Method  string `json:"method"`
	Pattern string `json:"pattern"`
	Mode    string `json:"mode"`
}
