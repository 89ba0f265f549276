package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/internal/telemetry"
	"github.com/hearthhq/hearth/internal/webtoken"
	"github.com/hearthhq/hearth/pkg/tenant"
)

// TenantLookup resolves a home name to its registry record. tenant.Service
// satisfies it.
type TenantLookup interface {
	LookupByName(ctx context.Context, name string) (*tenant.Record, error)
}

// Gate validates every projected request before its handler runs: it
// resolves the tenant from the URL, checks the caller's claimed home against
// it, and attaches the Env the handler will work from. The gate is
// synchronous; on any rejection the handler is never invoked.
type Gate struct {
	lookup   TenantLookup
	sessions *webtoken.Manager
	deps     *Deps
	logger   *slog.Logger
}

// New creates a Gate. sessions validates web_jwt_token cookies on web
// routes; it may be nil when no web surface is mounted.
func New(lookup TenantLookup, sessions *webtoken.Manager, deps *Deps, logger *slog.Logger) *Gate {
	return &Gate{lookup: lookup, sessions: sessions, deps: deps, logger: logger}
}

// Wrap returns the gated handler for one route in the given mode.
func (g *Gate) Wrap(mode Mode, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "tenant_name")

		rec, err := g.lookup.LookupByName(r.Context(), name)
		if err != nil {
			if errors.Is(err, tenant.ErrNotFound) {
				telemetry.GateRejections.WithLabelValues("tenant_not_found").Inc()
				g.reject(w, r, mode, name, http.StatusNotFound, "not_found",
					fmt.Sprintf("home %q not found", name))
				return
			}
			httpserver.WriteError(w, r, g.logger, err)
			return
		}

		env := &Env{
			Tenant:    rec,
			HomeID:    rec.ID,
			UserID:    r.Header.Get("userId"),
			PushToken: r.Header.Get("firebaseToken"),
			Deps:      g.deps,
		}

		if mode == ModeStandard || mode == ModeWeb {
			if !g.authenticate(w, r, mode, rec, env) {
				return
			}
		}

		// The registry lookup may have outlived the caller; a request that
		// died during the gate must not reach the handler.
		if err := r.Context().Err(); err != nil {
			telemetry.GateRejections.WithLabelValues("canceled").Inc()
			if errors.Is(err, context.DeadlineExceeded) {
				httpserver.WriteError(w, r, g.logger, err)
			}
			return
		}

		next(w, r.WithContext(NewContext(r.Context(), env)))
	}
}

// authenticate enforces caller identity on standard and web routes. It
// reports whether the request may proceed; on false a response has been
// written.
func (g *Gate) authenticate(w http.ResponseWriter, r *http.Request, mode Mode, rec *tenant.Record, env *Env) bool {
	if header := r.Header.Get("homeID"); header != "" {
		id, err := strconv.ParseInt(header, 10, 64)
		if err != nil || id != rec.ID {
			telemetry.GateRejections.WithLabelValues("header_mismatch").Inc()
			httpserver.RespondError(w, http.StatusBadRequest, "tenant_mismatch",
				fmt.Sprintf("homeID header %q doesn't match home %q", header, rec.Name))
			return false
		}
		return true
	}

	if mode == ModeWeb {
		if claims := g.webSession(r); claims != nil && claims.HomeID == rec.ID {
			env.UserID = strconv.FormatInt(claims.UserID, 10)
			return true
		}
		telemetry.GateRejections.WithLabelValues("web_session").Inc()
		http.Redirect(w, r, "/"+rec.Name+"/login", http.StatusFound)
		return false
	}

	telemetry.GateRejections.WithLabelValues("unauthenticated").Inc()
	httpserver.RespondError(w, http.StatusUnauthorized, "unauthenticated", "homeID header is required")
	return false
}

// webSession returns the validated access-token claims from the session
// cookie, or nil when there is no usable session.
func (g *Gate) webSession(r *http.Request) *webtoken.Claims {
	if g.sessions == nil {
		return nil
	}
	cookie, err := r.Cookie(webtoken.SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	claims, err := g.sessions.Validate(cookie.Value, webtoken.TypeAccess)
	if err != nil {
		return nil
	}
	return claims
}

// reject writes a gate failure in the shape the route expects: browsers get
// a redirect to the tenant's login page when one can exist, API callers get
// the JSON envelope.
func (g *Gate) reject(w http.ResponseWriter, r *http.Request, mode Mode, name string, status int, code, message string) {
	if mode == ModeWeb && status != http.StatusNotFound {
		http.Redirect(w, r, "/"+name+"/login", http.StatusFound)
		return
	}
	httpserver.RespondError(w, status, code, message)
}
