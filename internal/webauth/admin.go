package webauth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hearthhq/hearth/internal/audit"
	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/internal/telemetry"
	"github.com/hearthhq/hearth/internal/webtoken"
)

// AdminHandler authenticates the operator account and guards the admin API.
// The operator credential comes from process configuration, not from any
// home; admin tokens are signed by their own manager so a web session can
// never cross into the admin surface.
type AdminHandler struct {
	sessions *webtoken.Manager
	email    string
	password string
	audit    *audit.Writer
	logger   *slog.Logger
}

// NewAdminHandler creates the operator login handler. An empty password
// leaves the admin surface locked.
func NewAdminHandler(sessions *webtoken.Manager, email, password string, auditW *audit.Writer, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		sessions: sessions,
		email:    email,
		password: password,
		audit:    auditW,
		logger:   logger.With("component", "adminauth"),
	}
}

// AdminLoginRequest is the operator login payload.
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin issues an operator token when the configured credentials match.
func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.password == "" {
		httpserver.RespondError(w, http.StatusServiceUnavailable, "admin_disabled", "admin login is not configured")
		return
	}

	var req AdminLoginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	emailOK := strings.EqualFold(req.Email, h.email)
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) == 1
	if !emailOK || !passOK {
		telemetry.LoginAttempts.WithLabelValues("invalid").Inc()
		httpserver.RespondError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
		return
	}

	token, expiry, err := h.sessions.Issue(webtoken.Claims{
		FullName: "Operator",
		Role:     "admin",
	}, webtoken.TypeAccess)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	telemetry.LoginAttempts.WithLabelValues("ok").Inc()
	h.audit.LogRequest(r, req.Email, "admin.login", "", "")

	httpserver.Respond(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiry})
}

// Require wraps admin API routes with bearer-token authentication. Validated
// claims are attached to the request context for downstream audit trails.
func (h *AdminHandler) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			httpserver.RespondError(w, http.StatusUnauthorized, "unauthenticated", "bearer token is required")
			return
		}

		claims, err := h.sessions.Validate(raw, webtoken.TypeAccess)
		if err != nil {
			httpserver.RespondError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
			return
		}

		next.ServeHTTP(w, r.WithContext(webtoken.NewContext(r.Context(), claims)))
	})
}
