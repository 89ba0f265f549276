// Package webauth implements the session endpoints behind /{tenant}/api/auth
// and the operator login for the admin API. Tenant logins are verified
// against the home's users table (bcrypt) or the seed admin credential held
// on the registry record; successful logins receive an access/refresh JWT
// pair and the browser cookies the web gate understands.
package webauth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/internal/telemetry"
	"github.com/hearthhq/hearth/internal/webtoken"
	"github.com/hearthhq/hearth/pkg/gate"
	"github.com/hearthhq/hearth/pkg/homeindex"
)

var errInvalidCredentials = errors.New("invalid credentials")

// Handler serves login, refresh, validate, and logout for one process.
type Handler struct {
	sessions *webtoken.Manager
	limiter  *RateLimiter
	logger   *slog.Logger
}

// NewHandler creates the session handler. The limiter may be nil, which
// disables login throttling.
func NewHandler(sessions *webtoken.Manager, limiter *RateLimiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: sessions,
		limiter:  limiter,
		logger:   logger.With("component", "webauth"),
	}
}

// Register adds the session endpoints to the canonical route set. They run
// in auth mode: the gate resolves the home but demands no credentials, since
// these endpoints are how credentials are established.
func (h *Handler) Register(set *gate.RouteSet) {
	set.Handle(http.MethodPost, "/api/auth/login", "login", h.handleLogin)
	set.Handle(http.MethodPost, "/api/auth/refresh", "refresh_token", h.handleRefresh)
	set.Handle(http.MethodGet, "/api/auth/validate", "validate_session", h.handleValidate)
	set.Handle(http.MethodPost, "/api/auth/logout", "logout", h.handleLogout)
}

// LoginRequest identifies a resident by phone number or email.
type LoginRequest struct {
	PhoneNumber string `json:"phone_number" validate:"omitempty,max=32"`
	Email       string `json:"email" validate:"omitempty,email"`
	Password    string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      webtoken.Claims `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	env := gate.FromContext(r.Context())
	if env == nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "tenant environment missing")
		return
	}

	ip := clientIP(r)
	check, err := h.limiter.Check(r.Context(), ip)
	if err != nil {
		// A broken limiter must not lock residents out.
		h.logger.Warn("rate limit check failed, admitting login", "error", err)
	} else if !check.Allowed {
		telemetry.LoginAttempts.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(check.RetryAt).Seconds())+1))
		httpserver.RespondError(w, http.StatusTooManyRequests, "rate_limited", "too many failed logins, try again later")
		return
	}

	var req LoginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.PhoneNumber == "" && req.Email == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "phone_number or email is required")
		return
	}

	claims, userID, err := h.authenticate(r.Context(), env, &req)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			telemetry.LoginAttempts.WithLabelValues("invalid").Inc()
			if rerr := h.limiter.Record(r.Context(), ip); rerr != nil {
				h.logger.Warn("recording failed login", "error", rerr)
			}
			httpserver.RespondError(w, http.StatusUnauthorized, "invalid_credentials", "phone number, email, or password is incorrect")
			return
		}
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	if env.PushToken != "" && userID != 0 {
		if err := h.storePushToken(r.Context(), env, userID, env.PushToken); err != nil {
			h.logger.Warn("storing push token",
				"home", env.Tenant.Name, "user_id", userID, "error", err)
		}
	}

	if err := h.limiter.Reset(r.Context(), ip); err != nil {
		h.logger.Warn("resetting login rate limit", "error", err)
	}

	access, expiry, err := h.sessions.Issue(*claims, webtoken.TypeAccess)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}
	refresh, _, err := h.sessions.Issue(*claims, webtoken.TypeRefresh)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, webtoken.NewSessionCookie(access, h.sessions.AccessTTL()))
	http.SetCookie(w, webtoken.NewRefreshCookie(refresh, h.sessions.RefreshTTL()))
	http.SetCookie(w, webtoken.NewTenantInfoCookie(env.Tenant.Name, env.Tenant.ID))

	telemetry.LoginAttempts.WithLabelValues("ok").Inc()
	h.logger.Info("login", "home", env.Tenant.Name, "user_id", claims.UserID, "role", claims.Role)

	httpserver.Respond(w, http.StatusOK, loginResponse{
		Token:     access,
		ExpiresAt: expiry,
		User:      *claims,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	env := gate.FromContext(r.Context())
	if env == nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "tenant environment missing")
		return
	}

	raw := ""
	if c, err := r.Cookie(webtoken.RefreshCookie); err == nil {
		raw = c.Value
	}
	if raw == "" {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := httpserver.Decode(r, &req); err == nil {
			raw = req.RefreshToken
		}
	}
	if raw == "" {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthenticated", "refresh token is required")
		return
	}

	claims, err := h.sessions.Validate(raw, webtoken.TypeRefresh)
	if err != nil || claims.HomeID != env.Tenant.ID {
		httpserver.RespondError(w, http.StatusUnauthorized, "invalid_token", "refresh token is invalid or belongs to another home")
		return
	}

	access, expiry, err := h.sessions.Issue(*claims, webtoken.TypeAccess)
	if err != nil {
		httpserver.WriteError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, webtoken.NewSessionCookie(access, h.sessions.AccessTTL()))
	httpserver.Respond(w, http.StatusOK, tokenResponse{Token: access, ExpiresAt: expiry})
}

type validateResponse struct {
	Valid bool            `json:"valid"`
	User  webtoken.Claims `json:"user"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	env := gate.FromContext(r.Context())
	if env == nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "tenant environment missing")
		return
	}

	raw := bearerToken(r)
	if raw == "" {
		if c, err := r.Cookie(webtoken.SessionCookie); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthenticated", "no session token")
		return
	}

	claims, err := h.sessions.Validate(raw, webtoken.TypeAccess)
	if err != nil || claims.HomeID != env.Tenant.ID {
		httpserver.RespondError(w, http.StatusUnauthorized, "invalid_token", "session is invalid or expired")
		return
	}

	httpserver.Respond(w, http.StatusOK, validateResponse{Valid: true, User: *claims})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, webtoken.Expire(webtoken.SessionCookie))
	http.SetCookie(w, webtoken.Expire(webtoken.RefreshCookie))
	http.SetCookie(w, webtoken.Expire(webtoken.TenantInfoCookie))
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// authenticate resolves the login to session claims. It returns the users
// table row id when the login matched a resident, and zero for the seed
// admin, whose credential lives on the registry record rather than in the
// home schema.
func (h *Handler) authenticate(ctx context.Context, env *gate.Env, req *LoginRequest) (*webtoken.Claims, int64, error) {
	if req.Email != "" && strings.EqualFold(req.Email, env.Tenant.AdminUserEmail) {
		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(env.Tenant.AdminUserPassword)) == 1 {
			return &webtoken.Claims{
				FullName: "Home Admin",
				Role:     "admin",
				HomeID:   env.Tenant.ID,
				HomeName: env.Tenant.Name,
			}, 0, nil
		}
		// The same email may still exist as a regular user row.
	}

	row, err := h.findUser(ctx, env, req)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, errInvalidCredentials
		}
		return nil, 0, err
	}
	if !row.PasswordHash.Valid ||
		bcrypt.CompareHashAndPassword([]byte(row.PasswordHash.String), []byte(req.Password)) != nil {
		return nil, 0, errInvalidCredentials
	}

	return &webtoken.Claims{
		UserID:      row.ID,
		PhoneNumber: row.PhoneNumber,
		FullName:    row.FullName,
		Role:        row.Role,
		HomeID:      env.Tenant.ID,
		HomeName:    env.Tenant.Name,
	}, row.ID, nil
}

type userRow struct {
	ID           int64          `db:"id"`
	PhoneNumber  string         `db:"phone_number"`
	Email        sql.NullString `db:"email"`
	FullName     string         `db:"full_name"`
	PasswordHash sql.NullString `db:"password_hash"`
	Role         string         `db:"role"`
}

func (h *Handler) findUser(ctx context.Context, env *gate.Env, req *LoginRequest) (*userRow, error) {
	pool, err := env.Pool(ctx)
	if err != nil {
		return nil, err
	}

	qctx, cancel := pool.QueryCtx(ctx)
	defer cancel()

	table := pool.Engine().QualifyTable(env.Tenant.DatabaseSchema, "users")
	const columns = `id, phone_number, email, full_name, password_hash, role`

	var query, arg string
	if req.PhoneNumber != "" {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE phone_number = ?`, columns, table)
		arg = homeindex.Normalize(req.PhoneNumber)
	} else {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE email = ?`, columns, table)
		arg = req.Email
	}

	var row userRow
	if err := pool.DB().GetContext(qctx, &row, pool.Rebind(query), arg); err != nil {
		return nil, err
	}
	return &row, nil
}

func (h *Handler) storePushToken(ctx context.Context, env *gate.Env, userID int64, token string) error {
	pool, err := env.Pool(ctx)
	if err != nil {
		return err
	}

	qctx, cancel := pool.QueryCtx(ctx)
	defer cancel()

	table := pool.Engine().QualifyTable(env.Tenant.DatabaseSchema, "users")
	query := pool.Rebind(fmt.Sprintf(`UPDATE %s SET push_token = ?, updated_at = ? WHERE id = ?`, table))
	_, err = pool.DB().ExecContext(qctx, query, token, time.Now().UTC(), userID)
	return err
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
