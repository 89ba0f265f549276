package webtoken

import (
	"fmt"
	"net/http"
	"time"
)

// Cookie names shared by the login handlers and the request gate.
const (
	SessionCookie = "web_jwt_token"
	RefreshCookie = "web_refresh_token"
	// TenantInfoCookie carries "{name}:{id}" for client-side tenant
	// awareness. It is deliberately readable by scripts.
	TenantInfoCookie = "tenant_info"
)

// NewSessionCookie wraps an access token in the HttpOnly session cookie.
func NewSessionCookie(token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewRefreshCookie wraps a refresh token in its HttpOnly cookie.
func NewRefreshCookie(token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewTenantInfoCookie records which home the browser session belongs to.
func NewTenantInfoCookie(homeName string, homeID int64) *http.Cookie {
	return &http.Cookie{
		Name:     TenantInfoCookie,
		Value:    fmt.Sprintf("%s:%d", homeName, homeID),
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	}
}

// Expire returns a cookie that clears the named cookie in the browser.
func Expire(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: name != TenantInfoCookie,
		SameSite: http.SameSiteLaxMode,
	}
}
