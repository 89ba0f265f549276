// Package webtoken issues and validates the JWTs behind web sessions and the
// admin API. Tokens are self-signed HS256; access and refresh tokens share a
// key and differ only in type and lifetime.
package webtoken

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Token types. The refresh endpoint only accepts refresh tokens and the gate
// only accepts access tokens, so a leaked refresh cookie cannot be replayed
// as a session.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims carried by a web session token beyond the registered set.
type Claims struct {
	UserID      int64  `json:"user_id"`
	PhoneNumber string `json:"phone_number,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	Role        string `json:"role,omitempty"`
	HomeID      int64  `json:"home_id"`
	HomeName    string `json:"home_name,omitempty"`
	Type        string `json:"type"`
}

// Manager signs and verifies tokens for one issuer.
type Manager struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager creates a token manager. The secret must be at least 32 bytes.
func NewManager(secret, issuer string, accessTTL, refreshTTL time.Duration) (*Manager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes, got %d", len(secret))
	}
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &Manager{
		signingKey: []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL returns the access token lifetime, which is also the session
// cookie max-age.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// Issue signs a token of the given type. The type and expiry on the claims
// are set by the manager; callers fill in the identity fields only.
func (m *Manager) Issue(claims Claims, typ string) (string, time.Time, error) {
	ttl := m.accessTTL
	if typ == TypeRefresh {
		ttl = m.refreshTTL
	}
	claims.Type = typ

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: m.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	expiry := now.Add(ttl)
	registered := jwt.Claims{
		Subject:   fmt.Sprint(claims.UserID),
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(expiry),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    m.issuer,
	}

	token, err := jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return token, expiry, nil
}

// Validate verifies signature, expiry, issuer, and token type.
func (m *Manager) Validate(raw, wantType string) (*Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	var custom Claims
	if err := tok.Claims(m.signingKey, &registered, &custom); err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: m.issuer,
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return nil, fmt.Errorf("validating claims: %w", err)
	}

	if custom.Type != wantType {
		return nil, fmt.Errorf("token type %q, want %q", custom.Type, wantType)
	}

	return &custom, nil
}
