package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clinicore/ehr-api/internal/core/domain"
	"github.com/clinicore/ehr-api/internal/core/ports"
)

const (
	tokenTypeSession = "session"
	tokenTypeRefresh = "refresh"

	defaultSessionTTL = 24 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// tokenClaims is the JWT payload for both session and refresh tokens.
// TokenType keeps the two families from being interchangeable even though
// they share a wire format.
type tokenClaims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer creates and verifies HS256-signed session and refresh tokens.
// Verification is stateless: signature plus clock, no store lookup. The
// secrets are process-wide configuration; rotating either invalidates every
// outstanding token of that family.
type TokenIssuer struct {
	sessionSecret []byte
	refreshSecret []byte
	sessionTTL    time.Duration
	refreshTTL    time.Duration
}

// NewTokenIssuer builds a TokenIssuer. Non-positive TTLs fall back to the
// defaults (24h session, 7d refresh).
func NewTokenIssuer(sessionSecret, refreshSecret string, sessionTTL, refreshTTL time.Duration) *TokenIssuer {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &TokenIssuer{
		sessionSecret: []byte(sessionSecret),
		refreshSecret: []byte(refreshSecret),
		sessionTTL:    sessionTTL,
		refreshTTL:    refreshTTL,
	}
}

func (t *TokenIssuer) IssueSession(user *domain.User) (string, time.Time, error) {
	return t.issue(user, tokenTypeSession, t.sessionSecret, t.sessionTTL)
}

func (t *TokenIssuer) VerifySession(token string) (*ports.SessionClaims, error) {
	return t.verify(token, tokenTypeSession, t.sessionSecret)
}

func (t *TokenIssuer) IssueRefresh(user *domain.User) (string, time.Time, error) {
	return t.issue(user, tokenTypeRefresh, t.refreshSecret, t.refreshTTL)
}

func (t *TokenIssuer) VerifyRefresh(token string) (*ports.SessionClaims, error) {
	return t.verify(token, tokenTypeRefresh, t.refreshSecret)
}

func (t *TokenIssuer) issue(user *domain.User, typ string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	claims := tokenClaims{
		Email:     user.Email,
		Role:      string(user.Role),
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

func (t *TokenIssuer) verify(token, typ string, secret []byte) (*ports.SessionClaims, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if tok.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		// Expired is reported distinctly so clients know to refresh instead
		// of restarting authentication.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrSessionExpired
		}
		return nil, domain.ErrSessionInvalid
	}
	if !parsed.Valid || claims.TokenType != typ || claims.Subject == "" {
		return nil, domain.ErrSessionInvalid
	}

	return &ports.SessionClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   domain.Role(claims.Role),
	}, nil
}
