package ports

import (
	"context"
	"time"

	"github.com/clinicore/ehr-api/internal/core/domain"
)

// SessionClaims is the verified content of a session or refresh token.
type SessionClaims struct {
	UserID string
	Email  string
	Role   domain.Role
}

// TokenIssuer creates and verifies signed bearer credentials. Verification is
// a pure function of signature and current time; whether the user is still
// active is layered on top by the authentication gate.
type TokenIssuer interface {
	IssueSession(user *domain.User) (token string, expiresAt time.Time, err error)
	VerifySession(token string) (*SessionClaims, error)
	// Refresh tokens are signed with a separate secret and are only ever
	// exchanged for a new session token, never used to authorize an action.
	IssueRefresh(user *domain.User) (token string, expiresAt time.Time, err error)
	VerifyRefresh(token string) (*SessionClaims, error)
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	SessionToken     string
	SessionExpiresAt time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *domain.User
}

// AuthService implements credential verification and token refresh.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	// Refresh exchanges a valid refresh token for a new session token.
	Refresh(ctx context.Context, refreshToken string) (sessionToken string, expiresAt time.Time, err error)
}

// AttemptLimiter throttles guessable-secret checks (login passwords,
// verification codes) per key. Allow returns false when the key has exhausted
// its budget for the current window. Backend failures are reported as errors
// and treated as non-fatal by callers.
type AttemptLimiter interface {
	Allow(ctx context.Context, scope, key string) (bool, error)
}
