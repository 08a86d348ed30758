package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/ehr-api/internal/core/domain"
	"github.com/clinicore/ehr-api/internal/core/ports"
)

const limiterScopeLogin = "login"

// AuthService implements login and token refresh on top of the user store and
// the token issuer.
type AuthService struct {
	users   ports.UserRepository
	issuer  ports.TokenIssuer
	limiter ports.AttemptLimiter
	log     zerolog.Logger
}

func NewAuthService(users ports.UserRepository, issuer ports.TokenIssuer, limiter ports.AttemptLimiter, log zerolog.Logger) *AuthService {
	return &AuthService{users: users, issuer: issuer, limiter: limiter, log: log}
}

// Login verifies the password and returns a session token, a refresh token,
// and the user. Unknown emails report domain.ErrInvalidCredentials, not
// NotFound, so login cannot be used to enumerate accounts.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	if !s.allowAttempt(ctx, limiterScopeLogin, email) {
		return nil, domain.ErrTooManyAttempts
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, domain.ErrAccountDeactivated
	}

	sessionToken, sessionExp, err := s.issuer.IssueSession(user)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExp, err := s.issuer.IssueRefresh(user)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		// Best effort: the login itself has succeeded.
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	} else {
		user.LastLoginAt = &now
	}

	s.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("login")

	return &ports.LoginResult{
		SessionToken:     sessionToken,
		SessionExpiresAt: sessionExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
		User:             user,
	}, nil
}

// Refresh exchanges a valid refresh token for a new session token. The user is
// re-loaded from the store: a refresh token for a deactivated or deleted
// account mints nothing.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", time.Time{}, domain.ErrInvalidUser
		}
		return "", time.Time{}, err
	}
	if !user.Active {
		return "", time.Time{}, domain.ErrInvalidUser
	}

	return s.issuer.IssueSession(user)
}

// allowAttempt consults the limiter; limiter backend failures never block
// authentication, they are logged and the attempt proceeds.
func (s *AuthService) allowAttempt(ctx context.Context, scope, key string) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(ctx, scope, key)
	if err != nil {
		s.log.Warn().Err(err).Str("scope", scope).Msg("attempt limiter unavailable, allowing")
		return true
	}
	return ok
}
