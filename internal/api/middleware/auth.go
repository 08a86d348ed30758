package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/ehr-api/internal/api/metrics"
	"github.com/clinicore/ehr-api/internal/core/domain"
	"github.com/clinicore/ehr-api/internal/core/ports"
)

// Context keys set by Auth for downstream handlers and RequireRole.
const (
	CtxUserID = "user_id"
	CtxEmail  = "email"
	CtxRole   = "role"
)

// Auth is the authentication gate: it resolves the bearer token to an active
// user and injects the principal into the request context. Signature validity
// alone is not enough; the user is re-read from the store so deactivation
// takes effect before the token's natural expiry.
func Auth(issuer ports.TokenIssuer, users ports.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c)
			if err != nil {
				metrics.AuthFailuresTotal.WithLabelValues("missing_token").Inc()
				return err
			}

			claims, err := issuer.VerifySession(token)
			if err != nil {
				if errors.Is(err, domain.ErrSessionExpired) {
					metrics.AuthFailuresTotal.WithLabelValues("expired").Inc()
				} else {
					metrics.AuthFailuresTotal.WithLabelValues("invalid").Inc()
				}
				return err
			}

			user, err := users.FindByID(c.Request().Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, domain.ErrUserNotFound) {
					metrics.AuthFailuresTotal.WithLabelValues("invalid_user").Inc()
					return domain.ErrInvalidUser
				}
				return err
			}
			if !user.Active {
				metrics.AuthFailuresTotal.WithLabelValues("invalid_user").Inc()
				return domain.ErrInvalidUser
			}

			c.Set(CtxUserID, user.ID)
			c.Set(CtxEmail, user.Email)
			c.Set(CtxRole, user.Role)

			return next(c)
		}
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return "", domain.ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", domain.ErrMissingToken
	}
	return parts[1], nil
}
