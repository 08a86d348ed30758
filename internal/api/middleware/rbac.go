package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicore/ehr-api/internal/api/metrics"
	"github.com/clinicore/ehr-api/internal/core/domain"
)

// RequireRole is the authorization gate: it checks that the principal
// resolved by Auth carries one of the allowed roles. A missing principal is
// an authentication failure, not a role mismatch; an unauthenticated caller
// never learns which roles a route requires.
func RequireRole(log zerolog.Logger, allowedRoles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[domain.Role]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(domain.Role)
			if !ok || role == "" {
				return domain.ErrMissingToken
			}

			if _, ok := allowed[role]; !ok {
				metrics.ForbiddenTotal.WithLabelValues(string(role)).Inc()
				log.Warn().
					Str("role", string(role)).
					Strs("required", roleNames(allowedRoles)).
					Str("path", c.Path()).
					Msg("authorization denied")
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}

func roleNames(roles []domain.Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}
