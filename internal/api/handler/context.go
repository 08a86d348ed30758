package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/clinicore/ehr-api/internal/api/middleware"
	"github.com/clinicore/ehr-api/internal/core/domain"
)

// principal is the authenticated caller as resolved by the Auth middleware.
type principal struct {
	UserID string
	Email  string
	Role   domain.Role
}

// ctxPrincipal extracts the principal injected by the Auth middleware and
// fast-fails before any service call. A missing principal means the route was
// wired without the gate; reject rather than proceed unauthenticated.
func ctxPrincipal(c echo.Context) (principal, error) {
	userID, _ := c.Get(middleware.CtxUserID).(string)
	role, _ := c.Get(middleware.CtxRole).(domain.Role)
	if userID == "" || role == "" {
		return principal{}, domain.ErrMissingToken
	}
	email, _ := c.Get(middleware.CtxEmail).(string)
	return principal{UserID: userID, Email: email, Role: role}, nil
}
