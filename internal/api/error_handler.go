package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicore/ehr-api/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors. Code is a
// stable machine-readable string; clients branch on it, never on the message.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// httpMapping pins a domain error to its HTTP status, stable code, and the
// client-facing message. Messages on the 401/403 paths are deliberately
// generic; the interesting detail is logged, not returned.
type httpMapping struct {
	status int
	code   string
	msg    string
}

var domainErrorMap = map[error]httpMapping{
	domain.ErrUserExists:         {http.StatusConflict, "USER_EXISTS", "an account already exists for this email"},
	domain.ErrRequestConflict:    {http.StatusConflict, "REQUEST_CONFLICT", "a registration request already exists for this email"},
	domain.ErrUserNotFound:       {http.StatusNotFound, "USER_NOT_FOUND", "user not found"},
	domain.ErrRequestNotFound:    {http.StatusNotFound, "REQUEST_NOT_FOUND", "registration request not found"},
	domain.ErrInvalidState:       {http.StatusBadRequest, "INVALID_STATE", "operation not valid in the current registration state"},
	domain.ErrInvalidCode:        {http.StatusBadRequest, "INVALID_CODE", "verification code is incorrect"},
	domain.ErrCodeExpired:        {http.StatusBadRequest, "CODE_EXPIRED", "verification code has expired"},
	domain.ErrInvalidToken:       {http.StatusBadRequest, "INVALID_TOKEN", "completion token is missing or invalid"},
	domain.ErrTokenExpired:       {http.StatusBadRequest, "TOKEN_EXPIRED", "completion token has expired"},
	domain.ErrRoleNotPermitted:   {http.StatusBadRequest, "ROLE_NOT_ALLOWED", "requested role is not available for self-service registration"},
	domain.ErrInvalidCredentials: {http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials"},
	domain.ErrAccountDeactivated: {http.StatusUnauthorized, "ACCOUNT_DEACTIVATED", "account is deactivated"},
	domain.ErrMissingToken:       {http.StatusUnauthorized, "AUTH_REQUIRED", "authentication required"},
	domain.ErrSessionExpired:     {http.StatusUnauthorized, "SESSION_EXPIRED", "session token expired"},
	domain.ErrSessionInvalid:     {http.StatusUnauthorized, "SESSION_INVALID", "invalid session token"},
	domain.ErrInvalidUser:        {http.StatusUnauthorized, "INVALID_USER", "authentication required"},
	domain.ErrForbidden:          {http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "insufficient permissions"},
	domain.ErrTooManyAttempts:    {http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "too many attempts, try again later"},
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status and stable error code.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "...", "code": "..."}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, code, msg := resolveError(err, log, c)
		_ = c.JSON(status, errorResponse{Error: msg, Code: code})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string, string) {
	for derr, m := range domainErrorMap {
		if errors.Is(err, derr) {
			return m.status, m.code, m.msg
		}
	}

	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, codeForStatus(he.Code), fmt.Sprintf("%v", he.Message)
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "INTERNAL", "internal server error"
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "VALIDATION"
	case http.StatusUnauthorized:
		return "AUTH_REQUIRED"
	case http.StatusForbidden:
		return "INSUFFICIENT_PERMISSIONS"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	default:
		return "INTERNAL"
	}
}
