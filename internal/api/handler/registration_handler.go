package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/ehr-api/internal/api/metrics"
	"github.com/clinicore/ehr-api/internal/core/domain"
	"github.com/clinicore/ehr-api/internal/core/ports"
)

// RegistrationHandler handles the public registration workflow endpoints and
// the admin review queue.
type RegistrationHandler struct {
	registration ports.RegistrationService
}

func NewRegistrationHandler(registration ports.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registration: registration}
}

// Request opens a self-service registration request.
//
// @Summary      Request registration
// @Tags         registration
// @Accept       json
// @Produce      json
// @Param        body  body      registrationRequestRequest  true  "Registration details"
// @Success      202   {object}  registrationRequestResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /v1/registration/request [post]
func (h *RegistrationHandler) Request(c echo.Context) error {
	var req registrationRequestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.registration.Request(c.Request().Context(), ports.RequestRegistrationInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      domain.Role(req.Role),
	})
	if err != nil {
		metrics.RegistrationTransitionsTotal.WithLabelValues("request", outcomeLabel(err)).Inc()
		return err
	}
	metrics.RegistrationTransitionsTotal.WithLabelValues("request", "ok").Inc()

	return c.JSON(http.StatusAccepted, registrationRequestResponse{
		RequestID:      result.RequestID,
		Status:         string(result.Status),
		AlreadyPending: result.AlreadyPending,
	})
}

// Verify proves control of the registration email.
//
// @Summary      Verify registration email
// @Tags         registration
// @Accept       json
// @Produce      json
// @Param        body  body      verifyRequest  true  "Email and verification code"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /v1/registration/verify [post]
func (h *RegistrationHandler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.registration.Verify(c.Request().Context(), req.Email, req.Code); err != nil {
		metrics.RegistrationTransitionsTotal.WithLabelValues("verify", outcomeLabel(err)).Inc()
		return err
	}
	metrics.RegistrationTransitionsTotal.WithLabelValues("verify", "ok").Inc()

	return c.JSON(http.StatusOK, map[string]string{"status": string(domain.StatusPendingApproval)})
}

// Complete consumes the completion token, sets the password, and signs the
// new user in.
//
// @Summary      Complete registration
// @Tags         registration
// @Accept       json
// @Produce      json
// @Param        body  body      completeRequest  true  "Email, password, completion token"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /v1/registration/complete [post]
func (h *RegistrationHandler) Complete(c echo.Context) error {
	var req completeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.registration.Complete(c.Request().Context(), req.Email, req.Password, req.Token)
	if err != nil {
		metrics.RegistrationTransitionsTotal.WithLabelValues("complete", outcomeLabel(err)).Inc()
		return err
	}
	metrics.RegistrationTransitionsTotal.WithLabelValues("complete", "ok").Inc()

	return c.JSON(http.StatusOK, loginResponse{
		SessionToken:     result.SessionToken,
		SessionExpiresAt: result.SessionExpiresAt,
		RefreshToken:     result.RefreshToken,
		RefreshExpiresAt: result.RefreshExpiresAt,
		User:             toUserResponse(result.User),
	})
}

// Status returns the lifecycle state of a registration request.
//
// @Summary      Registration status
// @Tags         registration
// @Produce      json
// @Param        email  path      string  true  "Registration email"
// @Success      200    {object}  statusResponse
// @Failure      404    {object}  errorResponse
// @Router       /v1/registration/status/{email} [get]
func (h *RegistrationHandler) Status(c echo.Context) error {
	view, err := h.registration.Status(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, statusResponse{
		RequestID:   view.RequestID,
		Status:      string(view.Status),
		RequestedAt: view.RequestedAt,
		ApprovedAt:  view.ApprovedAt,
		Notes:       view.AdminNotes,
	})
}

// ListRequests returns a page of registration requests for admin review.
//
// @Summary      List registration requests
// @Tags         registration-admin
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "Filter by status"
// @Param        page    query     int     false  "Page (1-based)"
// @Param        limit   query     int     false  "Page size (max 100)"
// @Success      200     {object}  listRequestsResponse
// @Failure      401     {object}  errorResponse
// @Failure      403     {object}  errorResponse
// @Router       /v1/registration/admin/requests [get]
func (h *RegistrationHandler) ListRequests(c echo.Context) error {
	status := domain.RegistrationStatus(c.QueryParam("status"))
	if status != "" && !domain.ValidRegistrationStatus(status) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status filter")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	result, err := h.registration.List(c.Request().Context(), ports.ListRequestsFilter{
		Status: status,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	items := make([]adminRequestItem, 0, len(result.Items))
	for _, r := range result.Items {
		items = append(items, toAdminItem(r))
	}

	return c.JSON(http.StatusOK, listRequestsResponse{
		Data: items,
		Pagination: paginationResponse{
			Total:      result.Total,
			Page:       result.Page,
			Limit:      result.Limit,
			TotalPages: result.TotalPages,
		},
	})
}

// Approve approves a pending registration request.
//
// @Summary      Approve registration request
// @Tags         registration-admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string          true  "Request id"
// @Param        body  body      approveRequest  true  "Admin notes"
// @Success      200   {object}  adminRequestItem
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/registration/admin/approve/{id} [post]
func (h *RegistrationHandler) Approve(c echo.Context) error {
	admin, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	updated, err := h.registration.Approve(c.Request().Context(), c.Param("id"), admin.UserID, req.Notes)
	if err != nil {
		metrics.RegistrationTransitionsTotal.WithLabelValues("approve", outcomeLabel(err)).Inc()
		return err
	}
	metrics.RegistrationTransitionsTotal.WithLabelValues("approve", "ok").Inc()

	return c.JSON(http.StatusOK, toAdminItem(updated))
}

// Reject rejects a pending registration request.
//
// @Summary      Reject registration request
// @Tags         registration-admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string         true  "Request id"
// @Param        body  body      rejectRequest  true  "Rejection reason and notes"
// @Success      200   {object}  adminRequestItem
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/registration/admin/reject/{id} [post]
func (h *RegistrationHandler) Reject(c echo.Context) error {
	admin, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := h.registration.Reject(c.Request().Context(), c.Param("id"), admin.UserID, req.Reason, req.Notes)
	if err != nil {
		metrics.RegistrationTransitionsTotal.WithLabelValues("reject", outcomeLabel(err)).Inc()
		return err
	}
	metrics.RegistrationTransitionsTotal.WithLabelValues("reject", "ok").Inc()

	return c.JSON(http.StatusOK, toAdminItem(updated))
}

// outcomeLabel maps service errors to stable metric label values. Unknown
// errors collapse to "error" to keep the label cardinality bounded.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserExists):
		return "USER_EXISTS"
	case errors.Is(err, domain.ErrRequestConflict):
		return "REQUEST_CONFLICT"
	case errors.Is(err, domain.ErrRequestNotFound), errors.Is(err, domain.ErrUserNotFound):
		return "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, domain.ErrInvalidCode):
		return "INVALID_CODE"
	case errors.Is(err, domain.ErrCodeExpired):
		return "CODE_EXPIRED"
	case errors.Is(err, domain.ErrInvalidToken):
		return "INVALID_TOKEN"
	case errors.Is(err, domain.ErrTokenExpired):
		return "TOKEN_EXPIRED"
	case errors.Is(err, domain.ErrRoleNotPermitted):
		return "ROLE_NOT_ALLOWED"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, domain.ErrAccountDeactivated):
		return "ACCOUNT_DEACTIVATED"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "TOO_MANY_ATTEMPTS"
	default:
		return "error"
	}
}
