package handler

import (
	"time"

	"github.com/clinicore/ehr-api/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type registrationRequestRequest struct {
	Email     string `json:"email"      validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"  validate:"required"`
	// The oneof list mirrors the self-service roles; admin is enforced again
	// in the service so the guard survives any transport change.
	Role string `json:"role" validate:"required,oneof=intake_staff clinician qa_reviewer biller"`
}

type registrationRequestResponse struct {
	RequestID      string `json:"request_id"`
	Status         string `json:"status"`
	AlreadyPending bool   `json:"already_pending,omitempty"`
}

type verifyRequest struct {
	Email string `json:"email"             validate:"required,email"`
	Code  string `json:"verification_code" validate:"required,len=6,numeric"`
}

type completeRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12"`
	Token    string `json:"token"    validate:"required"`
}

type statusResponse struct {
	RequestID   string     `json:"request_id"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type approveRequest struct {
	Notes string `json:"notes"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
	Notes  string `json:"notes"`
}

// adminRequestItem is the admin list view; code and token material never
// leave the store.
type adminRequestItem struct {
	RequestID       string     `json:"request_id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Role            string     `json:"role"`
	Status          string     `json:"status"`
	RequestedAt     time.Time  `json:"requested_at"`
	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	AdminNotes      string     `json:"admin_notes,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

type paginationResponse struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

type listRequestsResponse struct {
	Data       []adminRequestItem `json:"data"`
	Pagination paginationResponse `json:"pagination"`
}

func toAdminItem(r *domain.RegistrationRequest) adminRequestItem {
	return adminRequestItem{
		RequestID:       r.ID,
		Email:           r.Email,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Role:            string(r.Role),
		Status:          string(r.Status),
		RequestedAt:     r.RequestedAt,
		ApprovedBy:      r.ApprovedBy,
		ApprovedAt:      r.ApprovedAt,
		AdminNotes:      r.AdminNotes,
		RejectionReason: r.RejectionReason,
	}
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        string(u.Role),
		Active:      u.Active,
		LastLoginAt: u.LastLoginAt,
	}
}
