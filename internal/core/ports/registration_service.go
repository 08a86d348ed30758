package ports

import (
	"context"
	"time"

	"github.com/clinicore/ehr-api/internal/core/domain"
)

// RequestRegistrationInput carries the self-service registration payload.
type RequestRegistrationInput struct {
	Email     string
	FirstName string
	LastName  string
	Role      domain.Role
}

// RequestRegistrationResult is returned by Request. AlreadyPending is true
// when the call matched an in-flight request instead of creating a new one.
type RequestRegistrationResult struct {
	RequestID      string
	Status         domain.RegistrationStatus
	AlreadyPending bool
}

// CompleteRegistrationResult is returned by Complete: the new account plus a
// first session, so the client lands signed in.
type CompleteRegistrationResult struct {
	User             *domain.User
	SessionToken     string
	SessionExpiresAt time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RegistrationStatusView is the public view returned by Status. It exposes
// lifecycle metadata only, never code or token material.
type RegistrationStatusView struct {
	RequestID   string
	Status      domain.RegistrationStatus
	RequestedAt time.Time
	ApprovedAt  *time.Time
	AdminNotes  string
}

// ListRequestsResult is returned by the admin List operation.
type ListRequestsResult struct {
	Items      []*domain.RegistrationRequest
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// RegistrationService drives a registration request through its lifecycle.
type RegistrationService interface {
	Request(ctx context.Context, in RequestRegistrationInput) (*RequestRegistrationResult, error)
	Verify(ctx context.Context, email, code string) error
	Approve(ctx context.Context, requestID, adminID, notes string) (*domain.RegistrationRequest, error)
	Reject(ctx context.Context, requestID, adminID, reason, notes string) (*domain.RegistrationRequest, error)
	Complete(ctx context.Context, email, password, token string) (*CompleteRegistrationResult, error)
	Status(ctx context.Context, email string) (*RegistrationStatusView, error)
	List(ctx context.Context, filter ListRequestsFilter) (*ListRequestsResult, error)
}
