package ports

import (
	"context"
	"time"

	"github.com/clinicore/ehr-api/internal/core/domain"
)

// RequestPatch carries the fields a workflow transition may change. Nil means
// "leave untouched"; a pointer to the zero value clears the field. Keeping the
// patch explicit lets the repository apply the whole transition as one
// conditional update.
type RequestPatch struct {
	Status           *domain.RegistrationStatus
	VerificationCode *string
	CodeExpiresAt    *time.Time
	CompletionToken  *string
	TokenExpiresAt   *time.Time
	ApprovedBy       *string
	ApprovedAt       *time.Time
	AdminNotes       *string
	RejectionReason  *string
}

// ListRequestsFilter carries the query parameters for the admin list endpoint.
type ListRequestsFilter struct {
	Status domain.RegistrationStatus // empty = all statuses
	Page   int                       // 1-based
	Limit  int                       // capped at 100 by the service
}

// RegistrationRepository defines persistence operations for registration
// requests. Implementations must enforce email uniqueness and apply Transition
// as a single atomic conditional write: concurrent callers racing on the same
// request resolve to exactly one winner, the loser observes
// domain.ErrInvalidState.
type RegistrationRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.RegistrationRequest, error)
	FindByID(ctx context.Context, id string) (*domain.RegistrationRequest, error)
	// Insert creates a new request; domain.ErrRequestConflict on duplicate email.
	Insert(ctx context.Context, req *domain.RegistrationRequest) (*domain.RegistrationRequest, error)
	// Transition applies patch to the request iff its current status is one of
	// from, returning the updated request. domain.ErrRequestNotFound when no
	// such id exists; domain.ErrInvalidState when the status guard fails.
	Transition(ctx context.Context, id string, from []domain.RegistrationStatus, patch RequestPatch) (*domain.RegistrationRequest, error)
	List(ctx context.Context, filter ListRequestsFilter) ([]*domain.RegistrationRequest, int64, error)
}
