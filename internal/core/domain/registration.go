package domain

import (
	"errors"
	"time"
)

// RegistrationStatus is the lifecycle state of a registration request.
//
// "Awaiting email verification" and "awaiting admin decision" are distinct
// statuses rather than being inferred from whether the verification code has
// been cleared, so every guard below is an explicit status comparison.
type RegistrationStatus string

const (
	// StatusPendingVerification: request created, verification code sent,
	// waiting for the applicant to prove control of the email address.
	StatusPendingVerification RegistrationStatus = "pending_verification"
	// StatusPendingApproval: email verified, waiting for an admin decision.
	StatusPendingApproval RegistrationStatus = "pending_approval"
	// StatusApproved: admin approved; completion token issued, waiting for
	// the applicant to set a password.
	StatusApproved RegistrationStatus = "approved"
	// StatusRejected is terminal.
	StatusRejected RegistrationStatus = "rejected"
	// StatusCompleted is terminal: the account has been created.
	StatusCompleted RegistrationStatus = "completed"
)

// validRegistrationTransitions defines the allowed state machine transitions.
// Admins may approve or reject a request that has not yet verified its email;
// verification itself is only meaningful before the admin acts.
var validRegistrationTransitions = map[RegistrationStatus][]RegistrationStatus{
	StatusPendingVerification: {StatusPendingApproval, StatusApproved, StatusRejected},
	StatusPendingApproval:     {StatusApproved, StatusRejected},
	StatusApproved:            {StatusCompleted},
}

// CanTransitionTo reports whether a transition from s to next is valid.
func (s RegistrationStatus) CanTransitionTo(next RegistrationStatus) bool {
	for _, allowed := range validRegistrationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Pending reports whether the request is still awaiting an admin decision.
func (s RegistrationStatus) Pending() bool {
	return s == StatusPendingVerification || s == StatusPendingApproval
}

// Terminal reports whether no further transitions are possible.
func (s RegistrationStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// ValidRegistrationStatus reports whether s names a known status.
func ValidRegistrationStatus(s RegistrationStatus) bool {
	switch s {
	case StatusPendingVerification, StatusPendingApproval, StatusApproved, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

var (
	ErrRequestNotFound  = errors.New("registration request not found")
	ErrRequestConflict  = errors.New("registration request already exists")
	ErrInvalidState     = errors.New("invalid registration state for this operation")
	ErrInvalidCode      = errors.New("verification code mismatch")
	ErrCodeExpired      = errors.New("verification code expired")
	ErrInvalidToken     = errors.New("completion token missing or mismatched")
	ErrTokenExpired     = errors.New("completion token expired")
	ErrRoleNotPermitted = errors.New("role not permitted for self-service registration")
)

// RegistrationRequest tracks a prospective user's path from self-service
// request to account creation. At most one exists per email; completing one
// creates the User and retires the request to StatusCompleted.
type RegistrationRequest struct {
	ID        string             `json:"id" bson:"_id,omitempty"`
	Email     string             `json:"email" bson:"email"`
	FirstName string             `json:"first_name" bson:"first_name"`
	LastName  string             `json:"last_name" bson:"last_name"`
	Role      Role               `json:"role" bson:"role"`
	Status    RegistrationStatus `json:"status" bson:"status"`

	// One-time email verification code, present only while
	// status == pending_verification.
	VerificationCode string     `json:"-" bson:"verification_code,omitempty"`
	CodeExpiresAt    *time.Time `json:"-" bson:"code_expires_at,omitempty"`

	// One-time completion token, present only while status == approved.
	// Shorter window than the request itself; single use.
	CompletionToken string     `json:"-" bson:"completion_token,omitempty"`
	TokenExpiresAt  *time.Time `json:"-" bson:"token_expires_at,omitempty"`

	ApprovedBy      string     `json:"approved_by,omitempty" bson:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty" bson:"approved_at,omitempty"`
	AdminNotes      string     `json:"admin_notes,omitempty" bson:"admin_notes,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty" bson:"rejection_reason,omitempty"`

	RequestedAt time.Time `json:"requested_at" bson:"requested_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}
