package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the fixed set of staff roles recognised by the authorization gate.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleIntakeStaff Role = "intake_staff"
	RoleClinician   Role = "clinician"
	RoleQAReviewer  Role = "qa_reviewer"
	RoleBiller      Role = "biller"
)

// selfServiceRoles are the roles a prospective user may request through the
// registration workflow. Admin accounts are created only by an existing admin;
// there is deliberately no self-service path to that role.
var selfServiceRoles = map[Role]struct{}{
	RoleIntakeStaff: {},
	RoleClinician:   {},
	RoleQAReviewer:  {},
	RoleBiller:      {},
}

// ValidRole reports whether r is one of the recognised roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleIntakeStaff, RoleClinician, RoleQAReviewer, RoleBiller:
		return true
	}
	return false
}

// SelfServiceRole reports whether r may be requested via self-service registration.
func SelfServiceRole(r Role) bool {
	_, ok := selfServiceRoles[r]
	return ok
}

// NormalizeEmail lower-cases and trims an email address. Emails are
// case-insensitive throughout; every lookup and every stored value goes
// through this first.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")

	// Authentication gate failures.
	ErrMissingToken   = errors.New("missing bearer token")
	ErrSessionExpired = errors.New("session token expired")
	ErrSessionInvalid = errors.New("invalid session token")
	ErrInvalidUser    = errors.New("token does not resolve to an active user")

	// Authorization gate failure.
	ErrForbidden = errors.New("insufficient permissions")

	ErrTooManyAttempts = errors.New("too many attempts")
)

// User models a staff account. Accounts are never hard-deleted; deactivation
// flips Active and the authentication gate rejects the account from then on,
// regardless of any still-unexpired tokens.
type User struct {
	ID           string     `json:"id" bson:"_id,omitempty"`
	Email        string     `json:"email" bson:"email"`
	PasswordHash string     `json:"-" bson:"password_hash"`
	FirstName    string     `json:"first_name" bson:"first_name"`
	LastName     string     `json:"last_name" bson:"last_name"`
	Role         Role       `json:"role" bson:"role"`
	Active       bool       `json:"active" bson:"active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" bson:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" bson:"updated_at"`
}
