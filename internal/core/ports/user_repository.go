package ports

import (
	"context"
	"time"

	"github.com/clinicore/ehr-api/internal/core/domain"
)

// UserRepository defines persistence operations for staff accounts.
// Implementations must enforce email uniqueness; Create returns
// domain.ErrUserExists on a duplicate.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	// SetActive toggles the account's active flag. Deactivation takes effect
	// on the next authenticated request, before any token's natural expiry.
	SetActive(ctx context.Context, id string, active bool) error
	SetRole(ctx context.Context, id string, role domain.Role) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
