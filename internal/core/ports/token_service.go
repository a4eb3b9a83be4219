package ports

import (
	"time"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// TokenService issues and verifies signed, expiring claim sets. Both
// operations are pure computation.
type TokenService interface {
	Issue(purpose domain.Purpose, subject, userID, role string, ttl time.Duration) (string, error)
	Verify(token string) (domain.Claims, error)
	Now() time.Time
}
