package ports

import (
	"context"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// CredentialStore defines persistence for credential records. Lookups return
// domain.ErrUserNotFound when nothing matches; I/O failures are wrapped with
// domain.ErrServiceUnavailable.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// Create returns domain.ErrUserExists when the username or email is taken.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	MarkVerified(ctx context.Context, id string) error
	// UpdateDetails changes username and/or email (empty means unchanged).
	// Changing the email clears the verified flag.
	UpdateDetails(ctx context.Context, id, username, email string) (*domain.User, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// PasswordHasher hashes and verifies passwords with a slow, salted, one-way
// function.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) bool
}
