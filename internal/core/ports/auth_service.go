package ports

import (
	"context"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// RegisterInput carries the fields accepted on registration.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// LoginResult is returned on successful login.
type LoginResult struct {
	AccessToken string
	TokenType   string
	User        *domain.User
}

// AuthService groups the credential flows: register, login, email
// verification, password recovery and logout.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, identifier, password string) (*LoginResult, error)
	SendVerification(ctx context.Context, id domain.Identity, username string) (string, error)
	VerifyEmail(ctx context.Context, token string) (*domain.User, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) (*domain.User, error)
	Logout(ctx context.Context, token string) error
}

// UpdateDetailsInput holds optional profile changes; empty fields are left
// untouched.
type UpdateDetailsInput struct {
	Username string
	Email    string
}

// UserService covers account operations on the authenticated user.
type UserService interface {
	Me(ctx context.Context, id domain.Identity) (*domain.User, error)
	ChangePassword(ctx context.Context, id domain.Identity, oldPassword, newPassword string) error
	UpdateDetails(ctx context.Context, id domain.Identity, in UpdateDetailsInput) (*domain.User, error)
	Deactivate(ctx context.Context, id domain.Identity) error
	FindByID(ctx context.Context, userID string) (*domain.User, error)
}
