package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
	"github.com/99minutos/identity-system/internal/pkg/redact"
)

// UserService implements account operations for an authenticated caller.
type UserService struct {
	users    ports.CredentialStore
	hasher   ports.PasswordHasher
	tokens   ports.TokenService
	denylist ports.RevocationStore
	log      zerolog.Logger
}

func NewUserService(
	users ports.CredentialStore,
	hasher ports.PasswordHasher,
	tokens ports.TokenService,
	denylist ports.RevocationStore,
	log zerolog.Logger,
) *UserService {
	return &UserService{users: users, hasher: hasher, tokens: tokens, denylist: denylist, log: log}
}

func (s *UserService) Me(ctx context.Context, id domain.Identity) (*domain.User, error) {
	return s.users.FindByID(ctx, id.UserID)
}

// ChangePassword replaces the stored hash only when oldPassword matches it.
func (s *UserService) ChangePassword(ctx context.Context, id domain.Identity, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("change password: %w", domain.ErrInvalidInput)
	}
	user, err := s.users.FindByID(ctx, id.UserID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(user.PasswordHash, oldPassword) {
		return domain.ErrWrongPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	s.log.Info().Str("user_id", user.ID).Msg("password changed")
	return nil
}

// UpdateDetails requires a verified account. Changing the email clears the
// verified flag.
func (s *UserService) UpdateDetails(ctx context.Context, id domain.Identity, in ports.UpdateDetailsInput) (*domain.User, error) {
	if in.Username == "" && in.Email == "" {
		return nil, fmt.Errorf("update details: %w", domain.ErrInvalidInput)
	}
	user, err := s.users.FindByID(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Verified {
		return nil, domain.ErrNotVerified
	}

	updated, err := s.users.UpdateDetails(ctx, user.ID, in.Username, in.Email)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("user_id", updated.ID).
		Str("email", redact.Email(updated.Email)).
		Bool("verified", updated.Verified).
		Msg("details updated")
	return updated, nil
}

// Deactivate revokes the token the caller presented and then disables the
// account. If the account update fails the caller is logged out but the
// account stays active. Other tokens issued to the account stay valid until
// they expire.
func (s *UserService) Deactivate(ctx context.Context, id domain.Identity) error {
	if _, err := revokeToken(ctx, s.tokens, s.denylist, id.Token); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	if err := s.users.SetActive(ctx, id.UserID, false); err != nil {
		return err
	}
	s.log.Info().Str("user_id", id.UserID).Msg("account deactivated")
	return nil
}

func (s *UserService) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.FindByID(ctx, userID)
}
