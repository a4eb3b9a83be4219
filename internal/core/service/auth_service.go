package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/api/metrics"
	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
	"github.com/99minutos/identity-system/internal/pkg/redact"
)

// FlowConfig holds the lifetimes and link settings used by the credential
// flows.
type FlowConfig struct {
	AccessTTL time.Duration
	VerifyTTL time.Duration
	ResetTTL  time.Duration
	// SingleUse makes verification and reset tokens redeemable once.
	SingleUse bool
	// BaseURL prefixes the links placed in outbound mail.
	BaseURL string
}

// AuthService implements registration, login, email verification, password
// recovery and logout.
type AuthService struct {
	users    ports.CredentialStore
	hasher   ports.PasswordHasher
	tokens   ports.TokenService
	denylist ports.RevocationStore
	mail     ports.MailQueue
	cfg      FlowConfig
	log      zerolog.Logger
	// decoy is verified against when the identifier matches no account, so
	// unknown users cost the same hashing work as wrong passwords.
	decoy string
}

func NewAuthService(
	users ports.CredentialStore,
	hasher ports.PasswordHasher,
	tokens ports.TokenService,
	denylist ports.RevocationStore,
	mail ports.MailQueue,
	cfg FlowConfig,
	log zerolog.Logger,
) *AuthService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.VerifyTTL <= 0 {
		cfg.VerifyTTL = time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	decoy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		log.Warn().Err(err).Msg("could not prepare decoy password hash")
	}
	return &AuthService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		denylist: denylist,
		mail:     mail,
		cfg:      cfg,
		log:      log,
		decoy:    decoy,
	}
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("register: %w", domain.ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !domain.ValidRole(role) {
		return nil, fmt.Errorf("register: unknown role %q: %w", role, domain.ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	now := s.tokens.Now().UTC()
	created, err := s.users.Create(ctx, &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user_id", created.ID).
		Str("email", redact.Email(created.Email)).
		Str("role", created.Role).
		Msg("user registered")
	return created, nil
}

// Login accepts a username or an email as identifier. Unknown identifiers,
// wrong passwords and deactivated accounts all fail with
// ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*ports.LoginResult, error) {
	user, err := s.authenticate(ctx, identifier, password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}

	token, err := s.tokens.Issue(domain.PurposeAccess, user.Username, user.ID, user.Role, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	metrics.TokensIssuedTotal.WithLabelValues(string(domain.PurposeAccess)).Inc()

	s.log.Info().Str("user_id", user.ID).Msg("login succeeded")
	return &ports.LoginResult{AccessToken: token, TokenType: "bearer", User: user}, nil
}

func (s *AuthService) authenticate(ctx context.Context, identifier, password string) (*domain.User, error) {
	if identifier == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	var (
		user *domain.User
		err  error
	)
	if domain.IsEmail(identifier) {
		user, err = s.users.FindByEmail(ctx, identifier)
	} else {
		user, err = s.users.FindByUsername(ctx, identifier)
	}
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		s.hasher.Verify(s.decoy, password)
		return nil, domain.ErrInvalidCredentials
	case err != nil:
		return nil, err
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.Active {
		s.log.Debug().Str("user_id", user.ID).Msg("login refused for inactive account")
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// SendVerification mails a verification link to the caller's address and
// returns that address. username must name the caller.
func (s *AuthService) SendVerification(ctx context.Context, id domain.Identity, username string) (string, error) {
	if username != id.Subject {
		return "", domain.ErrForbidden
	}
	user, err := s.users.FindByID(ctx, id.UserID)
	if err != nil {
		return "", err
	}
	if user.Verified {
		return "", domain.ErrAlreadyVerified
	}

	token, err := s.tokens.Issue(domain.PurposeEmailVerify, user.Email, user.ID, user.Role, s.cfg.VerifyTTL)
	if err != nil {
		return "", fmt.Errorf("send verification: %w", err)
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(domain.PurposeEmailVerify)).Inc()

	if err := s.enqueue(user.Email, "Verify your account",
		"Use this link to verify your account: "+s.link("/auth/verify", token)); err != nil {
		return "", err
	}
	return user.Email, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.redeem(ctx, token, domain.PurposeEmailVerify)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.Verified = true
	if err := s.consume(ctx, token, claims); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("email verified")
	return user, nil
}

// ForgotPassword mails a reset link to email. Unknown addresses fail with
// ErrUserNotFound.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", fmt.Errorf("forgot password: %w", domain.ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(domain.PurposePasswordReset, user.Email, user.ID, user.Role, s.cfg.ResetTTL)
	if err != nil {
		return "", fmt.Errorf("forgot password: %w", err)
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(domain.PurposePasswordReset)).Inc()

	if err := s.enqueue(user.Email, "Forgot Password",
		"Use this link to reset your password: "+s.link("/auth/forgot-password", token)); err != nil {
		return "", err
	}
	return user.Email, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (*domain.User, error) {
	if newPassword == "" {
		return nil, fmt.Errorf("reset password: %w", domain.ErrInvalidInput)
	}
	claims, err := s.redeem(ctx, token, domain.PurposePasswordReset)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("reset password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	if err := s.consume(ctx, token, claims); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("password reset")
	return user, nil
}

// Logout denylists token until its own expiry. A token that no longer
// verifies is already unusable, so that case succeeds without a write.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	revoked, err := revokeToken(ctx, s.tokens, s.denylist, token)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if revoked {
		s.log.Info().Msg("session revoked")
	}
	return nil
}

// redeem verifies a single-purpose token and, when single use is enabled,
// checks that it has not been consumed yet. Nothing is written here: the
// caller applies its mutation and then calls consume, so a failed write leaves
// the token redeemable.
func (s *AuthService) redeem(ctx context.Context, token string, purpose domain.Purpose) (domain.Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return domain.Claims{}, err
	}
	if err := RequirePurpose(claims, purpose); err != nil {
		return domain.Claims{}, err
	}
	if !s.cfg.SingleUse {
		return claims, nil
	}

	_, used, err := s.denylist.Get(ctx, domain.TokenKey(token))
	if err != nil {
		return domain.Claims{}, fmt.Errorf("redeem %s token: %w", purpose, err)
	}
	if used {
		return domain.Claims{}, domain.NewTokenError(domain.TokenConsumed, nil)
	}
	return claims, nil
}

// consume records a redeemed token for the rest of its lifetime. It runs
// after the mutation succeeded; a concurrent redemption that got there first
// is only logged, since both requests applied the same kind of change.
func (s *AuthService) consume(ctx context.Context, token string, claims domain.Claims) error {
	if !s.cfg.SingleUse {
		return nil
	}
	ttl := claims.Remaining(s.tokens.Now())
	if ttl <= 0 {
		return nil
	}
	claimed, err := s.denylist.PutIfAbsent(ctx, domain.TokenKey(token), domain.MarkerConsumed, ttl)
	if err != nil {
		return fmt.Errorf("consume %s token: %w", claims.Purpose, err)
	}
	if !claimed {
		s.log.Warn().Str("user_id", claims.UserID).Str("purpose", string(claims.Purpose)).
			Msg("token redeemed concurrently")
		return nil
	}
	metrics.RevocationsTotal.WithLabelValues(domain.MarkerConsumed).Inc()
	return nil
}

func (s *AuthService) link(path, token string) string {
	return s.cfg.BaseURL + path + "?token=" + url.QueryEscape(token)
}

func (s *AuthService) enqueue(to, subject, body string) error {
	if err := s.mail.Enqueue(ports.MailMessage{To: to, Subject: subject, Body: body}); err != nil {
		s.log.Warn().Err(err).Str("to", redact.Email(to)).Msg("mail not queued")
		return fmt.Errorf("enqueue mail: %w: %w", domain.ErrServiceUnavailable, err)
	}
	return nil
}
