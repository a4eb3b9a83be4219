package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// TokenConfig holds the process-wide signing settings.
type TokenConfig struct {
	Secret    string
	Algorithm string
}

type tokenClaims struct {
	UserID  string `json:"id"`
	Role    string `json:"role"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HMAC-signed JWTs. It holds no mutable
// state after construction.
type TokenService struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces the wall clock used for issuing and verifying.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token service: empty signing secret")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("token service: unsupported algorithm %q", alg)
	}

	s := &TokenService{secret: []byte(cfg.Secret), method: method, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Now returns the service clock's current time.
func (s *TokenService) Now() time.Time {
	return s.now()
}

// Issue signs a new claim set that expires ttl from now.
func (s *TokenService) Issue(purpose domain.Purpose, subject, userID, role string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("issue token: non-positive ttl %s", ttl)
	}
	if subject == "" || userID == "" {
		return "", fmt.Errorf("issue token: %w", domain.ErrTokenMissingClaim)
	}

	now := s.now()
	claims := tokenClaims{
		UserID:  userID,
		Role:    role,
		Purpose: string(purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, expiry and required claims. An expired
// token is rejected the instant exp is reached; there is no leeway.
func (s *TokenService) Verify(token string) (domain.Claims, error) {
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return domain.Claims{}, classifyJWTError(err)
	}

	if tc.Subject == "" || tc.UserID == "" {
		return domain.Claims{}, domain.NewTokenError(domain.TokenMissingClaim, errors.New("sub and id are required"))
	}

	claims := domain.Claims{
		Subject:   tc.Subject,
		UserID:    tc.UserID,
		Role:      tc.Role,
		Purpose:   domain.Purpose(tc.Purpose),
		ExpiresAt: tc.ExpiresAt.Time,
		TokenID:   tc.ID,
	}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}
	return claims, nil
}

// RequirePurpose rejects claims issued for a different purpose, so a reset
// token can never stand in for an access token.
func RequirePurpose(c domain.Claims, want domain.Purpose) error {
	if c.Purpose != want {
		return domain.NewTokenError(domain.TokenWrongPurpose, fmt.Errorf("want %s, got %q", want, c.Purpose))
	}
	return nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.NewTokenError(domain.TokenExpired, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return domain.NewTokenError(domain.TokenMissingClaim, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return domain.NewTokenError(domain.TokenInvalidSignature, err)
	default:
		return domain.NewTokenError(domain.TokenMalformed, err)
	}
}
