package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/api/metrics"
	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
	"github.com/99minutos/identity-system/internal/core/service"
	"github.com/99minutos/identity-system/pkg/logger"
)

// IdentityKey is the echo context key the gate stores the caller under.
const IdentityKey = "identity"

// PublicPaths is the set of request paths served without a token.
type PublicPaths struct {
	exact    map[string]struct{}
	prefixes []string
}

func NewPublicPaths(exact, prefixes []string) PublicPaths {
	p := PublicPaths{exact: make(map[string]struct{}, len(exact)), prefixes: prefixes}
	for _, path := range exact {
		p.exact[path] = struct{}{}
	}
	return p
}

// DefaultPublicPaths lists the routes reachable without authentication.
func DefaultPublicPaths() PublicPaths {
	return NewPublicPaths(
		[]string{
			"/",
			"/health",
			"/health/ready",
			"/metrics",
			"/auth/login",
			"/auth/register",
			"/auth/verify",
			"/auth/forgot-password",
		},
		[]string{"/docs/"},
	)
}

func (p PublicPaths) Allows(path string) bool {
	if _, ok := p.exact[path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AuthGate authenticates every non-public request from its bearer token.
// Tokens must verify, carry the access purpose and be absent from the
// denylist. A denylist failure rejects the request with 503.
type AuthGate struct {
	tokens   ports.TokenService
	denylist ports.RevocationStore
	public   PublicPaths
	log      zerolog.Logger
}

func NewAuthGate(tokens ports.TokenService, denylist ports.RevocationStore, public PublicPaths, log zerolog.Logger) *AuthGate {
	return &AuthGate{tokens: tokens, denylist: denylist, public: public, log: log}
}

// Intercept implements Interceptor.
func (g *AuthGate) Intercept(c echo.Context) error {
	req := c.Request()
	if g.public.Allows(req.URL.Path) {
		return nil
	}

	token, ok := BearerToken(req)
	if !ok {
		return g.reject(c, "missing_header", nil)
	}

	claims, err := g.tokens.Verify(token)
	if err == nil {
		err = service.RequirePurpose(claims, domain.PurposeAccess)
	}
	if err != nil {
		reason := "invalid_token"
		var te *domain.TokenError
		if errors.As(err, &te) {
			reason = te.Kind.String()
		}
		return g.reject(c, reason, err)
	}

	ctx := req.Context()
	start := time.Now()
	_, revoked, err := g.denylist.Get(ctx, domain.TokenKey(token))
	switch {
	case err != nil:
		metrics.DenylistLookupDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		metrics.GateRejectionsTotal.WithLabelValues("store_error").Inc()
		reqLog := logger.FromContext(ctx, g.log)
		reqLog.Error().Err(err).Str("path", req.URL.Path).Msg("denylist lookup failed")
		return fmt.Errorf("auth gate: %w", err)
	case revoked:
		metrics.DenylistLookupDuration.WithLabelValues("hit").Observe(time.Since(start).Seconds())
		return g.reject(c, "revoked", nil)
	}
	metrics.DenylistLookupDuration.WithLabelValues("miss").Observe(time.Since(start).Seconds())

	id := domain.Identity{
		UserID:  claims.UserID,
		Role:    claims.Role,
		Subject: claims.Subject,
		Token:   token,
	}
	c.Set(IdentityKey, id)
	c.SetRequest(req.WithContext(domain.WithIdentity(ctx, id)))
	return nil
}

// Middleware wraps the gate in a single-stage Pipeline.
func (g *AuthGate) Middleware() echo.MiddlewareFunc {
	return Pipeline(g.Intercept)
}

func (g *AuthGate) reject(c echo.Context, reason string, cause error) error {
	metrics.GateRejectionsTotal.WithLabelValues(reason).Inc()
	reqLog := logger.FromContext(c.Request().Context(), g.log)
	reqLog.Debug().
		Err(cause).
		Str("reason", reason).
		Str("path", c.Request().URL.Path).
		Msg("request not authenticated")
	return domain.ErrUnauthenticated
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// IdentityFrom returns the identity the gate attached to c.
func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	if id, ok := c.Get(IdentityKey).(domain.Identity); ok {
		return id, true
	}
	return domain.IdentityFrom(c.Request().Context())
}
