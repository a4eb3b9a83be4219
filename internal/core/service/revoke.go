package service

import (
	"context"

	"github.com/99minutos/identity-system/internal/api/metrics"
	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// revokeToken writes token to the denylist for the rest of its lifetime and
// reports whether an entry was written. Tokens that fail verification or have
// no lifetime left are skipped.
func revokeToken(ctx context.Context, tokens ports.TokenService, denylist ports.RevocationStore, token string) (bool, error) {
	claims, err := tokens.Verify(token)
	if err != nil {
		return false, nil
	}
	ttl := claims.Remaining(tokens.Now())
	if ttl <= 0 {
		return false, nil
	}
	if err := denylist.Put(ctx, domain.TokenKey(token), domain.MarkerRevoked, ttl); err != nil {
		return false, err
	}
	metrics.RevocationsTotal.WithLabelValues(domain.MarkerRevoked).Inc()
	return true, nil
}
