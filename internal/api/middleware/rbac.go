package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/api/metrics"
	"github.com/99minutos/identity-system/internal/core/domain"
)

// RequireRole admits callers whose role claim is one of allowedRoles. It must
// run after the AuthGate.
func RequireRole(allowedRoles ...string) Interceptor {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(c echo.Context) error {
		id, ok := IdentityFrom(c)
		if !ok {
			return domain.ErrUnauthenticated
		}
		if _, ok := allowed[id.Role]; !ok {
			metrics.GateRejectionsTotal.WithLabelValues("forbidden").Inc()
			return domain.ErrForbidden
		}
		return nil
	}
}

// RBAC enforces role-based access control on a route or group.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	return Pipeline(RequireRole(allowedRoles...))
}
