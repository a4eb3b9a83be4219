package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/api/middleware"
	"github.com/99minutos/identity-system/internal/core/domain"
)

// ctxIdentity returns the caller attached by the AuthGate. A missing identity
// means the route was mounted without the gate, which is treated as an
// unauthenticated request.
func ctxIdentity(c echo.Context) (domain.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok || id.UserID == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return id, nil
}
