package middleware

import "github.com/labstack/echo/v4"

// Interceptor inspects a request before its handler runs. A nil return passes
// the request on; any error stops the chain and goes to the HTTP error
// handler.
type Interceptor func(c echo.Context) error

// Pipeline runs interceptors in order and calls the handler only when all of
// them pass.
func Pipeline(interceptors ...Interceptor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, ic := range interceptors {
				if err := ic(c); err != nil {
					return err
				}
			}
			return next(c)
		}
	}
}
