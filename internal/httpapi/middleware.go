package httpapi

import (
	"context"

	"github.com/labstack/echo/v4"

	"bounty-qa/internal/platform/correlation"
)

// correlationMiddleware propagates or assigns a correlation id per request
// and echoes it in the response.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(correlation.Header)
			if id == "" {
				id = correlation.NewID()
			}
			ctx := correlation.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(correlation.Header, id)
			return next(c)
		}
	}
}

// scopeParam tags the request context with a path parameter so every log
// line of the request carries it.
func scopeParam(param string, tag func(context.Context, string) context.Context) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if v := c.Param(param); v != "" {
				c.SetRequest(c.Request().WithContext(tag(c.Request().Context(), v)))
			}
			return next(c)
		}
	}
}

// requestLogger logs one line per request.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := s.clock.Now()
			err := next(c)
			s.logger.DebugContext(c.Request().Context(), "request",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"duration_ms", s.clock.Since(start).Milliseconds())
			return err
		}
	}
}
