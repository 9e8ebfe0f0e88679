package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
)

// AbortRequestOption .
type AbortRequestOption struct {
	Timeout time.Duration
	Skipper echo_middleware.Skipper
}

// AbortRequest bounds the request context with Timeout, storage calls observe it and give up
func AbortRequest(option *AbortRequestOption) echo.MiddlewareFunc {
	skipper := echo_middleware.DefaultSkipper
	if option.Skipper != nil {
		skipper = option.Skipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if option.Timeout <= 0 || skipper(c) {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), option.Timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
