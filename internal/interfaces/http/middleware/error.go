package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/learnsync/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// ErrorHandlingOption options for error handling
type ErrorHandlingOption struct {
	// Handler writes the response for err, status comes from StatusOf
	Handler func(c echo.Context, status int, traceID string, err error)
	// StatusOf maps an error returned by a handler to a response code
	StatusOf func(err error) int
}

// ErrorHandling turns returned errors and panics into responses
// **DO NOT return error anymore**
func ErrorHandling(options ...*ErrorHandlingOption) echo.MiddlewareFunc {
	custom := &ErrorHandlingOption{
		Handler: func(c echo.Context, status int, traceID string, err error) {
			c.JSON(status, map[string]interface{}{
				"code":     status,
				"title":    http.StatusText(status),
				"detail":   err.Error(),
				"trace_id": traceID,
			})
		},
		StatusOf: func(error) int { return http.StatusInternalServerError },
	}
	if len(options) > 0 {
		option := options[0]
		if option.Handler != nil {
			custom.Handler = option.Handler
		}
		if option.StatusOf != nil {
			custom.StatusOf = option.StatusOf
		}
	}
	handler := custom.Handler
	statusOf := custom.StatusOf
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (ret error) {
			traceID := c.Response().Header().Get(echo.HeaderXRequestID)
			defer func() {
				if any := recover(); any != nil {
					err, ok := any.(error)
					if !ok {
						err = fmt.Errorf("%v", any)
					}
					logging.ExtractLoggerFromContext(c.Request().Context()).Error(err.Error(),
						zap.String("url.path", c.Request().RequestURI),
						zap.String("http.request.method", c.Request().Method),
						zap.Strings("route.params.name", c.ParamNames()),
						zap.Strings("route.params.value", c.ParamValues()),
						zap.String("trace.id", traceID),
						zap.Stack("error.stack_trace"),
					)
					handler(c, http.StatusInternalServerError, traceID, err)
					ret = nil
				}
			}()

			err := next(c)
			if err == nil || c.Response().Committed {
				return nil
			}
			if he, ok := err.(*echo.HTTPError); ok {
				handler(c, he.Code, traceID, fmt.Errorf("%v", he.Message))
				return nil
			}
			status := statusOf(err)
			if status >= http.StatusInternalServerError {
				logging.ExtractLoggerFromContext(c.Request().Context()).Error(err.Error(),
					zap.String("trace.id", traceID),
					zap.Int("http.response.status_code", status),
				)
			}
			handler(c, status, traceID, err)
			return nil
		}
	}
}
