package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/learnsync/internal/infrastructure/validate"
	"github.com/pot-code/learnsync/internal/progress"
	"github.com/pot-code/learnsync/internal/user"
)

// RESTStandardError response error
type RESTStandardError struct {
	Type    string `json:"type,omitempty"`
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Detail  string `json:"detail,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func NewRESTStandardError(code int, detail string) *RESTStandardError {
	return &RESTStandardError{
		Code:   code,
		Title:  http.StatusText(code),
		Detail: detail,
	}
}

func (re RESTStandardError) Error() string {
	return re.Detail
}

func (re RESTStandardError) SetTraceID(traceID string) RESTStandardError {
	re.TraceID = traceID
	return re
}

// RESTValidationError standard validation error
type RESTValidationError struct {
	RESTStandardError
	InvalidParams []*validate.FieldError `json:"invalid_params"`
}

func NewRESTValidationError(code int, detail string, internal []*validate.FieldError) *RESTValidationError {
	return &RESTValidationError{
		RESTStandardError: RESTStandardError{
			Code:   code,
			Title:  http.StatusText(code),
			Detail: detail,
		},
		InvalidParams: internal,
	}
}

func (rve RESTValidationError) Error() string {
	return rve.Detail
}

func (rve RESTValidationError) SetTraceID(traceID string) RESTValidationError {
	rve.RESTStandardError.TraceID = traceID
	return rve
}

// statusOf maps use case errors to response codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, progress.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, progress.ErrInvalidCourse), errors.Is(err, user.ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, user.ErrDuplicatedUser):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, progress.ErrTransientStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type translatable interface {
	Translator(locales ...string) validate.Validator
}

// localized picks the validator messages from the Accept-Language header
func localized(c echo.Context, v validate.Validator) validate.Validator {
	tv, ok := v.(translatable)
	header := c.Request().Header.Get("Accept-Language")
	if !ok || header == "" {
		return v
	}
	var locales []string
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if tag == "" {
			continue
		}
		locales = append(locales, tag, strings.SplitN(tag, "-", 2)[0])
	}
	return tv.Translator(locales...)
}
