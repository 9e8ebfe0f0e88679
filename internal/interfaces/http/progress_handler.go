package http

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/learnsync/internal/infrastructure/logging"
	"github.com/pot-code/learnsync/internal/infrastructure/validate"
	"github.com/pot-code/learnsync/internal/progress"
	"go.uber.org/zap"
)

type syncMergeBody struct {
	CourseID       string          `json:"courseId" validate:"notblank,max=64"`
	CompletedItems json.RawMessage `json:"completedItems"`
}

type resetBody struct {
	CourseID string `json:"courseId" validate:"notblank,max=64"`
}

// RecordsResponse body of every progress endpoint
type RecordsResponse struct {
	Records []*progress.CourseProgressRecord `json:"records"`
}

// ProgressHandler progress transport
type ProgressHandler struct {
	ProgressUseCase progress.UseCase
	Validator       validate.Validator
}

// NewProgressHandler ...
func NewProgressHandler(ProgressUseCase progress.UseCase, Validator validate.Validator) *ProgressHandler {
	return &ProgressHandler{ProgressUseCase, Validator}
}

// HandleFetch GET /progress/:username
func (ph *ProgressHandler) HandleFetch(c echo.Context) error {
	records, err := ph.ProgressUseCase.Fetch(c.Request().Context(), c.Param("username"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &RecordsResponse{records})
}

// HandleSyncMerge POST /progress/:username/sync
func (ph *ProgressHandler) HandleSyncMerge(c echo.Context) error {
	ctx := c.Request().Context()
	body := new(syncMergeBody)
	if err := c.Bind(body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if errs := localized(c, ph.Validator).Struct(body); errs != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", errs).
				SetTraceID(c.Response().Header().Get(echo.HeaderXRequestID)))
	}

	items, dropped := decodeItems(body.CompletedItems)
	if dropped > 0 {
		logging.ExtractLoggerFromContext(ctx).Warn("sanitized completedItems",
			zap.String("progress.course_id", body.CourseID),
			zap.Int("progress.dropped", dropped))
	}
	records, err := ph.ProgressUseCase.SyncMerge(ctx, c.Param("username"), body.CourseID, items)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &RecordsResponse{records})
}

// HandleReset POST /progress/:username/reset
func (ph *ProgressHandler) HandleReset(c echo.Context) error {
	body := new(resetBody)
	if err := c.Bind(body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if errs := localized(c, ph.Validator).Struct(body); errs != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", errs).
				SetTraceID(c.Response().Header().Get(echo.HeaderXRequestID)))
	}

	records, err := ph.ProgressUseCase.Reset(c.Request().Context(), c.Param("username"), body.CourseID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &RecordsResponse{records})
}

// decodeItems keeps the valid string entries of a JSON array, anything that is not an array counts as one dropped value
func decodeItems(raw json.RawMessage) (progress.ItemSet, int) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return make(progress.ItemSet), 0
	}
	var values []interface{}
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return make(progress.ItemSet), 1
	}
	return progress.SanitizeItems(values)
}
