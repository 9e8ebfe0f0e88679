package syncclient

import (
	"errors"
	"fmt"

	"github.com/pot-code/learnsync/internal/progress"
)

// ErrUnknownOutcome the request may or may not have been applied, a retry is safe because merges are idempotent
var ErrUnknownOutcome = errors.New("sync outcome unknown")

// ErrRejected the server refused the request, retrying the same payload will not help
var ErrRejected = errors.New("request rejected by server")

// ResetWarning remote reset failed after the local record was already cleared
type ResetWarning struct {
	CourseID string
	Err      error
}

func (w *ResetWarning) Error() string {
	return fmt.Sprintf("course %s cleared locally but the server reset failed: %v", w.CourseID, w.Err)
}

func (w *ResetWarning) Unwrap() error {
	return w.Err
}

func retryable(err error) bool {
	return errors.Is(err, progress.ErrTransientStore) || errors.Is(err, ErrUnknownOutcome)
}
