package syncclient

import (
	"context"

	"github.com/pot-code/learnsync/internal/progress"
)

// Remote authoritative store as seen by a client. progress.UseCase satisfies it in-process.
type Remote interface {
	Fetch(ctx context.Context, username string) ([]*progress.CourseProgressRecord, error)
	SyncMerge(ctx context.Context, username, courseID string, items progress.ItemSet) ([]*progress.CourseProgressRecord, error)
	Reset(ctx context.Context, username, courseID string) ([]*progress.CourseProgressRecord, error)
}

var _ Remote = progress.UseCase(nil)
