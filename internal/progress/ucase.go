package progress

import (
	"context"
	"strings"
	"time"

	"github.com/pot-code/learnsync/internal/infrastructure/logging"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// ProgressUseCaseImpl authoritative progress operations
//
// Writes to the same (username, courseID) are serialized by a KeyLock inside the process and by
// the repository's own atomic merge across processes. A Reset racing an in-flight SyncMerge has
// no defined winner: whichever reaches the key last decides whether the record exists afterwards.
type ProgressUseCaseImpl struct {
	Repository Repository
	Directory  UserDirectory
	Publisher  Publisher
	Lock       *KeyLock
	Now        func() time.Time
}

var _ UseCase = &ProgressUseCaseImpl{}

// NewProgressUseCase ...
func NewProgressUseCase(
	Repository Repository,
	Directory UserDirectory,
	Lock *KeyLock,
	Publisher Publisher,
) *ProgressUseCaseImpl {
	if Lock == nil {
		Lock = NewKeyLock(1)
	}
	return &ProgressUseCaseImpl{
		Repository: Repository,
		Directory:  Directory,
		Publisher:  Publisher,
		Lock:       Lock,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Fetch all records of username, empty when the user has no progress yet
func (pu *ProgressUseCaseImpl) Fetch(ctx context.Context, username string) ([]*CourseProgressRecord, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.Fetch", "service")
	defer apmSpan.End()

	if err := pu.resolve(ctx, username); err != nil {
		return nil, err
	}
	return pu.list(ctx, username)
}

// SyncMerge unions items into the record of courseID and returns every record of the user
func (pu *ProgressUseCaseImpl) SyncMerge(ctx context.Context, username, courseID string, items ItemSet) ([]*CourseProgressRecord, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.SyncMerge", "service")
	defer apmSpan.End()

	courseID = strings.TrimSpace(courseID)
	if courseID == "" || len(courseID) > MaxCourseIDLength {
		return nil, ErrInvalidCourse
	}
	if err := pu.resolve(ctx, username); err != nil {
		return nil, err
	}

	incoming, dropped := SanitizeStrings(items.Slice())
	if dropped > 0 {
		logging.ExtractLoggerFromContext(ctx).Warn("dropped malformed item ids",
			zap.String("user.name", username),
			zap.String("progress.course_id", courseID),
			zap.Int("progress.dropped", dropped),
		)
	}

	unlock := pu.Lock.Lock(username, courseID)
	err := pu.Repository.Merge(ctx, username, Incoming{CourseID: courseID, CompletedItems: incoming}, pu.Now())
	unlock()
	if err != nil {
		return nil, transient("merge", err)
	}

	records, err := pu.list(ctx, username)
	if err != nil {
		return nil, err
	}
	pu.publish(ctx, username, records)
	return records, nil
}

// Reset deletes the record of courseID, succeeding when there is none
func (pu *ProgressUseCaseImpl) Reset(ctx context.Context, username, courseID string) ([]*CourseProgressRecord, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.Reset", "service")
	defer apmSpan.End()

	courseID = strings.TrimSpace(courseID)
	if courseID == "" || len(courseID) > MaxCourseIDLength {
		return nil, ErrInvalidCourse
	}
	if err := pu.resolve(ctx, username); err != nil {
		return nil, err
	}

	unlock := pu.Lock.Lock(username, courseID)
	err := pu.Repository.Delete(ctx, username, courseID)
	unlock()
	if err != nil {
		return nil, transient("delete", err)
	}

	records, err := pu.list(ctx, username)
	if err != nil {
		return nil, err
	}
	pu.publish(ctx, username, records)
	return records, nil
}

func (pu *ProgressUseCaseImpl) resolve(ctx context.Context, username string) error {
	if strings.TrimSpace(username) == "" {
		return ErrUserNotFound
	}
	ok, err := pu.Directory.Resolve(ctx, username)
	if err != nil {
		return transient("resolve user", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

func (pu *ProgressUseCaseImpl) list(ctx context.Context, username string) ([]*CourseProgressRecord, error) {
	records, err := pu.Repository.ListByUser(ctx, username)
	if err != nil {
		return nil, transient("list", err)
	}
	if records == nil {
		records = []*CourseProgressRecord{}
	}
	return SortRecords(records), nil
}

func (pu *ProgressUseCaseImpl) publish(ctx context.Context, username string, records []*CourseProgressRecord) {
	if pu.Publisher == nil {
		return
	}
	snapshot := make([]*CourseProgressRecord, len(records))
	for i, r := range records {
		snapshot[i] = r.Clone()
	}
	pu.Publisher.Publish(ctx, username, snapshot)
}
