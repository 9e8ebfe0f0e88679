package progress

import (
	"context"
	"sort"
	"time"
)

// DefaultModule current module assigned when a record is created
const DefaultModule = 1

// MaxCourseIDLength longest accepted course identifier in bytes
const MaxCourseIDLength = 64

// CourseProgressRecord completion state of one user in one course
type CourseProgressRecord struct {
	CourseID       string    `json:"courseId"`
	CompletedItems ItemSet   `json:"completedItems"`
	CurrentModule  int       `json:"currentModule"` // set once on creation, never derived from CompletedItems
	LastUpdated    time.Time `json:"lastUpdated"`   // server clock of the last applied merge
}

// Clone deep copy
func (r *CourseProgressRecord) Clone() *CourseProgressRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.CompletedItems = r.CompletedItems.Clone()
	return &c
}

// Incoming a client's view of one course
type Incoming struct {
	CourseID       string
	CompletedItems ItemSet
}

// FindRecord linear scan by course id, per user record sets are small
func FindRecord(records []*CourseProgressRecord, courseID string) *CourseProgressRecord {
	for _, r := range records {
		if r.CourseID == courseID {
			return r
		}
	}
	return nil
}

// SortRecords orders records by course id in place
func SortRecords(records []*CourseProgressRecord) []*CourseProgressRecord {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CourseID < records[j].CourseID
	})
	return records
}

// Repository durable home of progress records.
//
// Merge must apply the union atomically per (username, courseID) and Delete must be idempotent.
type Repository interface {
	ListByUser(ctx context.Context, username string) ([]*CourseProgressRecord, error)
	Merge(ctx context.Context, username string, in Incoming, now time.Time) error
	Delete(ctx context.Context, username, courseID string) error
	Ping(ctx context.Context) error
}

// UseCase operations exposed to the transport and to in-process sync clients
type UseCase interface {
	Fetch(ctx context.Context, username string) ([]*CourseProgressRecord, error)
	SyncMerge(ctx context.Context, username, courseID string, items ItemSet) ([]*CourseProgressRecord, error)
	Reset(ctx context.Context, username, courseID string) ([]*CourseProgressRecord, error)
}

// UserDirectory resolves usernames owned by the auth collaborator
type UserDirectory interface {
	Resolve(ctx context.Context, username string) (bool, error)
}

// Publisher receives the authoritative record list after each applied write
type Publisher interface {
	Publish(ctx context.Context, username string, records []*CourseProgressRecord)
}
