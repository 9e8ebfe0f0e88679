package syncclient

import (
	"sort"
	"time"

	"github.com/pot-code/learnsync/internal/progress"
)

// LocalRecord client side mirror of one course.
// Pending is set while CompletedItems holds ids the server has not acknowledged yet.
type LocalRecord struct {
	CourseID       string           `json:"courseId"`
	CompletedItems progress.ItemSet `json:"completedItems"`
	CurrentModule  int              `json:"currentModule"`
	LastUpdated    time.Time        `json:"lastUpdated"`
	Pending        bool             `json:"pending"`
	LastError      string           `json:"lastError,omitempty"`
}

// Clone deep copy
func (r *LocalRecord) Clone() *LocalRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.CompletedItems = r.CompletedItems.Clone()
	return &c
}

func sortLocal(records []*LocalRecord) []*LocalRecord {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CourseID < records[j].CourseID
	})
	return records
}
