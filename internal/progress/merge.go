package progress

import "time"

// Merge combines the authoritative record with a client's view.
//
// A nil existing record yields a new one at DefaultModule. Otherwise the completed
// sets are unioned and CurrentModule is kept. existing is never modified and
// LastUpdated is always now.
func Merge(existing *CourseProgressRecord, in Incoming, now time.Time) *CourseProgressRecord {
	incoming, _ := SanitizeStrings(in.CompletedItems.Slice())
	if existing == nil {
		return &CourseProgressRecord{
			CourseID:       in.CourseID,
			CompletedItems: incoming,
			CurrentModule:  DefaultModule,
			LastUpdated:    now,
		}
	}
	return &CourseProgressRecord{
		CourseID:       existing.CourseID,
		CompletedItems: existing.CompletedItems.Union(incoming),
		CurrentModule:  existing.CurrentModule,
		LastUpdated:    now,
	}
}
