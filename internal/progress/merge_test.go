package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Minute)
)

func TestMerge_NewRecord(t *testing.T) {
	got := Merge(nil, Incoming{CourseID: "c1", CompletedItems: NewItemSet("l1", "q1")}, t0)

	assert.Equal(t, "c1", got.CourseID)
	assert.True(t, got.CompletedItems.Equal(NewItemSet("l1", "q1")))
	assert.Equal(t, DefaultModule, got.CurrentModule)
	assert.Equal(t, t0, got.LastUpdated)
}

func TestMerge_Union(t *testing.T) {
	existing := &CourseProgressRecord{CourseID: "c1", CompletedItems: NewItemSet("l1"), CurrentModule: 3, LastUpdated: t0}
	got := Merge(existing, Incoming{CourseID: "c1", CompletedItems: NewItemSet("q1")}, t1)

	assert.Equal(t, []string{"l1", "q1"}, got.CompletedItems.Slice())
	assert.Equal(t, 3, got.CurrentModule, "current module is kept")
	assert.Equal(t, t1, got.LastUpdated)
	// existing is untouched
	assert.Equal(t, []string{"l1"}, existing.CompletedItems.Slice())
	assert.Equal(t, t0, existing.LastUpdated)
}

func TestMerge_Idempotent(t *testing.T) {
	in := Incoming{CourseID: "c1", CompletedItems: NewItemSet("a", "b")}
	once := Merge(nil, in, t0)
	twice := Merge(once, in, t1)

	assert.True(t, once.CompletedItems.Equal(twice.CompletedItems))
	assert.Equal(t, once.CurrentModule, twice.CurrentModule)
}

func TestMerge_Commutative(t *testing.T) {
	base := &CourseProgressRecord{CourseID: "c1", CompletedItems: NewItemSet("x"), CurrentModule: 1}
	a := Incoming{CourseID: "c1", CompletedItems: NewItemSet("a", "b")}
	b := Incoming{CourseID: "c1", CompletedItems: NewItemSet("b", "c")}

	ab := Merge(Merge(base, a, t0), b, t1)
	ba := Merge(Merge(base, b, t0), a, t1)

	assert.True(t, ab.CompletedItems.Equal(ba.CompletedItems))
	assert.Equal(t, []string{"a", "b", "c", "x"}, ab.CompletedItems.Slice())
}

func TestMerge_EmptyIncoming(t *testing.T) {
	existing := &CourseProgressRecord{CourseID: "c1", CompletedItems: NewItemSet("l1"), CurrentModule: 1}
	got := Merge(existing, Incoming{CourseID: "c1"}, t1)
	assert.Equal(t, []string{"l1"}, got.CompletedItems.Slice())

	created := Merge(nil, Incoming{CourseID: "c2"}, t1)
	assert.Equal(t, 0, created.CompletedItems.Len())
	assert.NotNil(t, created.CompletedItems)
}

func TestMerge_DropsBlankIdentifiers(t *testing.T) {
	got := Merge(nil, Incoming{CourseID: "c1", CompletedItems: ItemSet{"": {}, "  ": {}, "ok": {}}}, t0)
	assert.Equal(t, []string{"ok"}, got.CompletedItems.Slice())
}
