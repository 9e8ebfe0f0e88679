package syncclient

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pot-code/learnsync/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverRecord(courseID string, items ...string) *progress.CourseProgressRecord {
	return &progress.CourseProgressRecord{
		CourseID:       courseID,
		CompletedItems: progress.NewItemSet(items...),
		CurrentModule:  progress.DefaultModule,
		LastUpdated:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestCache_MarkAndReconcile(t *testing.T) {
	ctx := context.Background()
	cache, err := OpenCache(ctx, NewMemoryStorage(), "laptop")
	require.NoError(t, err)

	local, err := cache.MarkCompleted(ctx, "c1", "l1", "", "l2")
	require.NoError(t, err)
	assert.True(t, local.Pending)
	assert.Equal(t, []string{"l1", "l2"}, local.CompletedItems.Slice())

	// server knows only part of it, nothing local is lost
	local, err = cache.Reconcile(ctx, serverRecord("c1", "l1", "q1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l2", "q1"}, local.CompletedItems.Slice())
	assert.True(t, local.Pending)

	local, err = cache.Reconcile(ctx, serverRecord("c1", "l1", "l2", "q1"))
	require.NoError(t, err)
	assert.False(t, local.Pending)
	assert.Empty(t, cache.PendingCourses())
}

func TestCache_FailedThenConfirmed(t *testing.T) {
	ctx := context.Background()
	cache, err := OpenCache(ctx, NewMemoryStorage(), "laptop")
	require.NoError(t, err)

	_, err = cache.MarkCompleted(ctx, "c1", "l1")
	require.NoError(t, err)
	require.NoError(t, cache.MarkFailed(ctx, "c1", errors.New("boom")))

	local, ok := cache.Get("c1")
	require.True(t, ok)
	assert.True(t, local.Pending)
	assert.Equal(t, "boom", local.LastError)
	assert.Equal(t, []string{"c1"}, cache.PendingCourses())

	local, err = cache.Reconcile(ctx, serverRecord("c1", "l1"))
	require.NoError(t, err)
	assert.False(t, local.Pending)
	assert.Empty(t, local.LastError)
}

func TestCache_ClearAndAbsent(t *testing.T) {
	ctx := context.Background()
	cache, err := OpenCache(ctx, NewMemoryStorage(), "laptop")
	require.NoError(t, err)

	require.NoError(t, cache.ReconcileAll(ctx, []*progress.CourseProgressRecord{serverRecord("c1", "a"), serverRecord("c2", "b")}))
	require.Len(t, cache.Snapshot(), 2)

	require.NoError(t, cache.MarkAbsent(ctx, "c2"))
	local, _ := cache.Get("c2")
	assert.True(t, local.Pending)

	require.NoError(t, cache.Clear(ctx, "c1"))
	_, ok := cache.Get("c1")
	assert.False(t, ok)
	assert.Equal(t, "c2", cache.Snapshot()[0].CourseID)
}

func TestCache_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	cache, err := OpenCache(ctx, NewMemoryStorage(), "laptop")
	require.NoError(t, err)
	_, err = cache.MarkCompleted(ctx, "c1", "l1")
	require.NoError(t, err)

	local, _ := cache.Get("c1")
	local.CompletedItems.Add("x")
	again, _ := cache.Get("c1")
	assert.False(t, again.CompletedItems.Has("x"))
}

func TestCache_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	storage, err := OpenSQLiteStorage(ctx, path)
	require.NoError(t, err)
	cache, err := OpenCache(ctx, storage, "phone")
	require.NoError(t, err)
	_, err = cache.MarkCompleted(ctx, "c1", "l1", "l2")
	require.NoError(t, err)
	_, err = cache.Reconcile(ctx, serverRecord("c2", "q1"))
	require.NoError(t, err)
	_, err = cache.MarkCompleted(ctx, "c3", "z")
	require.NoError(t, err)
	require.NoError(t, cache.Clear(ctx, "c3"))
	require.NoError(t, storage.Close())

	storage, err = OpenSQLiteStorage(ctx, path)
	require.NoError(t, err)
	defer storage.Close()
	reopened, err := OpenCache(ctx, storage, "phone")
	require.NoError(t, err)

	snapshot := reopened.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, []string{"l1", "l2"}, snapshot[0].CompletedItems.Slice())
	assert.True(t, snapshot[0].Pending)
	assert.Equal(t, "c2", snapshot[1].CourseID)
	assert.False(t, snapshot[1].Pending)

	// profiles do not see each other
	other, err := OpenCache(ctx, storage, "tablet")
	require.NoError(t, err)
	assert.Empty(t, other.Snapshot())
}

func TestCache_ReconcileFull(t *testing.T) {
	ctx := context.Background()
	cache, err := OpenCache(ctx, NewMemoryStorage(), "laptop")
	require.NoError(t, err)
	require.NoError(t, cache.ReconcileAll(ctx, []*progress.CourseProgressRecord{
		serverRecord("c1", "l1"),
		serverRecord("c2", "l2"),
	}))
	assert.Empty(t, cache.PendingCourses())

	// c2 was reset elsewhere, c1 lost an item the server never saw
	_, err = cache.MarkCompleted(ctx, "c1", "l3")
	require.NoError(t, err)
	require.NoError(t, cache.ReconcileFull(ctx, []*progress.CourseProgressRecord{serverRecord("c1", "l1")}))
	assert.Equal(t, []string{"c1", "c2"}, cache.PendingCourses())
	local, ok := cache.Get("c2")
	require.True(t, ok)
	assert.Equal(t, []string{"l2"}, local.CompletedItems.Slice())

	require.NoError(t, cache.ReconcileFull(ctx, []*progress.CourseProgressRecord{
		serverRecord("c1", "l1", "l3"),
		serverRecord("c2", "l2"),
	}))
	assert.Empty(t, cache.PendingCourses())
}
