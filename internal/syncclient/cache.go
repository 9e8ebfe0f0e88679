package syncclient

import (
	"context"
	"sync"

	"github.com/pot-code/learnsync/internal/progress"
)

// Cache local mirror of one client profile.
//
// Reads never wait for the network. Every mutation is written through to Storage;
// a storage failure is returned but the in-memory state keeps the change.
type Cache struct {
	mu      sync.RWMutex
	profile string
	records map[string]*LocalRecord
	storage Storage
}

// OpenCache loads the profile's records from storage
func OpenCache(ctx context.Context, storage Storage, profile string) (*Cache, error) {
	records, err := storage.Load(ctx, profile)
	if err != nil {
		return nil, err
	}
	return &Cache{
		profile: profile,
		records: records,
		storage: storage,
	}, nil
}

// Profile .
func (c *Cache) Profile() string {
	return c.profile
}

// Get a copy of the record of courseID
func (c *Cache) Get(courseID string) (*LocalRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[courseID]
	return r.Clone(), ok
}

// Snapshot copies of every record ordered by course id
func (c *Cache) Snapshot() []*LocalRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*LocalRecord, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r.Clone())
	}
	return sortLocal(out)
}

// PendingCourses ids of records holding unconfirmed items
func (c *Cache) PendingCourses() []string {
	var ids []string
	for _, r := range c.Snapshot() {
		if r.Pending {
			ids = append(ids, r.CourseID)
		}
	}
	return ids
}

// MarkCompleted optimistically adds items to the record of courseID, creating it if needed
func (c *Cache) MarkCompleted(ctx context.Context, courseID string, items ...string) (*LocalRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.records[courseID]
	if !ok {
		r = &LocalRecord{
			CourseID:       courseID,
			CompletedItems: make(progress.ItemSet),
			CurrentModule:  progress.DefaultModule,
		}
		c.records[courseID] = r
	}
	r.CompletedItems.Add(items...)
	r.Pending = true
	return r.Clone(), c.storage.Save(ctx, c.profile, r)
}

// Reconcile unions an authoritative record into the local one.
// Local items are never dropped; Pending clears once the server holds every local item.
func (c *Cache) Reconcile(ctx context.Context, server *progress.CourseProgressRecord) (*LocalRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.reconcile(server)
	return r.Clone(), c.storage.Save(ctx, c.profile, r)
}

// ReconcileAll applies every server record, returning the first storage error
func (c *Cache) ReconcileAll(ctx context.Context, records []*progress.CourseProgressRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for _, server := range records {
		r := c.reconcile(server)
		if err := c.storage.Save(ctx, c.profile, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ReconcileFull applies the complete record list of the user. Local courses missing from it are
// no longer confirmed by the server and turn pending.
func (c *Cache) ReconcileFull(ctx context.Context, records []*progress.CourseProgressRecord) error {
	first := c.ReconcileAll(ctx, records)

	held := make(map[string]struct{}, len(records))
	for _, server := range records {
		held[server.CourseID] = struct{}{}
	}
	for _, r := range c.Snapshot() {
		if _, ok := held[r.CourseID]; ok {
			continue
		}
		if err := c.MarkAbsent(ctx, r.CourseID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// MarkAbsent records that the server has no record of courseID, any local item is therefore unconfirmed
func (c *Cache) MarkAbsent(ctx context.Context, courseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[courseID]
	if !ok || r.CompletedItems.Len() == 0 || r.Pending {
		return nil
	}
	r.Pending = true
	return c.storage.Save(ctx, c.profile, r)
}

func (c *Cache) reconcile(server *progress.CourseProgressRecord) *LocalRecord {
	r, ok := c.records[server.CourseID]
	if !ok {
		r = &LocalRecord{
			CourseID:       server.CourseID,
			CompletedItems: make(progress.ItemSet),
		}
		c.records[server.CourseID] = r
	}
	r.CompletedItems = r.CompletedItems.Union(server.CompletedItems)
	r.CurrentModule = server.CurrentModule
	r.LastUpdated = server.LastUpdated
	r.Pending = r.CompletedItems.Difference(server.CompletedItems).Len() > 0
	if !r.Pending {
		r.LastError = ""
	}
	return r
}

// MarkFailed keeps the record pending and remembers why the last sync failed
func (c *Cache) MarkFailed(ctx context.Context, courseID string, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[courseID]
	if !ok {
		return nil
	}
	r.Pending = true
	r.LastError = cause.Error()
	return c.storage.Save(ctx, c.profile, r)
}

// Clear drops the local record of courseID
func (c *Cache) Clear(ctx context.Context, courseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, courseID)
	return c.storage.Delete(ctx, c.profile, courseID)
}
