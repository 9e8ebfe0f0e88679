package syncclient

import (
	"context"
	"sync"
)

// Storage durable home of a profile's local records, keyed by (profile, courseID)
type Storage interface {
	Load(ctx context.Context, profile string) (map[string]*LocalRecord, error)
	Save(ctx context.Context, profile string, record *LocalRecord) error
	Delete(ctx context.Context, profile, courseID string) error
	Close() error
}

// MemoryStorage Storage that lives as long as the process
type MemoryStorage struct {
	mu       sync.Mutex
	profiles map[string]map[string]*LocalRecord
}

var _ Storage = &MemoryStorage{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{profiles: make(map[string]map[string]*LocalRecord)}
}

func (ms *MemoryStorage) Load(ctx context.Context, profile string) (map[string]*LocalRecord, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make(map[string]*LocalRecord)
	for id, r := range ms.profiles[profile] {
		out[id] = r.Clone()
	}
	return out, nil
}

func (ms *MemoryStorage) Save(ctx context.Context, profile string, record *LocalRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	records, ok := ms.profiles[profile]
	if !ok {
		records = make(map[string]*LocalRecord)
		ms.profiles[profile] = records
	}
	records[record.CourseID] = record.Clone()
	return nil
}

func (ms *MemoryStorage) Delete(ctx context.Context, profile, courseID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.profiles[profile], courseID)
	return nil
}

func (ms *MemoryStorage) Close() error {
	return nil
}
