package progress

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

type memoryShard struct {
	mu    sync.Mutex
	users map[string][]*CourseProgressRecord
}

// MemoryRepository in-process Repository sharded by username.
// Each user's record set lives in exactly one shard, so a merge is a critical section on that shard.
type MemoryRepository struct {
	shards []*memoryShard
}

var _ Repository = &MemoryRepository{}

// NewMemoryRepository create a MemoryRepository with n shards
func NewMemoryRepository(n int) *MemoryRepository {
	if n < 1 {
		n = 1
	}
	shards := make([]*memoryShard, n)
	for i := range shards {
		shards[i] = &memoryShard{users: make(map[string][]*CourseProgressRecord)}
	}
	return &MemoryRepository{shards}
}

func (repo *MemoryRepository) shard(username string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(username))
	return repo.shards[h.Sum32()%uint32(len(repo.shards))]
}

func (repo *MemoryRepository) ListByUser(ctx context.Context, username string) ([]*CourseProgressRecord, error) {
	s := repo.shard(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.users[username]
	result := make([]*CourseProgressRecord, 0, len(records))
	for _, r := range records {
		result = append(result, r.Clone())
	}
	return result, nil
}

func (repo *MemoryRepository) Merge(ctx context.Context, username string, in Incoming, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := repo.shard(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.users[username]
	for i, r := range records {
		if r.CourseID == in.CourseID {
			records[i] = Merge(r, in, now)
			return nil
		}
	}
	s.users[username] = append(records, Merge(nil, in, now))
	return nil
}

func (repo *MemoryRepository) Delete(ctx context.Context, username, courseID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := repo.shard(username)
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.users[username]
	for i, r := range records {
		if r.CourseID == courseID {
			s.users[username] = append(records[:i:i], records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (repo *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}
