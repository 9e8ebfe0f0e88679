package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "progress"

// RedisRepository keeps each record as an item set plus a meta hash, indexed by a per-user course set.
// Merge and Delete run as MULTI/EXEC blocks so each is applied atomically.
type RedisRepository struct {
	rdb *redis.Client
}

var _ Repository = &RedisRepository{}

func NewRedisRepository(rdb *redis.Client) *RedisRepository {
	return &RedisRepository{rdb}
}

func coursesKey(username string) string {
	return fmt.Sprintf("%s:{%s}:courses", redisKeyPrefix, username)
}

func itemsKey(username, courseID string) string {
	return fmt.Sprintf("%s:{%s}:%s:items", redisKeyPrefix, username, courseID)
}

func metaKey(username, courseID string) string {
	return fmt.Sprintf("%s:{%s}:%s:meta", redisKeyPrefix, username, courseID)
}

func (repo *RedisRepository) ListByUser(ctx context.Context, username string) ([]*CourseProgressRecord, error) {
	courses, err := repo.rdb.SMembers(ctx, coursesKey(username)).Result()
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return []*CourseProgressRecord{}, nil
	}

	items := make([]*redis.StringSliceCmd, len(courses))
	metas := make([]*redis.StringStringMapCmd, len(courses))
	_, err = repo.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, c := range courses {
			items[i] = pipe.SMembers(ctx, itemsKey(username, c))
			metas[i] = pipe.HGetAll(ctx, metaKey(username, c))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]*CourseProgressRecord, 0, len(courses))
	for i, c := range courses {
		meta := metas[i].Val()
		// removed by a concurrent reset after the index was read
		if len(meta) == 0 {
			continue
		}
		module, err := strconv.Atoi(meta["current_module"])
		if err != nil {
			module = DefaultModule
		}
		ms, _ := strconv.ParseInt(meta["last_updated"], 10, 64)
		set, _ := SanitizeStrings(items[i].Val())
		result = append(result, &CourseProgressRecord{
			CourseID:       c,
			CompletedItems: set,
			CurrentModule:  module,
			LastUpdated:    time.Unix(0, ms*int64(time.Millisecond)).UTC(),
		})
	}
	return result, nil
}

func (repo *RedisRepository) Merge(ctx context.Context, username string, in Incoming, now time.Time) error {
	ids := in.CompletedItems.Slice()
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	_, err := repo.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, coursesKey(username), in.CourseID)
		if len(members) > 0 {
			pipe.SAdd(ctx, itemsKey(username, in.CourseID), members...)
		}
		meta := metaKey(username, in.CourseID)
		pipe.HSetNX(ctx, meta, "current_module", DefaultModule)
		pipe.HSet(ctx, meta, "last_updated", now.UnixNano()/int64(time.Millisecond))
		return nil
	})
	return err
}

func (repo *RedisRepository) Delete(ctx context.Context, username, courseID string) error {
	_, err := repo.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, coursesKey(username), courseID)
		pipe.Del(ctx, itemsKey(username, courseID), metaKey(username, courseID))
		return nil
	})
	return err
}

func (repo *RedisRepository) Ping(ctx context.Context) error {
	return repo.rdb.Ping(ctx).Err()
}
