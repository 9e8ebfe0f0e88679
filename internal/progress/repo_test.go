package progress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/pot-code/learnsync/internal/infrastructure/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testRepository(t *testing.T, repo Repository) {
	ctx := context.Background()

	records, err := repo.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, repo.Merge(ctx, "alice", Incoming{CourseID: "c1", CompletedItems: NewItemSet("l1")}, t0))
	require.NoError(t, repo.Merge(ctx, "alice", Incoming{CourseID: "c1", CompletedItems: NewItemSet("l1", "q1")}, t1))
	require.NoError(t, repo.Merge(ctx, "alice", Incoming{CourseID: "c2"}, t1))
	require.NoError(t, repo.Merge(ctx, "bob", Incoming{CourseID: "c1", CompletedItems: NewItemSet("x")}, t0))

	records, err = repo.ListByUser(ctx, "alice")
	require.NoError(t, err)
	SortRecords(records)
	require.Len(t, records, 2)
	assert.Equal(t, "c1", records[0].CourseID)
	assert.Equal(t, []string{"l1", "q1"}, records[0].CompletedItems.Slice())
	assert.Equal(t, DefaultModule, records[0].CurrentModule)
	assert.True(t, records[0].LastUpdated.Equal(t1))
	assert.Equal(t, "c2", records[1].CourseID)
	assert.Equal(t, 0, records[1].CompletedItems.Len())

	require.NoError(t, repo.Delete(ctx, "alice", "c1"))
	require.NoError(t, repo.Delete(ctx, "alice", "c1"))
	records, err = repo.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "c2", records[0].CourseID)

	records, err = repo.ListByUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"x"}, records[0].CompletedItems.Slice())

	// concurrent merges straight into the repository
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 16; i++ {
		id := strconv.Itoa(i)
		g.Go(func() error {
			return repo.Merge(gctx, "carol", Incoming{CourseID: "c1", CompletedItems: NewItemSet(id)}, t1)
		})
	}
	require.NoError(t, g.Wait())
	records, err = repo.ListByUser(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 16, records[0].CompletedItems.Len())

	assert.NoError(t, repo.Ping(ctx))
}

func TestMemoryRepository(t *testing.T) {
	testRepository(t, NewMemoryRepository(8))
}

func TestMemoryRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := NewMemoryRepository(1)
	assert.ErrorIs(t, repo.Merge(ctx, "alice", Incoming{CourseID: "c1"}, t0), context.Canceled)
	assert.ErrorIs(t, repo.Delete(ctx, "alice", "c1"), context.Canceled)
}

func TestSQLRepository_SQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := driver.GetDBConnection(&driver.DBConfig{Driver: "sqlite", Schema: filepath.Join(t.TempDir(), "progress.db")})
	require.NoError(t, err)
	defer conn.Close(ctx)

	repo := NewSQLRepository(conn)
	require.NoError(t, repo.Migrate(ctx))
	// migrations are repeatable
	require.NoError(t, repo.Migrate(ctx))

	testRepository(t, repo)
}

func TestSQLRepository_Queries(t *testing.T) {
	assert.Contains(t, upsertHeaderQuery("mysql"), "ON DUPLICATE KEY UPDATE")
	assert.Contains(t, upsertHeaderQuery("postgres"), "ON CONFLICT (username, course_id)")
	assert.True(t, strings.HasPrefix(insertItemQuery("mysql"), "INSERT IGNORE"))
	assert.Contains(t, insertItemQuery("sqlite"), "ON CONFLICT DO NOTHING")
}

// set PROGRESS_TEST_REDIS_ADDR=host:port to run against a real server
func TestRedisRepository(t *testing.T) {
	addr := os.Getenv("PROGRESS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PROGRESS_TEST_REDIS_ADDR not set")
	}
	parts := strings.SplitN(addr, ":", 2)
	require.Len(t, parts, 2)
	port, err := strconv.Atoi(parts[1])
	require.NoError(t, err)

	client := driver.NewRedisClient(parts[0], port, "", 15)
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Conn().FlushDB(ctx).Err())

	testRepository(t, NewRedisRepository(client.Conn()))
}

func TestRedisKeys(t *testing.T) {
	assert.Equal(t, "progress:{alice}:courses", coursesKey("alice"))
	assert.Equal(t, "progress:{alice}:c1:items", itemsKey("alice", "c1"))
	assert.Equal(t, fmt.Sprintf("progress:{%s}:%s:meta", "a", "b"), metaKey("a", "b"))
}
