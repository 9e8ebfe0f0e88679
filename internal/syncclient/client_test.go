package syncclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pot-code/learnsync/internal/infrastructure/uuid"
	"github.com/pot-code/learnsync/internal/progress"
	"github.com/pot-code/learnsync/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// flakyRemote fails the next failures calls of each kind with err
type flakyRemote struct {
	Remote
	mu       sync.Mutex
	failures int
	err      error
	calls    int32
	resets   int32
}

func (f *flakyRemote) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return nil
}

func (f *flakyRemote) SyncMerge(ctx context.Context, username, courseID string, items progress.ItemSet) ([]*progress.CourseProgressRecord, error) {
	atomic.AddInt32(&f.calls, 1)
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Remote.SyncMerge(ctx, username, courseID, items)
}

func (f *flakyRemote) Fetch(ctx context.Context, username string) ([]*progress.CourseProgressRecord, error) {
	atomic.AddInt32(&f.calls, 1)
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Remote.Fetch(ctx, username)
}

func (f *flakyRemote) Reset(ctx context.Context, username, courseID string) ([]*progress.CourseProgressRecord, error) {
	atomic.AddInt32(&f.resets, 1)
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Remote.Reset(ctx, username, courseID)
}

func newServer(t *testing.T) progress.UseCase {
	users := user.NewUserUseCase(user.NewUserMemory(), uuid.NewNanoIDGenerator(12))
	require.NoError(t, users.Seed(context.Background(), []string{"alice"}))
	return progress.NewProgressUseCase(progress.NewMemoryRepository(4), users, progress.NewKeyLock(8), nil)
}

func newClient(t *testing.T, remote Remote, profile string) *Client {
	cache, err := OpenCache(context.Background(), NewMemoryStorage(), profile)
	require.NoError(t, err)
	return NewClient(remote, cache, &ClientOption{
		MaxTries:        3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
}

func TestClient_TwoDevicesConverge(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	laptop := newClient(t, server, "laptop")
	phone := newClient(t, server, "phone")

	_, err := laptop.PushSync(ctx, "alice", "c1", "l1")
	require.NoError(t, err)
	// the phone never pulled before pushing
	local, err := phone.PushSync(ctx, "alice", "c1", "q1")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "q1"}, local.CompletedItems.Slice())
	assert.False(t, local.Pending)

	records, err := laptop.PullAndReconcile(ctx, "alice", "c1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"l1", "q1"}, records[0].CompletedItems.Slice())
	assert.False(t, records[0].Pending)
}

func TestClient_PullFreshUser(t *testing.T) {
	client := newClient(t, newServer(t), "laptop")
	records, err := client.PullAndReconcile(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = client.PullAndReconcile(context.Background(), "alice", "c9")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClient_PullKeepsUnconfirmedItems(t *testing.T) {
	ctx := context.Background()
	remote := &flakyRemote{Remote: newServer(t), failures: 3, err: progress.ErrTransientStore}
	client := newClient(t, remote, "laptop")

	_, err := client.PushSync(ctx, "alice", "c1", "l1")
	require.ErrorIs(t, err, progress.ErrTransientStore)

	records, err := client.PullAndReconcile(ctx, "alice", "c1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"l1"}, records[0].CompletedItems.Slice())
	assert.True(t, records[0].Pending)
}

func TestClient_PushRetriesTransient(t *testing.T) {
	remote := &flakyRemote{Remote: newServer(t), failures: 2, err: fmt.Errorf("%w: db down", progress.ErrTransientStore)}
	client := newClient(t, remote, "laptop")

	local, err := client.PushSync(context.Background(), "alice", "c1", "l1")
	require.NoError(t, err)
	assert.False(t, local.Pending)
	assert.Equal(t, int32(3), atomic.LoadInt32(&remote.calls))
}

func TestClient_PushFailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	remote := &flakyRemote{Remote: newServer(t), failures: 10, err: progress.ErrTransientStore}
	client := newClient(t, remote, "laptop")

	local, err := client.PushSync(ctx, "alice", "c1", "l1", "l2")
	require.ErrorIs(t, err, progress.ErrTransientStore)
	assert.Equal(t, int32(3), atomic.LoadInt32(&remote.calls))
	require.NotNil(t, local)
	assert.True(t, local.Pending)
	assert.Equal(t, []string{"l1", "l2"}, local.CompletedItems.Slice())
	assert.NotEmpty(t, local.LastError)

	// the server comes back and a resend confirms everything
	remote.mu.Lock()
	remote.failures = 0
	remote.mu.Unlock()
	require.NoError(t, client.Resend(ctx, "alice"))
	local, _ = client.Cache.Get("c1")
	assert.False(t, local.Pending)
	assert.Empty(t, client.Cache.PendingCourses())
}

func TestClient_UnknownOutcomeRetryIsSafe(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	// the first attempt is applied, but the response is lost
	remote := &lostResponseRemote{Remote: server}
	client := newClient(t, remote, "laptop")

	local, err := client.PushSync(ctx, "alice", "c1", "l1")
	require.NoError(t, err)
	assert.False(t, local.Pending)

	records, err := server.Fetch(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"l1"}, records[0].CompletedItems.Slice())
}

type lostResponseRemote struct {
	Remote
	lost int32
}

func (l *lostResponseRemote) SyncMerge(ctx context.Context, username, courseID string, items progress.ItemSet) ([]*progress.CourseProgressRecord, error) {
	records, err := l.Remote.SyncMerge(ctx, username, courseID, items)
	if err == nil && atomic.CompareAndSwapInt32(&l.lost, 0, 1) {
		return nil, ErrUnknownOutcome
	}
	return records, err
}

func TestClient_PushUnknownUserIsPermanent(t *testing.T) {
	remote := &flakyRemote{Remote: newServer(t)}
	client := newClient(t, remote, "laptop")

	local, err := client.PushSync(context.Background(), "mallory", "c1", "l1")
	require.ErrorIs(t, err, progress.ErrUserNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&remote.calls))
	assert.True(t, local.Pending)
}

func TestClient_ConcurrentPushes(t *testing.T) {
	server := newServer(t)
	client := newClient(t, server, "laptop")

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("l%02d", i)
		g.Go(func() error {
			_, err := client.PushSync(ctx, "alice", "c1", id)
			return err
		})
	}
	require.NoError(t, g.Wait())

	// responses may land out of order, a pull settles the pending flag
	_, err := client.PullAndReconcile(context.Background(), "alice", "c1")
	require.NoError(t, err)
	local, _ := client.Cache.Get("c1")
	assert.Equal(t, 20, local.CompletedItems.Len())
	assert.False(t, local.Pending)
	records, err := server.Fetch(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 20, records[0].CompletedItems.Len())
}

func TestClient_RequestReset(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	client := newClient(t, server, "laptop")

	_, err := client.PushSync(ctx, "alice", "c1", "l1")
	require.NoError(t, err)
	require.NoError(t, client.RequestReset(ctx, "alice", "c1"))

	_, ok := client.Cache.Get("c1")
	assert.False(t, ok)
	records, err := server.Fetch(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClient_RequestResetWarning(t *testing.T) {
	ctx := context.Background()
	remote := &flakyRemote{Remote: newServer(t)}
	client := newClient(t, remote, "laptop")

	_, err := client.PushSync(ctx, "alice", "c1", "l1")
	require.NoError(t, err)

	remote.mu.Lock()
	remote.failures, remote.err = 5, progress.ErrTransientStore
	remote.mu.Unlock()
	err = client.RequestReset(ctx, "alice", "c1")

	var warning *ResetWarning
	require.True(t, errors.As(err, &warning))
	assert.Equal(t, "c1", warning.CourseID)
	assert.ErrorIs(t, err, progress.ErrTransientStore)
	assert.Equal(t, int32(1), atomic.LoadInt32(&remote.resets), "reset is not retried")

	_, ok := client.Cache.Get("c1")
	assert.False(t, ok, "local clear stands")
}

func TestClient_PullAllAfterRemoteReset(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	laptop := newClient(t, server, "laptop")
	phone := newClient(t, server, "phone")

	local, err := laptop.PushSync(ctx, "alice", "c1", "l1")
	require.NoError(t, err)
	require.False(t, local.Pending)
	require.NoError(t, phone.RequestReset(ctx, "alice", "c1"))

	records, err := laptop.PullAndReconcile(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"l1"}, records[0].CompletedItems.Slice())
	assert.True(t, records[0].Pending, "the server no longer confirms c1")
	assert.Equal(t, []string{"c1"}, laptop.Cache.PendingCourses())

	require.NoError(t, laptop.Resend(ctx, "alice"))
	remote, err := server.Fetch(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, []string{"l1"}, remote[0].CompletedItems.Slice())
}

func TestClient_CourseIDIsNormalized(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, newServer(t), "laptop")

	local, err := client.PushSync(ctx, "alice", " c1 ", "l1")
	require.NoError(t, err)
	assert.Equal(t, "c1", local.CourseID)
	assert.False(t, local.Pending)
	assert.Len(t, client.Cache.Snapshot(), 1)
	assert.Empty(t, client.Cache.PendingCourses())

	_, err = client.PushSync(ctx, "alice", "   ", "l1")
	assert.ErrorIs(t, err, progress.ErrInvalidCourse)
	_, err = client.PushSync(ctx, "alice", strings.Repeat("c", progress.MaxCourseIDLength+1), "l1")
	assert.ErrorIs(t, err, progress.ErrInvalidCourse)
	assert.ErrorIs(t, client.RequestReset(ctx, "alice", ""), progress.ErrInvalidCourse)
	assert.Len(t, client.Cache.Snapshot(), 1)

	require.NoError(t, client.RequestReset(ctx, "alice", "c1 "))
	assert.Empty(t, client.Cache.Snapshot())
}

func TestClient_PushWithoutValidItems(t *testing.T) {
	ctx := context.Background()
	server := newServer(t)
	remote := &flakyRemote{Remote: server}
	client := newClient(t, remote, "laptop")

	local, err := client.PushSync(ctx, "alice", "c9", "", " ")
	require.NoError(t, err)
	assert.Nil(t, local)
	assert.Equal(t, int32(0), atomic.LoadInt32(&remote.calls))
	_, ok := client.Cache.Get("c9")
	assert.False(t, ok)
	records, err := server.Fetch(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, records)

	// an existing course is still pushed, which confirms what it holds
	_, err = client.PushSync(ctx, "alice", "c1", "l1")
	require.NoError(t, err)
	local, err = client.PushSync(ctx, "alice", "c1", " ")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, local.CompletedItems.Slice())
	assert.Equal(t, int32(2), atomic.LoadInt32(&remote.calls))
}

// gatedRemote holds every fetch until release is closed
type gatedRemote struct {
	Remote
	fetches int32
	started chan struct{}
	release chan struct{}
}

func (g *gatedRemote) Fetch(ctx context.Context, username string) ([]*progress.CourseProgressRecord, error) {
	if atomic.AddInt32(&g.fetches, 1) == 1 {
		close(g.started)
	}
	<-g.release
	return g.Remote.Fetch(ctx, username)
}

func TestClient_SharedPullOutlivesCancelledCaller(t *testing.T) {
	server := newServer(t)
	_, err := server.SyncMerge(context.Background(), "alice", "c1", progress.NewItemSet("l1"))
	require.NoError(t, err)
	remote := &gatedRemote{Remote: server, started: make(chan struct{}), release: make(chan struct{})}
	client := newClient(t, remote, "laptop")

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.PullAndReconcile(first, "alice", "")
		firstErr <- err
	}()
	<-remote.started

	type result struct {
		records []*LocalRecord
		err     error
	}
	second := make(chan result, 1)
	go func() {
		records, err := client.PullAndReconcile(context.Background(), "alice", "")
		second <- result{records, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(remote.release)

	res := <-second
	require.NoError(t, res.err)
	require.Len(t, res.records, 1)
	assert.Equal(t, []string{"l1"}, res.records[0].CompletedItems.Slice())
	assert.Equal(t, int32(1), atomic.LoadInt32(&remote.fetches))
}
