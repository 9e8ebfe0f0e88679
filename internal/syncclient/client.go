package syncclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pot-code/learnsync/internal/progress"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ClientOption retry policy and logging of a Client
type ClientOption struct {
	MaxTries        uint          // attempts per push or pull, including the first one
	InitialInterval time.Duration // first backoff delay
	MaxInterval     time.Duration // backoff delay cap
	Logger          *zap.Logger
}

// Client sync client of one profile.
//
// Pushes are not serialized against each other; responses may be applied in any order since
// reconciling is a union.
type Client struct {
	Remote Remote
	Cache  *Cache
	option ClientOption
	logger *zap.Logger
	group  singleflight.Group
}

// NewClient ...
func NewClient(Remote Remote, Cache *Cache, option *ClientOption) *Client {
	opt := ClientOption{
		MaxTries:        4,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
	if option != nil {
		if option.MaxTries > 0 {
			opt.MaxTries = option.MaxTries
		}
		if option.InitialInterval > 0 {
			opt.InitialInterval = option.InitialInterval
		}
		if option.MaxInterval > 0 {
			opt.MaxInterval = option.MaxInterval
		}
		opt.Logger = option.Logger
	}
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		Remote: Remote,
		Cache:  Cache,
		option: opt,
		logger: logger.With(zap.String("client.profile", Cache.Profile())),
	}
}

// normalizeCourse trims courseID the way the server does
func normalizeCourse(courseID string) (string, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" || len(courseID) > progress.MaxCourseIDLength {
		return "", progress.ErrInvalidCourse
	}
	return courseID, nil
}

// PullAndReconcile fetches the authoritative records and unions them into the cache.
// An empty courseID reconciles every course. Concurrent pulls for the same user share one fetch,
// which runs detached from any single caller's cancellation.
func (c *Client) PullAndReconcile(ctx context.Context, username, courseID string) ([]*LocalRecord, error) {
	if courseID != "" {
		var err error
		if courseID, err = normalizeCourse(courseID); err != nil {
			return nil, err
		}
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(username, func() (interface{}, error) {
		return c.retry(shared, "pull", func() ([]*progress.CourseProgressRecord, error) {
			return c.Remote.Fetch(shared, username)
		})
	})
	var records []*progress.CourseProgressRecord
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		records = res.Val.([]*progress.CourseProgressRecord)
	}

	if courseID == "" {
		c.warnStorage(c.Cache.ReconcileFull(ctx, records))
		return c.Cache.Snapshot(), nil
	}
	if server := progress.FindRecord(records, courseID); server != nil {
		local, err := c.Cache.Reconcile(ctx, server)
		c.warnStorage(err)
		return []*LocalRecord{local}, nil
	}
	c.warnStorage(c.Cache.MarkAbsent(ctx, courseID))
	if local, ok := c.Cache.Get(courseID); ok {
		return []*LocalRecord{local}, nil
	}
	return []*LocalRecord{}, nil
}

// PushSync marks items completed locally, then sends the full local set of courseID.
// On failure the items stay in the cache with Pending set and the typed error is returned
// along with the local record. Nothing happens, and the record is nil, when no valid item
// is given for a course the cache does not hold.
func (c *Client) PushSync(ctx context.Context, username, courseID string, items ...string) (*LocalRecord, error) {
	courseID, err := normalizeCourse(courseID)
	if err != nil {
		return nil, err
	}
	incoming, dropped := progress.SanitizeStrings(items)
	if dropped > 0 {
		c.logger.Debug("dropped malformed item ids", zap.String("progress.course_id", courseID), zap.Int("progress.dropped", dropped))
	}
	if incoming.Len() == 0 {
		if _, ok := c.Cache.Get(courseID); !ok {
			return nil, nil
		}
	}

	local, err := c.Cache.MarkCompleted(ctx, courseID, incoming.Slice()...)
	c.warnStorage(err)

	records, err := c.retry(ctx, "push", func() ([]*progress.CourseProgressRecord, error) {
		return c.Remote.SyncMerge(ctx, username, courseID, local.CompletedItems)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrUnknownOutcome) {
			err = fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
		}
		c.warnStorage(c.Cache.MarkFailed(ctx, courseID, err))
		c.logger.Warn("push failed",
			zap.String("user.name", username),
			zap.String("progress.course_id", courseID),
			zap.Error(err))
		failed, _ := c.Cache.Get(courseID)
		return failed, err
	}

	// a reset from elsewhere may have raced this push, courses missing from the reply turn pending
	c.warnStorage(c.Cache.ReconcileFull(ctx, records))
	confirmed, _ := c.Cache.Get(courseID)
	return confirmed, nil
}

// RequestReset clears the local record at once and asks the server to do the same, without retrying.
// A server failure is reported as a *ResetWarning; the local clear stands.
func (c *Client) RequestReset(ctx context.Context, username, courseID string) error {
	courseID, err := normalizeCourse(courseID)
	if err != nil {
		return err
	}
	c.warnStorage(c.Cache.Clear(ctx, courseID))

	records, err := c.Remote.Reset(ctx, username, courseID)
	if err != nil {
		c.logger.Warn("remote reset failed",
			zap.String("user.name", username),
			zap.String("progress.course_id", courseID),
			zap.Error(err))
		return &ResetWarning{CourseID: courseID, Err: err}
	}
	c.warnStorage(c.Cache.ReconcileFull(ctx, records))
	return nil
}

// Resend pushes every pending course again
func (c *Client) Resend(ctx context.Context, username string) error {
	var errs []error
	for _, courseID := range c.Cache.PendingCourses() {
		if _, err := c.PushSync(ctx, username, courseID); err != nil {
			errs = append(errs, fmt.Errorf("course %s: %w", courseID, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.option.InitialInterval
	b.MaxInterval = c.option.MaxInterval
	return b
}

// retry runs fn until it succeeds, fails permanently or runs out of tries.
// When ctx ends while waiting the last remote error is returned instead of the context error.
func (c *Client) retry(ctx context.Context, op string, fn func() ([]*progress.CourseProgressRecord, error)) ([]*progress.CourseProgressRecord, error) {
	var last error
	records, err := backoff.Retry(ctx, func() ([]*progress.CourseProgressRecord, error) {
		records, err := fn()
		if err != nil {
			last = err
			if !retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return records, nil
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.option.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("retrying", zap.String("sync.op", op), zap.Duration("sync.backoff", next), zap.Error(err))
		}),
	)
	if err != nil && last != nil && !errors.Is(err, last) {
		return nil, last
	}
	return records, err
}

func (c *Client) warnStorage(err error) {
	if err != nil {
		c.logger.Warn("local storage write failed", zap.Error(err))
	}
}
