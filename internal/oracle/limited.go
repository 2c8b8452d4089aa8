package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Quota admits one oracle call or returns a rate_limited *Error.
type Quota interface {
	Acquire(ctx context.Context) error
}

// Limited gates every call through a quota before reaching the wrapped oracle.
type Limited struct {
	next  Oracle
	quota Quota
}

func NewLimited(next Oracle, quota Quota) *Limited {
	return &Limited{next: next, quota: quota}
}

func (l *Limited) Score(ctx context.Context, evidenceText, promiseText string) (Verdict, error) {
	if err := l.quota.Acquire(ctx); err != nil {
		return Verdict{}, err
	}
	return l.next.Score(ctx, evidenceText, promiseText)
}

// LocalQuota spreads calls evenly over the window within one process. A call
// that cannot be admitted within maxWait is reported as rate limited.
type LocalQuota struct {
	limiter *rate.Limiter
	maxWait time.Duration
}

// NewLocalQuota allows requests calls per window with a burst of burst.
func NewLocalQuota(requests int, window time.Duration, burst int, maxWait time.Duration) *LocalQuota {
	if burst <= 0 {
		burst = 1
	}
	return &LocalQuota{
		limiter: rate.NewLimiter(rate.Limit(float64(requests)/window.Seconds()), burst),
		maxWait: maxWait,
	}
}

func (q *LocalQuota) Acquire(ctx context.Context) error {
	r := q.limiter.Reserve()
	if !r.OK() {
		return NewError(CategoryRateLimited, "request exceeds limiter burst", nil)
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	if q.maxWait > 0 && delay > q.maxWait {
		r.Cancel()
		return NewError(CategoryRateLimited, fmt.Sprintf("next slot in %s", delay.Round(time.Millisecond)), nil)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return NewError(CategoryTimeout, "waiting for rate limiter", ctx.Err())
	}
}

// RedisQuota is a fixed-window counter shared by every process pointed at the
// same Redis, so concurrent batch runs draw on one provider quota.
type RedisQuota struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedisQuota(client *redis.Client, prefix string, limit int, window time.Duration) *RedisQuota {
	if prefix == "" {
		prefix = "oracle:quota"
	}
	return &RedisQuota{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

func (q *RedisQuota) Acquire(ctx context.Context) error {
	bucket := q.now().UnixNano() / int64(q.window)
	key := fmt.Sprintf("%s:%d", q.prefix, bucket)

	pipe := q.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, q.window)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return NewError(CategoryTimeout, "quota check", err)
		}
		return NewError(CategoryOutage, "quota store unavailable", err)
	}
	if incr.Val() > q.limit {
		return NewError(CategoryRateLimited, fmt.Sprintf("quota of %d per %s spent", q.limit, q.window), nil)
	}
	return nil
}
