//go:build integration

package oracle_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promisetracker/internal/oracle"
	"promisetracker/pkg/testutil/containers"
)

func TestRedisQuota_SharedWindow(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	a := oracle.NewRedisQuota(rc.Client.Client, "test:quota", 3, time.Minute)
	b := oracle.NewRedisQuota(rc.Client.Client, "test:quota", 3, time.Minute)
	oracle.SetQuotaClock(a, clock)
	oracle.SetQuotaClock(b, clock)

	require.NoError(t, a.Acquire(ctx))
	require.NoError(t, b.Acquire(ctx))
	require.NoError(t, a.Acquire(ctx))

	err := b.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, oracle.IsRateLimited(err))

	now = now.Add(time.Minute)
	require.NoError(t, a.Acquire(ctx), "next window starts fresh")

	ttl, err := rc.Client.TTL(ctx, "test:quota:"+bucketOf(now, time.Minute)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisQuota_SeparatePrefixes(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	clock := func() time.Time { return now }
	staging := oracle.NewRedisQuota(rc.Client.Client, "staging:quota", 1, time.Minute)
	prod := oracle.NewRedisQuota(rc.Client.Client, "prod:quota", 1, time.Minute)
	oracle.SetQuotaClock(staging, clock)
	oracle.SetQuotaClock(prod, clock)

	require.NoError(t, staging.Acquire(ctx))
	require.NoError(t, prod.Acquire(ctx), "prefixes do not share a window")
	assert.True(t, oracle.IsRateLimited(staging.Acquire(ctx)))
}

func bucketOf(t time.Time, window time.Duration) string {
	return strconv.FormatInt(t.UnixNano()/int64(window), 10)
}
