package oracle

import "time"

// SetQuotaClock pins the clock a RedisQuota buckets requests by.
func SetQuotaClock(q *RedisQuota, now func() time.Time) {
	q.now = now
}
