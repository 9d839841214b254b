package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// checkAndRecordScript prunes the key's usage log to the sliding window,
// counts what is left, then records the new event, all inside one script so
// two requests racing at the limit boundary cannot both observe a stale
// count. The event is recorded even for rejected calls, keeping bursts
// visible in the log.
var checkAndRecordScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local member = ARGV[3]
local ttl_ms = tonumber(ARGV[4])
redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
local count = redis.call('ZCARD', key)
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, ttl_ms)
return count
`)

// RateLimiter is a sliding-window counter over a per-key usage log in redis.
type RateLimiter struct {
	client      redis.UniversalClient
	prefix      string
	window      time.Duration
	maxRequests int
	retention   time.Duration
	now         func() time.Time
}

func NewRateLimiter(client redis.UniversalClient, prefix string, window time.Duration, maxRequests int, retention time.Duration) *RateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if retention < window {
		retention = window
	}
	return &RateLimiter{
		client:      client,
		prefix:      prefix,
		window:      window,
		maxRequests: maxRequests,
		retention:   retention,
		now:         time.Now,
	}
}

func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// CheckAndRecord reports whether the request identified by key is within the
// budget. The usage event is recorded unconditionally; the decision is based
// on the count before this event.
func (l *RateLimiter) CheckAndRecord(ctx context.Context, key string) (bool, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	windowStartMs := now.Add(-l.window).UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	count, err := checkAndRecordScript.Run(ctx, l.client,
		[]string{l.usageKey(key)},
		nowMs, windowStartMs, member, l.retention.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return count < int64(l.maxRequests), nil
}

// PurgeOlderThan trims usage logs across all keys. Redis key TTLs already
// bound the data; this keeps long-lived hot keys from accumulating history
// beyond the retention window.
func (l *RateLimiter) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	iter := l.client.Scan(ctx, 0, l.prefix+":*", 256).Iterator()
	for iter.Next(ctx) {
		removed, err := l.client.ZRemRangeByScore(ctx, iter.Val(), "0", fmt.Sprintf("%d", cutoff.UnixMilli())).Result()
		if err != nil {
			return purged, fmt.Errorf("trim usage log %s: %w", iter.Val(), err)
		}
		purged += removed
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("scan usage logs: %w", err)
	}
	return purged, nil
}

func (l *RateLimiter) usageKey(key string) string {
	return l.prefix + ":" + key
}
