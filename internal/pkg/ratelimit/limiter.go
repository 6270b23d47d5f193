package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Window is the trailing span a burst counter covers.
	Window = 5 * time.Minute

	// DefaultLimit caps requests per (account, endpoint class) within Window.
	DefaultLimit = 20

	burstKeyPrefix = "burst:"
)

// Result is one admission verdict from the burst limiter.
type Result struct {
	Allowed    bool
	Current    int
	Limit      int
	RetryAfter time.Duration
}

// slideScript drops expired entries, counts the window and conditionally
// inserts the new request in one atomic step. Two concurrent requests for
// the same key can therefore never both claim the last free slot.
//
// Returns {allowed, count, retry_after_ms}.
var slideScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	return {1, count + 1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
	retry = tonumber(oldest[2]) + window - now
end
return {0, count, retry}
`)

// Limiter counts requests per (account, endpoint class) in a sliding
// 5-minute window backed by the shared counter store. When the store is
// unreachable it degrades to the in-process fallback, which is accurate per
// instance but not consistent across instances; the monthly ledger remains
// the durable backstop (fail-open by policy).
type Limiter struct {
	client   *redis.Client
	fallback *MemoryLimiter
	limit    int
}

// NewLimiter creates a limiter over the given store client. The fallback is
// owned by the caller and shared for the process lifetime.
func NewLimiter(client *redis.Client, fallback *MemoryLimiter, limit int) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Limiter{client: client, fallback: fallback, limit: limit}
}

// Allow reports whether one more request for the key fits into the trailing
// window, consuming a slot when it does.
func (l *Limiter) Allow(ctx context.Context, accountID uint, endpointClass string, now time.Time) Result {
	if l.client == nil {
		return l.fallback.Allow(accountID, endpointClass, now, l.limit)
	}

	key := BurstKey(accountID, endpointClass)
	member := fmt.Sprintf("%d:%s", now.UnixNano(), uuid.NewString()[:8])

	vals, err := slideScript.Run(ctx, l.client,
		[]string{key},
		now.UnixMilli(),
		Window.Milliseconds(),
		l.limit,
		member,
	).Int64Slice()
	if err != nil || len(vals) != 3 {
		log.Warnf("burst limiter store unavailable for %s, using in-process fallback: %v", key, err)
		return l.fallback.Allow(accountID, endpointClass, now, l.limit)
	}

	return Result{
		Allowed:    vals[0] == 1,
		Current:    int(vals[1]),
		Limit:      l.limit,
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}
}

// Limit returns the configured per-window cap.
func (l *Limiter) Limit() int {
	return l.limit
}

// BurstKey is the counter store key for one (account, endpoint class) pair.
func BurstKey(accountID uint, endpointClass string) string {
	return fmt.Sprintf("%s%d:%s", burstKeyPrefix, accountID, endpointClass)
}
