package statistics

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/trendit-hq/trendit/app/models"
	"github.com/trendit-hq/trendit/internal/pkg/cache"
	"github.com/trendit-hq/trendit/internal/pkg/env"
)

const (
	// DefaultSampleRate records one observation out of this many. Overridable
	// via USAGE_SAMPLE_RATE.
	DefaultSampleRate = 10

	// counterTTL keeps roughly three monthly buckets around.
	counterTTL = 90 * 24 * time.Hour

	usageKeyFormat = "stats:usage:%s:%s" // usage type, YYYY-MM
)

// Recorder keeps an approximate platform-wide usage projection in the
// counter store for dashboards. The projection is sampled: one in rate
// observations increments the bucket by rate, so reads stay unbiased.
// Quota enforcement never consults these numbers; the durable ledger does
// exact sums.
type Recorder struct {
	client *redis.Client
	rate   int
}

// NewRecorder creates a recorder with the given sample rate. A rate below
// one falls back to the default.
func NewRecorder(client *redis.Client, rate int) *Recorder {
	if rate < 1 {
		rate = DefaultSampleRate
	}
	return &Recorder{client: client, rate: rate}
}

// NewRecorderFromEnv creates a recorder over the shared cache client with
// the rate taken from the environment.
func NewRecorderFromEnv() *Recorder {
	rate, err := strconv.Atoi(env.GetEnv("USAGE_SAMPLE_RATE", strconv.Itoa(DefaultSampleRate)))
	if err != nil {
		rate = DefaultSampleRate
	}
	return NewRecorder(cache.GetClient(), rate)
}

// Observe counts one admitted request into the monthly bucket, subject to
// sampling. Store failures are logged and dropped; an approximate counter
// is never worth failing a request over.
func (r *Recorder) Observe(ctx context.Context, usageType string, now time.Time) {
	if r == nil || r.client == nil || !models.KnownUsageType(usageType) {
		return
	}
	if r.rate > 1 && rand.Intn(r.rate) != 0 {
		return
	}

	key := UsageKey(usageType, now)
	pipe := r.client.Pipeline()
	pipe.IncrBy(ctx, key, int64(r.rate))
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("usage projection increment failed for %s: %v", key, err)
	}
}

// Estimate returns the projected count for one usage type and month. A
// missing bucket reads as zero.
func (r *Recorder) Estimate(ctx context.Context, usageType string, month time.Time) (int, error) {
	val, err := r.client.Get(ctx, UsageKey(usageType, month)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Snapshot returns the projected counts for every tracked usage type.
func (r *Recorder) Snapshot(ctx context.Context, month time.Time) (map[string]int, error) {
	out := make(map[string]int, 3)
	for _, ut := range []string{models.UsageTypeAPICalls, models.UsageTypeExports, models.UsageTypeSentiment} {
		n, err := r.Estimate(ctx, ut, month)
		if err != nil {
			return nil, err
		}
		out[ut] = n
	}
	return out, nil
}

// SampleRate returns the configured 1-in-N rate.
func (r *Recorder) SampleRate() int {
	return r.rate
}

// UsageKey is the monthly projection bucket for one usage type.
func UsageKey(usageType string, month time.Time) string {
	return fmt.Sprintf(usageKeyFormat, usageType, month.UTC().Format("2006-01"))
}
