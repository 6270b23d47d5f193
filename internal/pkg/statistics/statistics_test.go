package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/trendit-hq/trendit/app/models"
)

func newTestRecorder(t *testing.T, rate int) (*Recorder, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRecorder(client, rate), mr
}

func TestObserveAndEstimateUnsampled(t *testing.T) {
	rec, _ := newTestRecorder(t, 1)
	ctx := context.Background()
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec.Observe(ctx, models.UsageTypeAPICalls, now)
	}

	got, err := rec.Estimate(ctx, models.UsageTypeAPICalls, now)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if got != 5 {
		t.Fatalf("estimate = %d, want 5", got)
	}
}

func TestObserveScalesBySampleRate(t *testing.T) {
	rec, mr := newTestRecorder(t, 5)
	ctx := context.Background()
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	// Force one recorded sample regardless of the dice.
	for i := 0; i < 200 && !mr.Exists(UsageKey(models.UsageTypeExports, now)); i++ {
		rec.Observe(ctx, models.UsageTypeExports, now)
	}

	got, err := rec.Estimate(ctx, models.UsageTypeExports, now)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if got == 0 || got%5 != 0 {
		t.Fatalf("estimate = %d, want a positive multiple of the sample rate", got)
	}
}

func TestEstimateMissingBucketIsZero(t *testing.T) {
	rec, _ := newTestRecorder(t, 1)

	got, err := rec.Estimate(context.Background(), models.UsageTypeSentiment, time.Now())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if got != 0 {
		t.Fatalf("estimate = %d, want 0", got)
	}
}

func TestObserveIgnoresUnknownUsageType(t *testing.T) {
	rec, mr := newTestRecorder(t, 1)

	rec.Observe(context.Background(), "page_views", time.Now())
	if len(mr.Keys()) != 0 {
		t.Fatalf("unexpected keys written: %v", mr.Keys())
	}
}

func TestSnapshotCoversAllUsageTypes(t *testing.T) {
	rec, _ := newTestRecorder(t, 1)
	ctx := context.Background()
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	rec.Observe(ctx, models.UsageTypeAPICalls, now)
	rec.Observe(ctx, models.UsageTypeAPICalls, now)
	rec.Observe(ctx, models.UsageTypeExports, now)

	snap, err := rec.Snapshot(ctx, now)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap[models.UsageTypeAPICalls] != 2 || snap[models.UsageTypeExports] != 1 || snap[models.UsageTypeSentiment] != 0 {
		t.Fatalf("unexpected snapshot: %v", snap)
	}
}

func TestUsageKeyBucketsByMonth(t *testing.T) {
	aug := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	sep := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	if UsageKey(models.UsageTypeAPICalls, aug) == UsageKey(models.UsageTypeAPICalls, sep) {
		t.Fatalf("months must map to distinct buckets")
	}
	if UsageKey(models.UsageTypeAPICalls, aug) != "stats:usage:api_calls:2025-08" {
		t.Fatalf("unexpected key: %s", UsageKey(models.UsageTypeAPICalls, aug))
	}
}
