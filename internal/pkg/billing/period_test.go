package billing

import (
	"testing"
	"time"

	"github.com/trendit-hq/trendit/app/models"
)

func TestResolvePeriodCalendarMonthForFreeAccount(t *testing.T) {
	now := time.Date(2025, 8, 15, 12, 30, 0, 0, time.UTC)

	period, stale := ResolvePeriod(nil, now)
	if stale {
		t.Fatalf("calendar fallback must not be flagged stale")
	}
	wantStart := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	if !period.Start.Equal(wantStart) || !period.End.Equal(wantEnd) {
		t.Fatalf("period = [%v, %v), want [%v, %v)", period.Start, period.End, wantStart, wantEnd)
	}
}

func TestResolvePeriodYearRollover(t *testing.T) {
	now := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

	period, _ := ResolvePeriod(nil, now)
	if period.End.Year() != 2026 || period.End.Month() != time.January {
		t.Fatalf("december period must end in january: %v", period.End)
	}
}

func TestResolvePeriodUsesSubscriptionBounds(t *testing.T) {
	start := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub := &models.Subscription{
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}

	now := time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)
	period, stale := ResolvePeriod(sub, now)
	if stale {
		t.Fatalf("in-window bounds must not be stale")
	}
	if !period.Start.Equal(start) || !period.End.Equal(end) {
		t.Fatalf("period = [%v, %v), want subscription bounds", period.Start, period.End)
	}
}

func TestResolvePeriodStaleBoundsFallBack(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub := &models.Subscription{
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}

	// End already elapsed and no newer webhook has arrived.
	now := time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)
	period, stale := ResolvePeriod(sub, now)
	if !stale {
		t.Fatalf("elapsed bounds must be flagged stale")
	}
	if !period.Start.Equal(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("stale bounds must fall back to calendar month, got %v", period.Start)
	}
}

func TestResolvePeriodNonEntitlingSubscription(t *testing.T) {
	start := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub := &models.Subscription{
		Status:             models.SubscriptionStatusCanceled,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}

	now := time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)
	period, _ := ResolvePeriod(sub, now)
	if !period.Start.Equal(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("canceled subscription must use calendar month, got %v", period.Start)
	}
}

func TestResolvePeriodIsDeterministic(t *testing.T) {
	start := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub := &models.Subscription{
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}
	now := time.Date(2025, 8, 20, 9, 41, 0, 0, time.UTC)

	a, aStale := ResolvePeriod(sub, now)
	b, bStale := ResolvePeriod(sub, now)
	if a != b || aStale != bStale {
		t.Fatalf("ResolvePeriod is not deterministic: %+v vs %+v", a, b)
	}
}
