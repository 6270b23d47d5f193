package billing

import (
	"time"

	"github.com/trendit-hq/trendit/app/models"
	"github.com/trendit-hq/trendit/internal/pkg/usage"
)

// ResolvePeriod computes the billing window quota accounting uses for an
// account snapshot. Subscribed accounts use the provider-supplied cycle
// bounds; accounts without an entitling subscription, or whose bounds are
// missing or already elapsed, fall back to the UTC calendar month. The
// stale flag marks the elapsed-bounds case for operational visibility; it
// never blocks a request.
//
// Pure: the same subscription snapshot and the same now always yield the
// same window.
func ResolvePeriod(sub *models.Subscription, now time.Time) (period usage.Period, stale bool) {
	if sub != nil && sub.IsEntitling() && sub.HasPeriodBounds() {
		start, end := sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC()
		if end.After(now) {
			return usage.Period{Start: start, End: end}, false
		}
		// Bounds elapsed without a newer webhook; fall back but flag it.
		return CalendarMonth(now), true
	}
	return CalendarMonth(now), false
}

// CalendarMonth returns the UTC month window containing now.
func CalendarMonth(now time.Time) usage.Period {
	utc := now.UTC()
	start := time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
	return usage.Period{Start: start, End: start.AddDate(0, 1, 0)}
}
