package admission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/trendit-hq/trendit/app/models"
	"github.com/trendit-hq/trendit/internal/pkg/billing"
	"github.com/trendit-hq/trendit/internal/pkg/plans"
	"github.com/trendit-hq/trendit/internal/pkg/ratelimit"
	"github.com/trendit-hq/trendit/internal/pkg/usage"
)

// Denial reasons surfaced to callers. An empty reason means permitted.
const (
	ReasonMonthlyLimit = "monthly_limit"
	ReasonBurstLimit   = "burst_limit"
)

// Decision is one allow/deny verdict plus the numbers a caller needs to
// build rate-limit headers and self-serve error bodies.
type Decision struct {
	Permitted bool
	Reason    string
	Tier      string

	// Monthly quota view, valid for permitted and monthly denials.
	Used      int
	Limit     int
	Remaining int
	PeriodEnd time.Time

	// Burst view, valid for burst denials.
	RetryAfter   time.Duration
	CurrentBurst int
	BurstLimit   int
}

// Service is the single admission entry point for the API layer. It
// composes the subscription snapshot, billing period resolution, the
// monthly ledger and the burst limiter into one decision.
//
// Failure policy is asymmetric: ledger store errors abort the request,
// burst store errors degrade to the in-process fallback inside the
// limiter and never surface here.
type Service struct {
	repo    billing.Repository
	ledger  *usage.Ledger
	limiter *ratelimit.Limiter
	plans   *plans.Config
}

// New wires an admission service from its parts.
func New(repo billing.Repository, ledger *usage.Ledger, limiter *ratelimit.Limiter, cfg *plans.Config) *Service {
	return &Service{repo: repo, ledger: ledger, limiter: limiter, plans: cfg}
}

// NewFromStores builds the service from the shared DB and counter store
// handles, constructing the process-wide in-memory fallback once.
func NewFromStores(db *gorm.DB, client *redis.Client, cfg *plans.Config) *Service {
	limiter := ratelimit.NewLimiter(client, ratelimit.NewMemoryLimiter(), cfg.BurstLimit)
	return New(billing.NewRepository(db), usage.NewLedgerFromDB(db), limiter, cfg)
}

// Evaluate runs the full admission sequence for one request: resolve the
// account's tier snapshot and billing period, check the monthly quota,
// check the burst window, then durably record the usage unit with a
// transactional re-check. Denials are not errors; an error return means
// the durable store failed and the request must not proceed.
func (s *Service) Evaluate(ctx context.Context, accountID uint, endpointClass, usageType string) (Decision, error) {
	if !models.KnownUsageType(usageType) {
		return Decision{}, fmt.Errorf("unknown usage type %q", usageType)
	}
	now := time.Now().UTC()

	sub, err := s.repo.FindEntitlingSubscriptionByAccount(accountID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Decision{}, fmt.Errorf("loading subscription snapshot: %w", err)
	}

	tier, limit := s.allowance(sub, usageType)
	period, _ := billing.ResolvePeriod(sub, now)

	check, err := s.ledger.Check(ctx, accountID, usageType, period, limit)
	if err != nil {
		return Decision{}, fmt.Errorf("monthly quota check: %w", err)
	}
	if !check.Permitted {
		return monthlyDenial(tier, check, period), nil
	}

	burst := s.limiter.Allow(ctx, accountID, endpointClass, now)
	if !burst.Allowed {
		return Decision{
			Permitted:    false,
			Reason:       ReasonBurstLimit,
			Tier:         tier,
			RetryAfter:   burst.RetryAfter,
			CurrentBurst: burst.Current,
			BurstLimit:   burst.Limit,
		}, nil
	}

	rec := &models.UsageRecord{
		AccountID:          accountID,
		UsageType:          usageType,
		EndpointClass:      endpointClass,
		CostUnits:          1,
		BillingPeriodStart: period.Start,
		BillingPeriodEnd:   period.End,
	}
	if sub != nil {
		rec.SubscriptionID = &sub.ID
	}

	recorded, err := s.ledger.Record(ctx, rec, limit)
	if err != nil {
		// A concurrent request claimed the last unit between check and
		// record. The burst slot stays consumed; the denial is correct.
		if errors.Is(err, usage.ErrQuotaExceeded) {
			return monthlyDenial(tier, recorded, period), nil
		}
		return Decision{}, fmt.Errorf("recording usage: %w", err)
	}

	remaining := 0
	if limit == models.UnlimitedUsage {
		remaining = models.UnlimitedUsage
	} else if limit > recorded.Used {
		remaining = limit - recorded.Used
	}

	return Decision{
		Permitted: true,
		Tier:      tier,
		Used:      recorded.Used,
		Limit:     limit,
		Remaining: remaining,
		PeriodEnd: period.End,
	}, nil
}

// allowance resolves the effective tier and monthly limit for a request.
// An entitling subscription carries its own limit snapshot; accounts
// without one run on the free tier from the live plan config.
func (s *Service) allowance(sub *models.Subscription, usageType string) (string, int) {
	if sub == nil {
		return models.TierFree, s.plans.LimitFor(models.TierFree, usageType)
	}

	switch usageType {
	case models.UsageTypeAPICalls:
		return sub.Tier, sub.MonthlyAPICallsLimit
	case models.UsageTypeExports:
		return sub.Tier, sub.MonthlyExportsLimit
	case models.UsageTypeSentiment:
		return sub.Tier, sub.MonthlySentimentLimit
	default:
		return sub.Tier, 0
	}
}

func monthlyDenial(tier string, check usage.CheckResult, period usage.Period) Decision {
	return Decision{
		Permitted: false,
		Reason:    ReasonMonthlyLimit,
		Tier:      tier,
		Used:      check.Used,
		Limit:     check.Limit,
		Remaining: 0,
		PeriodEnd: period.End,
	}
}

// Headers renders the decision as the response header set the HTTP layer
// writes on both admitted and denied requests.
func (d Decision) Headers() map[string]string {
	h := map[string]string{"X-User-Tier": d.Tier}

	if d.Reason == ReasonBurstLimit {
		h["X-RateLimit-Limit"] = strconv.Itoa(d.BurstLimit)
		h["X-RateLimit-Type"] = "burst"
		h["X-RateLimit-Window"] = "5_minutes"
		h["X-RateLimit-Current"] = strconv.Itoa(d.CurrentBurst)
		h["Retry-After"] = strconv.Itoa(retryAfterSeconds(d.RetryAfter))
		return h
	}

	h["X-RateLimit-Limit"] = strconv.Itoa(d.Limit)
	h["X-RateLimit-Remaining"] = strconv.Itoa(d.Remaining)
	h["X-RateLimit-Reset"] = d.PeriodEnd.UTC().Format(time.RFC3339)
	return h
}

// retryAfterSeconds rounds up so a client sleeping the advertised time is
// never early.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
