package usage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/trendit-hq/trendit/app/models"
)

// Period is the billing window usage accumulates over.
type Period struct {
	Start time.Time
	End   time.Time
}

// CheckResult is the outcome of a monthly quota check.
type CheckResult struct {
	Permitted bool
	Used      int
	Limit     int
}

// Ledger enforces monthly quotas from the durable usage store. Enforcement
// reads are always exact sums over UsageRecord rows; sampled projections
// live in the statistics package and are never consulted here.
type Ledger struct {
	repo Repository
}

// NewLedger creates a ledger from an injected repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// NewLedgerFromDB creates a ledger from a GORM DB handle.
func NewLedgerFromDB(db *gorm.DB) *Ledger {
	return NewLedger(NewRepository(db))
}

// Check reports whether one more unit fits into the period's allowance.
// A limit of models.UnlimitedUsage always permits.
func (l *Ledger) Check(ctx context.Context, accountID uint, usageType string, period Period, limit int) (CheckResult, error) {
	_ = ctx
	used, err := l.repo.SumCostUnits(accountID, usageType, period)
	if err != nil {
		return CheckResult{}, err
	}

	permitted := limit == models.UnlimitedUsage || used+1 <= limit
	return CheckResult{Permitted: permitted, Used: used, Limit: limit}, nil
}

// Record appends one usage fact, re-checking the limit transactionally so
// the admitted count can never exceed the limit under concurrency. On a
// lost race it returns a non-permitted result and ErrQuotaExceeded unwraps
// from the error.
func (l *Ledger) Record(ctx context.Context, rec *models.UsageRecord, limit int) (CheckResult, error) {
	_ = ctx
	used, err := l.repo.AppendWithLimit(rec, limit)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return CheckResult{Permitted: false, Used: used, Limit: limit}, err
		}
		return CheckResult{}, err
	}
	return CheckResult{Permitted: true, Used: used, Limit: limit}, nil
}

// Totals returns the exact per-type consumption for the period, used by the
// billing status projection.
func (l *Ledger) Totals(ctx context.Context, accountID uint, period Period) (map[string]int, error) {
	_ = ctx
	return l.repo.SumByType(accountID, period)
}
