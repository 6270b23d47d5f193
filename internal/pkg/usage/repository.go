package usage

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trendit-hq/trendit/app/models"
)

// ErrQuotaExceeded reports that appending a record would push the period
// total past the monthly limit.
var ErrQuotaExceeded = errors.New("monthly quota exceeded")

// Repository provides DB operations used by the usage ledger.
type Repository interface {
	SumCostUnits(accountID uint, usageType string, period Period) (int, error)
	AppendWithLimit(rec *models.UsageRecord, limit int) (used int, err error)
	SumByType(accountID uint, period Period) (map[string]int, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a usage repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) SumCostUnits(accountID uint, usageType string, period Period) (int, error) {
	var total int64
	err := r.db.Model(&models.UsageRecord{}).
		Select("COALESCE(SUM(cost_units), 0)").
		Where("account_id = ? AND usage_type = ? AND billing_period_start = ?", accountID, usageType, period.Start).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// AppendWithLimit inserts the record inside a transaction that serializes
// writers on the account row, re-checking the running total so that two
// concurrent requests cannot both consume the last unit. Returns the total
// including the new record, or ErrQuotaExceeded without inserting.
func (r *gormRepository) AppendWithLimit(rec *models.UsageRecord, limit int) (int, error) {
	used := 0
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := lockAccountRow(tx, rec.AccountID); err != nil {
			return fmt.Errorf("locking account %d: %w", rec.AccountID, err)
		}

		var total int64
		if err := tx.Model(&models.UsageRecord{}).
			Select("COALESCE(SUM(cost_units), 0)").
			Where("account_id = ? AND usage_type = ? AND billing_period_start = ?", rec.AccountID, rec.UsageType, rec.BillingPeriodStart).
			Scan(&total).Error; err != nil {
			return err
		}

		cost := rec.CostUnits
		if cost <= 0 {
			cost = 1
			rec.CostUnits = 1
		}
		if limit != models.UnlimitedUsage && int(total)+cost > limit {
			used = int(total)
			return ErrQuotaExceeded
		}

		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		used = int(total) + cost
		return nil
	})
	return used, err
}

func (r *gormRepository) SumByType(accountID uint, period Period) (map[string]int, error) {
	type row struct {
		UsageType string
		Total     int64
	}
	var rows []row
	err := r.db.Model(&models.UsageRecord{}).
		Select("usage_type, COALESCE(SUM(cost_units), 0) AS total").
		Where("account_id = ? AND billing_period_start = ?", accountID, period.Start).
		Group("usage_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int, len(rows))
	for _, r := range rows {
		totals[r.UsageType] = int(r.Total)
	}
	return totals, nil
}

// lockAccountRow takes the per-account row lock that serializes concurrent
// ledger writers. SQLite (used in tests) serializes writes on its own and
// rejects FOR UPDATE syntax, so the clause is applied for MySQL only.
func lockAccountRow(tx *gorm.DB, accountID uint) error {
	q := tx
	if tx.Dialector.Name() == "mysql" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var acc models.Account
	return q.Select("id").First(&acc, accountID).Error
}
