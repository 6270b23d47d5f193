package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/trendit-hq/trendit/app/models"
	"github.com/trendit-hq/trendit/internal/pkg/accountcontext"
	"github.com/trendit-hq/trendit/internal/pkg/billing"
	"github.com/trendit-hq/trendit/internal/pkg/database"
	"github.com/trendit-hq/trendit/internal/pkg/plans"
	"github.com/trendit-hq/trendit/internal/pkg/usage"
)

// HandleBillingStatus returns the account's subscription state and current
// period usage as a read-only projection. Numbers come from the exact
// ledger, never the sampled analytics counters.
func HandleBillingStatus(c *fiber.Ctx) error {
	acctCtx := accountcontext.GetAccountContext(c)
	if !acctCtx.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing account context"})
	}

	db := database.GetDB()
	repo := billing.NewRepository(db)
	cfg := plans.Default()

	sub, err := repo.FindEntitlingSubscriptionByAccount(acctCtx.AccountID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("billing status: subscription lookup failed for account %d: %v", acctCtx.AccountID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	now := time.Now().UTC()
	period, _ := billing.ResolvePeriod(sub, now)

	totals, err := usage.NewLedgerFromDB(db).Totals(c.UserContext(), acctCtx.AccountID, period)
	if err != nil {
		log.Errorf("billing status: usage totals failed for account %d: %v", acctCtx.AccountID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	tier := models.TierFree
	subscription := fiber.Map{"status": "none", "tier": tier}
	if sub != nil {
		tier = sub.Tier
		subscription = fiber.Map{
			"status": sub.Status,
			"tier":   sub.Tier,
		}
		if sub.HasPeriodBounds() {
			subscription["current_period_start"] = sub.CurrentPeriodStart.UTC().Format(time.RFC3339)
			subscription["current_period_end"] = sub.CurrentPeriodEnd.UTC().Format(time.RFC3339)
		}
		if sub.NextBilledAt != nil {
			subscription["next_billed_at"] = sub.NextBilledAt.UTC().Format(time.RFC3339)
		}
	}

	usageView := fiber.Map{}
	for _, ut := range []string{models.UsageTypeAPICalls, models.UsageTypeExports, models.UsageTypeSentiment} {
		limit := limitForType(sub, cfg, tier, ut)
		used := totals[ut]
		entry := fiber.Map{"used": used, "limit": limit}
		if limit > 0 {
			entry["percentage"] = float64(used) / float64(limit) * 100
		} else if limit == models.UnlimitedUsage {
			entry["percentage"] = 0.0
		}
		usageView[ut] = entry
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"account_id":   acctCtx.AccountID,
		"tier":         tier,
		"subscription": subscription,
		"period": fiber.Map{
			"start": period.Start.Format(time.RFC3339),
			"end":   period.End.Format(time.RFC3339),
		},
		"usage": usageView,
	})
}

// limitForType reads the snapshot limit from the subscription when one
// exists, otherwise the live plan config for the tier.
func limitForType(sub *models.Subscription, cfg *plans.Config, tier, usageType string) int {
	if sub == nil {
		return cfg.LimitFor(tier, usageType)
	}
	switch usageType {
	case models.UsageTypeAPICalls:
		return sub.MonthlyAPICallsLimit
	case models.UsageTypeExports:
		return sub.MonthlyExportsLimit
	case models.UsageTypeSentiment:
		return sub.MonthlySentimentLimit
	default:
		return 0
	}
}
