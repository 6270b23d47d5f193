package plans

import (
	"strings"

	"github.com/trendit-hq/trendit/app/models"
	"github.com/trendit-hq/trendit/internal/pkg/env"
)

// Limits is the per-usage-type monthly allowance for one tier. A value of
// models.UnlimitedUsage (-1) means no monthly cap.
type Limits struct {
	APICalls          int
	Exports           int
	SentimentAnalysis int
	DataRetentionDays int
}

// Config is the versioned tier configuration loaded once at startup.
// Limits stamped onto a Subscription are a snapshot of this config, not a
// live pointer; changing the config never alters past periods.
type Config struct {
	Version string
	Tiers   map[string]Limits

	// BurstLimit is the fixed short-window request cap per endpoint class.
	BurstLimit int
}

// Default returns the shipped tier configuration. The version tag can be
// overridden via PLAN_CONFIG_VERSION for staged rollouts.
func Default() *Config {
	return &Config{
		Version: env.GetEnv("PLAN_CONFIG_VERSION", "2025-08"),
		Tiers: map[string]Limits{
			models.TierFree: {
				APICalls:          100,
				Exports:           5,
				SentimentAnalysis: 50,
				DataRetentionDays: 30,
			},
			models.TierPro: {
				APICalls:          1000,
				Exports:           50,
				SentimentAnalysis: 500,
				DataRetentionDays: 90,
			},
			models.TierEnterprise: {
				APICalls:          models.UnlimitedUsage,
				Exports:           models.UnlimitedUsage,
				SentimentAnalysis: models.UnlimitedUsage,
				DataRetentionDays: 365,
			},
		},
		BurstLimit: 20,
	}
}

// LimitsFor returns the limits for a tier, defaulting unknown tiers to free.
func (c *Config) LimitsFor(tier string) Limits {
	if l, ok := c.Tiers[NormalizeTier(tier)]; ok {
		return l
	}
	return c.Tiers[models.TierFree]
}

// LimitFor returns the monthly allowance for one tier and usage type.
func (c *Config) LimitFor(tier, usageType string) int {
	l := c.LimitsFor(tier)
	switch usageType {
	case models.UsageTypeAPICalls:
		return l.APICalls
	case models.UsageTypeExports:
		return l.Exports
	case models.UsageTypeSentiment:
		return l.SentimentAnalysis
	default:
		return 0
	}
}

// ApplySnapshot stamps the tier's current limits onto a subscription row.
func (c *Config) ApplySnapshot(sub *models.Subscription, tier string) {
	l := c.LimitsFor(tier)
	sub.Tier = NormalizeTier(tier)
	sub.MonthlyAPICallsLimit = l.APICalls
	sub.MonthlyExportsLimit = l.Exports
	sub.MonthlySentimentLimit = l.SentimentAnalysis
	sub.DataRetentionDays = l.DataRetentionDays
	sub.PlanVersion = c.Version
}

// NormalizeTier maps arbitrary tier strings onto the known set.
func NormalizeTier(tier string) string {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case models.TierPro:
		return models.TierPro
	case models.TierEnterprise:
		return models.TierEnterprise
	default:
		return models.TierFree
	}
}

// TierRank orders tiers for best-plan reconciliation.
func TierRank(tier string) int {
	switch NormalizeTier(tier) {
	case models.TierEnterprise:
		return 2
	case models.TierPro:
		return 1
	default:
		return 0
	}
}
