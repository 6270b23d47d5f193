package models

import "time"

const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusPaused   = "paused"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusInactive = "inactive"
)

// UnlimitedUsage is the limit sentinel for tiers without a monthly cap.
const UnlimitedUsage = -1

// Subscription mirrors provider subscription state for one account. The
// monthly limit columns are a snapshot taken when the tier was assigned;
// they change only when a webhook changes the tier, never retroactively.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	AccountID              uint       `gorm:"not null;index" json:"account_id"`
	ProviderCustomerID     string     `gorm:"type:varchar(191);index" json:"provider_customer_id"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);uniqueIndex" json:"provider_subscription_id"`
	ProviderPriceID        string     `gorm:"type:varchar(191)" json:"provider_price_id"`
	Tier                   string     `gorm:"type:varchar(32);not null;default:'free';index:idx_subscriptions_tier_status,priority:1" json:"tier"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'inactive';index:idx_subscriptions_tier_status,priority:2" json:"status"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	NextBilledAt           *time.Time `gorm:"type:timestamp;default:null" json:"next_billed_at,omitempty"`
	TrialStart             *time.Time `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd               *time.Time `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	MonthlyAPICallsLimit   int        `gorm:"not null;default:100" json:"monthly_api_calls_limit"`
	MonthlyExportsLimit    int        `gorm:"not null;default:5" json:"monthly_exports_limit"`
	MonthlySentimentLimit  int        `gorm:"not null;default:50" json:"monthly_sentiment_limit"`
	DataRetentionDays      int        `gorm:"not null;default:30" json:"data_retention_days"`
	PlanVersion            string     `gorm:"type:varchar(32);default:''" json:"plan_version"`
	// LastEventAt is the occurred_at of the newest webhook applied to this
	// row; older events must not overwrite newer state.
	LastEventAt    *time.Time `gorm:"type:timestamp;default:null" json:"last_event_at,omitempty"`
	RawPayloadJSON string     `gorm:"type:longtext" json:"raw_payload_json"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether the subscription status grants paid access.
func (s *Subscription) IsEntitling() bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// HasPeriodBounds reports whether the provider has supplied billing cycle bounds.
func (s *Subscription) HasPeriodBounds() bool {
	return s != nil && s.CurrentPeriodStart != nil && s.CurrentPeriodEnd != nil
}
