package models

import "time"

const (
	UsageTypeAPICalls  = "api_calls"
	UsageTypeExports   = "exports"
	UsageTypeSentiment = "sentiment_analysis"
)

// UsageRecord is an append-only fact about one admitted request. The billing
// period bounds are stamped at write time and must match the period active
// for the account at that moment; rows are never updated afterwards.
type UsageRecord struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	AccountID          uint      `gorm:"not null;index:idx_usage_records_account_type_period,priority:1" json:"account_id"`
	SubscriptionID     *uint     `gorm:"index" json:"subscription_id,omitempty"`
	UsageType          string    `gorm:"type:varchar(32);not null;index:idx_usage_records_account_type_period,priority:2" json:"usage_type"`
	EndpointClass      string    `gorm:"type:varchar(64);not null;index" json:"endpoint_class"`
	CostUnits          int       `gorm:"not null;default:1" json:"cost_units"`
	RequestID          string    `gorm:"type:varchar(64);default:''" json:"request_id"`
	BillingPeriodStart time.Time `gorm:"not null;index:idx_usage_records_account_type_period,priority:3" json:"billing_period_start"`
	BillingPeriodEnd   time.Time `gorm:"not null" json:"billing_period_end"`
	CreatedAt          time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// KnownUsageType reports whether the given usage type is tracked.
func KnownUsageType(usageType string) bool {
	switch usageType {
	case UsageTypeAPICalls, UsageTypeExports, UsageTypeSentiment:
		return true
	default:
		return false
	}
}
