package models

import "time"

const (
	EventProcessingProcessed = "processed"
	EventProcessingIgnored   = "ignored"
	EventProcessingFailed    = "failed"
)

// BillingEvent is the append-only audit trail for provider webhook
// deliveries. ProviderEventID carries a unique index; redelivery of a
// known id short-circuits to success without reprocessing.
type BillingEvent struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	AccountID              *uint      `gorm:"index" json:"account_id,omitempty"`
	SubscriptionID         *uint      `gorm:"index" json:"subscription_id,omitempty"`
	ProviderEventID        string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_event_id"`
	EventType              string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);index" json:"provider_subscription_id"`
	ProviderCustomerID     string     `gorm:"type:varchar(191);index" json:"provider_customer_id"`
	RawPayload             string     `gorm:"type:longtext;not null" json:"raw_payload"`
	OccurredAt             *time.Time `gorm:"type:timestamp;default:null;index" json:"occurred_at,omitempty"`
	ProcessingStatus       string     `gorm:"type:varchar(32);not null;default:'processed';index" json:"processing_status"`
	ProcessingError        string     `gorm:"type:text" json:"processing_error"`
	RetryCount             int        `gorm:"not null;default:0" json:"retry_count"`
	ReceivedAt             time.Time  `gorm:"autoCreateTime;index" json:"received_at"`
	ProcessedAt            *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
