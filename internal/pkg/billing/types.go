package billing

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// Webhook event types the processor routes on. Unknown types are recorded
// and acknowledged without a state change.
const (
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
	EventSubscriptionPaused   = "subscription.paused"
	EventSubscriptionResumed  = "subscription.resumed"
	EventSubscriptionTrialEnd = "subscription.trial_ended"
	EventTransactionCompleted = "transaction.completed"
	EventPaymentFailed        = "transaction.payment_failed"
	EventCustomerCreated      = "customer.created"
	EventCustomerUpdated      = "customer.updated"
)

// WebhookEnvelope is the outer shape of a provider webhook delivery.
type WebhookEnvelope struct {
	EventID    string          `json:"event_id" validate:"required"`
	EventType  string          `json:"event_type" validate:"required"`
	OccurredAt *time.Time      `json:"occurred_at"`
	Data       json.RawMessage `json:"data" validate:"required"`
}

var envelopeValidator = validator.New()

// Validate checks the envelope carries the fields dedup and routing need.
func (e *WebhookEnvelope) Validate() error {
	return envelopeValidator.Struct(e)
}

// SubscriptionData is the provider payload for subscription.* events.
type SubscriptionData struct {
	ID            string             `json:"id"`
	CustomerID    string             `json:"customer_id"`
	Status        string             `json:"status"`
	CurrencyCode  string             `json:"currency_code"`
	NextBilledAt  *time.Time         `json:"next_billed_at"`
	TrialStartAt  *time.Time         `json:"trial_start_at"`
	TrialEndAt    *time.Time         `json:"trial_end_at"`
	CurrentPeriod *BillingPeriodData `json:"current_billing_period"`
	Items         []SubscriptionItem `json:"items"`
	CustomData    map[string]string  `json:"custom_data"`
}

// BillingPeriodData carries the provider's absolute cycle bounds. They are
// applied wholesale, never derived locally.
type BillingPeriodData struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// SubscriptionItem is one priced line on a subscription.
type SubscriptionItem struct {
	Price PriceRef `json:"price"`
}

// PriceRef identifies the provider price a tier is mapped from.
type PriceRef struct {
	ID string `json:"id"`
}

// TransactionData is the provider payload for transaction.* events.
type TransactionData struct {
	ID             string `json:"id"`
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
}

// CustomerData is the provider payload for customer.* events.
type CustomerData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
