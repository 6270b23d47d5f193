package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/trendit-hq/trendit/app/models"
	"github.com/trendit-hq/trendit/internal/pkg/env"
	"github.com/trendit-hq/trendit/internal/pkg/plans"
)

// ErrInvalidSignature marks a webhook delivery that failed authentication.
// No state change and no audit success is recorded for these.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// maxProcessingRetries bounds how often a failed event is reprocessed on
// redelivery before it is parked as permanently failed.
const maxProcessingRetries = 5

// Outcome describes how one webhook delivery was handled. Any outcome
// except a signature failure is acknowledged so the sender stops
// redelivering.
type Outcome struct {
	EventID   string
	EventType string
	Status    string
	Duplicate bool
	Detail    string
}

// Service ingests provider billing webhooks and applies idempotent state
// transitions to subscriptions, recording an append-only audit trail.
type Service struct {
	repo       Repository
	plans      *plans.Config
	secret     string
	priceTiers map[string]string
}

// NewService creates a webhook processor from an injected repository.
func NewService(repo Repository, cfg *plans.Config, webhookSecret string) *Service {
	return &Service{
		repo:   repo,
		plans:  cfg,
		secret: webhookSecret,
		priceTiers: map[string]string{
			env.GetEnv("PADDLE_PRO_PRICE_ID", "pri_pro_monthly"):        models.TierPro,
			env.GetEnv("PADDLE_ENTERPRISE_PRICE_ID", "pri_ent_monthly"): models.TierEnterprise,
		},
	}
}

// NewServiceFromDB creates a webhook processor from a GORM DB handle with
// the webhook secret taken from the environment.
func NewServiceFromDB(db *gorm.DB, cfg *plans.Config) *Service {
	return NewService(NewRepository(db), cfg, env.GetEnv("PADDLE_WEBHOOK_SECRET", ""))
}

// ProcessWebhook verifies, deduplicates and applies one webhook delivery.
// Duplicate deliveries of an already handled event id short-circuit to
// success without reprocessing. Only ErrInvalidSignature is returned as a
// rejection; every other outcome is recorded and acknowledged.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signatureHeader, timestampHeader string) (Outcome, error) {
	_ = ctx
	if !VerifyWebhookSignature(payload, signatureHeader, timestampHeader, s.secret) {
		return Outcome{}, ErrInvalidSignature
	}

	var envelope WebhookEnvelope
	parseErr := json.Unmarshal(payload, &envelope)
	if parseErr == nil {
		parseErr = envelope.Validate()
	}

	eventID := strings.TrimSpace(envelope.EventID)
	if eventID == "" {
		sum := sha256.Sum256(payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}
	eventType := strings.TrimSpace(envelope.EventType)
	if eventType == "" {
		eventType = "unknown"
	}

	event := &models.BillingEvent{
		ProviderEventID: eventID,
		EventType:       eventType,
		RawPayload:      string(payload),
		OccurredAt:      envelope.OccurredAt,
	}
	created, stored, err := s.repo.CreateEventIfNotExists(event)
	if err != nil {
		return Outcome{}, fmt.Errorf("recording billing event %s: %w", eventID, err)
	}

	retryCount := stored.RetryCount
	if !created {
		switch stored.ProcessingStatus {
		case models.EventProcessingProcessed, models.EventProcessingIgnored:
			return Outcome{EventID: eventID, EventType: stored.EventType, Status: stored.ProcessingStatus, Duplicate: true}, nil
		default:
			if retryCount >= maxProcessingRetries {
				return Outcome{EventID: eventID, EventType: stored.EventType, Status: stored.ProcessingStatus, Duplicate: true, Detail: "retry limit reached"}, nil
			}
			retryCount++
		}
	}

	status := models.EventProcessingProcessed
	detail := ""
	if parseErr != nil {
		status = models.EventProcessingFailed
		detail = parseErr.Error()
	} else {
		status, detail = s.apply(&envelope)
	}

	if err := s.repo.MarkEventProcessed(stored.ID, status, detail, retryCount); err != nil {
		log.Errorf("failed to mark billing event %s as %s: %v", eventID, status, err)
	}

	return Outcome{EventID: eventID, EventType: eventType, Status: status, Detail: detail}, nil
}

// apply routes one verified, deduplicated event to its transition.
func (s *Service) apply(envelope *WebhookEnvelope) (string, string) {
	var err error
	switch envelope.EventType {
	case EventSubscriptionCreated:
		err = s.handleSubscriptionCreated(envelope)
	case EventSubscriptionUpdated:
		err = s.handleSubscriptionUpdated(envelope)
	case EventSubscriptionCanceled:
		err = s.handleStatusTransition(envelope, models.SubscriptionStatusCanceled)
	case EventSubscriptionPaused:
		err = s.handleStatusTransition(envelope, models.SubscriptionStatusPaused)
	case EventSubscriptionResumed:
		err = s.handleStatusTransition(envelope, models.SubscriptionStatusActive)
	case EventSubscriptionTrialEnd:
		err = s.handleTrialEnded(envelope)
	case EventTransactionCompleted:
		err = s.handleTransactionCompleted(envelope)
	case EventPaymentFailed:
		err = s.handlePaymentFailed(envelope)
	case EventCustomerCreated, EventCustomerUpdated:
		// Linkage-only events carry nothing the admission path consumes.
		return models.EventProcessingProcessed, ""
	default:
		// Unknown event types are accepted for forward compatibility.
		log.Infof("ignoring unknown webhook event type %q", envelope.EventType)
		return models.EventProcessingIgnored, ""
	}

	if err != nil {
		var skip *skippedTransition
		if errors.As(err, &skip) {
			return models.EventProcessingProcessed, skip.reason
		}
		return models.EventProcessingFailed, err.Error()
	}
	return models.EventProcessingProcessed, ""
}

// skippedTransition marks events that are valid but intentionally not
// applied (stale ordering, terminal subscription). They are acknowledged
// as processed so the sender stops redelivering.
type skippedTransition struct {
	reason string
}

func (s *skippedTransition) Error() string { return s.reason }

func (s *Service) handleSubscriptionCreated(envelope *WebhookEnvelope) error {
	var data SubscriptionData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return fmt.Errorf("parsing subscription data: %w", err)
	}
	if strings.TrimSpace(data.ID) == "" {
		return errors.New("subscription.created without subscription id")
	}

	sub, err := s.repo.FindSubscriptionByProviderID(data.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if sub != nil {
		if stale(envelope.OccurredAt, sub.LastEventAt) {
			return &skippedTransition{reason: "stale event ignored"}
		}
	} else {
		accountID, err := s.resolveAccount(&data)
		if err != nil {
			return err
		}
		sub = &models.Subscription{AccountID: accountID, ProviderSubscriptionID: data.ID}
	}

	s.applySubscriptionData(sub, envelope, &data)
	if err := s.repo.CreateSubscription(sub); err != nil {
		return err
	}
	return s.reconcilePlan(sub.AccountID)
}

func (s *Service) handleSubscriptionUpdated(envelope *WebhookEnvelope) error {
	var data SubscriptionData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return fmt.Errorf("parsing subscription data: %w", err)
	}

	sub, err := s.findSubscription(data.ID, data.CustomerID)
	if err != nil {
		return err
	}
	if guard := transitionGuard(sub, envelope.OccurredAt); guard != nil {
		return guard
	}

	// The payload is the authoritative source: tier and period bounds are
	// replaced wholesale, never adjusted incrementally.
	s.applySubscriptionData(sub, envelope, &data)
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}
	return s.reconcilePlan(sub.AccountID)
}

func (s *Service) handleStatusTransition(envelope *WebhookEnvelope, newStatus string) error {
	var data SubscriptionData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return fmt.Errorf("parsing subscription data: %w", err)
	}

	sub, err := s.findSubscription(data.ID, data.CustomerID)
	if err != nil {
		return err
	}
	if guard := transitionGuard(sub, envelope.OccurredAt); guard != nil {
		return guard
	}

	sub.Status = newStatus
	if data.CurrentPeriod != nil {
		start, end := data.CurrentPeriod.StartsAt, data.CurrentPeriod.EndsAt
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd = &start, &end
	}
	touchLastEvent(sub, envelope.OccurredAt)
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}
	return s.reconcilePlan(sub.AccountID)
}

func (s *Service) handleTrialEnded(envelope *WebhookEnvelope) error {
	var data SubscriptionData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return fmt.Errorf("parsing subscription data: %w", err)
	}

	sub, err := s.findSubscription(data.ID, data.CustomerID)
	if err != nil {
		return err
	}
	if guard := transitionGuard(sub, envelope.OccurredAt); guard != nil {
		return guard
	}

	sub.TrialStart = nil
	sub.TrialEnd = nil
	if sub.Status == models.SubscriptionStatusTrialing {
		sub.Status = models.SubscriptionStatusActive
	}
	touchLastEvent(sub, envelope.OccurredAt)
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}
	return s.reconcilePlan(sub.AccountID)
}

func (s *Service) handleTransactionCompleted(envelope *WebhookEnvelope) error {
	var data TransactionData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return fmt.Errorf("parsing transaction data: %w", err)
	}

	sub, err := s.findSubscription(data.SubscriptionID, data.CustomerID)
	if err != nil {
		return err
	}
	if guard := transitionGuard(sub, envelope.OccurredAt); guard != nil {
		return guard
	}

	// A successful charge recovers a delinquent subscription.
	if sub.Status == models.SubscriptionStatusPastDue {
		sub.Status = models.SubscriptionStatusActive
	}
	touchLastEvent(sub, envelope.OccurredAt)
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}
	return s.reconcilePlan(sub.AccountID)
}

func (s *Service) handlePaymentFailed(envelope *WebhookEnvelope) error {
	var data TransactionData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return fmt.Errorf("parsing transaction data: %w", err)
	}

	sub, err := s.findSubscription(data.SubscriptionID, data.CustomerID)
	if err != nil {
		return err
	}
	if guard := transitionGuard(sub, envelope.OccurredAt); guard != nil {
		return guard
	}

	sub.Status = models.SubscriptionStatusPastDue
	touchLastEvent(sub, envelope.OccurredAt)
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}
	return s.reconcilePlan(sub.AccountID)
}

// applySubscriptionData replaces subscription state wholesale from the
// payload and stamps the tier's limit snapshot.
func (s *Service) applySubscriptionData(sub *models.Subscription, envelope *WebhookEnvelope, data *SubscriptionData) {
	sub.ProviderCustomerID = strings.TrimSpace(data.CustomerID)
	sub.Status = providerStatus(data.Status)
	sub.NextBilledAt = data.NextBilledAt
	sub.TrialStart = data.TrialStartAt
	sub.TrialEnd = data.TrialEndAt
	if data.CurrentPeriod != nil {
		start, end := data.CurrentPeriod.StartsAt, data.CurrentPeriod.EndsAt
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd = &start, &end
	}

	tier, priceID := s.tierFromData(data)
	if tier != "" {
		sub.ProviderPriceID = priceID
		s.plans.ApplySnapshot(sub, tier)
	}

	sub.RawPayloadJSON = string(envelope.Data)
	touchLastEvent(sub, envelope.OccurredAt)
}

// tierFromData maps the subscription's price items onto an internal tier,
// falling back to the custom_data tier hint set at checkout.
func (s *Service) tierFromData(data *SubscriptionData) (tier, priceID string) {
	for _, item := range data.Items {
		if t, ok := s.priceTiers[item.Price.ID]; ok {
			return t, item.Price.ID
		}
	}
	if hint, ok := data.CustomData["tier"]; ok {
		return plans.NormalizeTier(hint), ""
	}
	return "", ""
}

// resolveAccount locates the tenant a first-time subscription belongs to.
func (s *Service) resolveAccount(data *SubscriptionData) (uint, error) {
	if data.CustomerID != "" {
		if sub, err := s.repo.FindSubscriptionByCustomerID(data.CustomerID); err == nil {
			return sub.AccountID, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}

	if raw, ok := data.CustomData["account_id"]; ok {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid account_id %q in custom data", raw)
		}
		exists, err := s.repo.AccountExists(uint(id))
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, fmt.Errorf("referenced account %d not found", id)
		}
		return uint(id), nil
	}

	return 0, errors.New("cannot resolve account for subscription event")
}

// findSubscription resolves an event's subscription by provider id first,
// then by customer linkage.
func (s *Service) findSubscription(providerSubID, customerID string) (*models.Subscription, error) {
	if strings.TrimSpace(providerSubID) != "" {
		sub, err := s.repo.FindSubscriptionByProviderID(providerSubID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if strings.TrimSpace(customerID) != "" {
		sub, err := s.repo.FindSubscriptionByCustomerID(customerID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no subscription found for provider id %q / customer %q", providerSubID, customerID)
}

// reconcilePlan writes the best entitling tier onto the account settings
// snapshot consumed by request handling.
func (s *Service) reconcilePlan(accountID uint) error {
	subs, err := s.repo.ListSubscriptionsByAccount(accountID)
	if err != nil {
		return err
	}

	best := models.TierFree
	for _, sub := range subs {
		if !sub.IsEntitling() {
			continue
		}
		if plans.TierRank(sub.Tier) > plans.TierRank(best) {
			best = plans.NormalizeTier(sub.Tier)
		}
	}

	as, err := s.repo.GetOrCreateAccountSettings(accountID)
	if err != nil {
		return err
	}
	if plans.NormalizeTier(as.Plan) == best {
		return nil
	}
	as.Plan = best
	return s.repo.SaveAccountSettings(as)
}

// transitionGuard rejects transitions on terminal subscriptions and events
// that arrived out of order.
func transitionGuard(sub *models.Subscription, occurredAt *time.Time) error {
	if sub.Status == models.SubscriptionStatusCanceled {
		return &skippedTransition{reason: "subscription is canceled; event ignored"}
	}
	if stale(occurredAt, sub.LastEventAt) {
		return &skippedTransition{reason: "stale event ignored"}
	}
	return nil
}

func stale(occurredAt, lastEventAt *time.Time) bool {
	return occurredAt != nil && lastEventAt != nil && occurredAt.Before(*lastEventAt)
}

func touchLastEvent(sub *models.Subscription, occurredAt *time.Time) {
	if occurredAt != nil {
		t := occurredAt.UTC()
		sub.LastEventAt = &t
		return
	}
	now := time.Now().UTC()
	sub.LastEventAt = &now
}

// providerStatus maps provider status strings onto local constants.
func providerStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due":
		return models.SubscriptionStatusPastDue
	case "paused":
		return models.SubscriptionStatusPaused
	case "canceled", "cancelled":
		return models.SubscriptionStatusCanceled
	default:
		return models.SubscriptionStatusInactive
	}
}
