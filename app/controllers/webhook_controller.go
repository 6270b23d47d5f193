package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/trendit-hq/trendit/app/models"
	"github.com/trendit-hq/trendit/internal/pkg/billing"
	"github.com/trendit-hq/trendit/internal/pkg/database"
	"github.com/trendit-hq/trendit/internal/pkg/plans"
)

// HandlePaddleWebhook ingests provider billing webhooks. The raw body is
// verified against the signature header before any parsing; 200 is
// returned for every outcome that should stop redelivery, including
// duplicates, unknown event types and processing failures that were
// audited. Only a signature mismatch is rejected.
func HandlePaddleWebhook(c *fiber.Ctx) error {
	signature := strings.TrimSpace(c.Get("Paddle-Signature"))
	timestamp := strings.TrimSpace(c.Get("Paddle-Timestamp"))
	if timestamp == "" {
		// Some senders carry the timestamp only inside the signature header.
		timestamp = extractTimestampFromSignature(signature)
	}
	if signature == "" || timestamp == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing signature headers"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)

	svc := billing.NewServiceFromDB(database.GetDB(), plans.Default())
	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	outcome, err := svc.ProcessWebhook(ctx, rawBody, signature, timestamp)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
		log.Errorf("webhook processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}

	resp := fiber.Map{"ok": true, "event_id": outcome.EventID, "status": outcome.Status}
	if outcome.Duplicate {
		resp["duplicate"] = true
	}
	if outcome.Status == models.EventProcessingIgnored {
		resp["ignored"] = true
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandlePaddleWebhookStatus reports the event types this endpoint handles.
func HandlePaddleWebhookStatus(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"active": true,
		"supported_events": []string{
			billing.EventSubscriptionCreated,
			billing.EventSubscriptionUpdated,
			billing.EventSubscriptionCanceled,
			billing.EventSubscriptionPaused,
			billing.EventSubscriptionResumed,
			billing.EventSubscriptionTrialEnd,
			billing.EventTransactionCompleted,
			billing.EventPaymentFailed,
			billing.EventCustomerCreated,
			billing.EventCustomerUpdated,
		},
	})
}

func extractTimestampFromSignature(header string) string {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k == "ts" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
