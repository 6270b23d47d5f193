package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/trendit-hq/trendit/internal/pkg/accountcontext"
	"github.com/trendit-hq/trendit/internal/pkg/admission"
	"github.com/trendit-hq/trendit/internal/pkg/statistics"
)

// AdmissionMiddleware gates one endpoint class behind the admission
// service. It runs after API key auth, writes the rate-limit header set on
// every response and turns denials into 429 JSON bodies with the numbers a
// client needs to back off or upgrade.
func AdmissionMiddleware(svc *admission.Service, recorder *statistics.Recorder, endpointClass, usageType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID := accountcontext.GetAccountID(c)
		if accountID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing account context"})
		}

		decision, err := svc.Evaluate(c.UserContext(), accountID, endpointClass, usageType)
		if err != nil {
			log.Errorf("admission evaluation failed for account %d on %s: %v", accountID, endpointClass, err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Usage accounting unavailable"})
		}

		for k, v := range decision.Headers() {
			c.Set(k, v)
		}

		if !decision.Permitted {
			return deny(c, decision)
		}

		recorder.Observe(c.UserContext(), usageType, time.Now())
		return c.Next()
	}
}

func deny(c *fiber.Ctx, decision admission.Decision) error {
	switch decision.Reason {
	case admission.ReasonBurstLimit:
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       "burst_limit_exceeded",
			"message":     "Too many requests in a short period, slow down",
			"limit":       decision.BurstLimit,
			"current":     decision.CurrentBurst,
			"retry_after": int(decision.RetryAfter.Round(time.Second).Seconds()),
		})
	default:
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":   "monthly_quota_exceeded",
			"message": "Monthly quota exhausted, wait for the period reset or upgrade",
			"used":    decision.Used,
			"limit":   decision.Limit,
			"resets":  decision.PeriodEnd.UTC().Format(time.RFC3339),
			"tier":    decision.Tier,
		})
	}
}
