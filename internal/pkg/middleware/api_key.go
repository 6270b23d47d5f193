package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/trendit-hq/trendit/app/models"
	"github.com/trendit-hq/trendit/app/repository"
	"github.com/trendit-hq/trendit/internal/pkg/accountcontext"
	"github.com/trendit-hq/trendit/internal/pkg/database"
)

// APIKeyAuthMiddleware authenticates requests carrying an account API key header.
func APIKeyAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		db := database.GetDB()
		if db == nil {
			log.Error("api key middleware: database unavailable")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
		}

		hash := models.HashAPIKey(apiKey)
		repo := repository.GetGlobalFactory().GetAccountRepository()
		account, settings, err := repo.GetByAPIKeyHash(hash)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Errorf("api key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}

		if account.Status != models.STATUS_ACTIVE {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Account inactive"})
		}

		plan := settings.Plan
		if plan == "" {
			plan = models.TierFree
		}

		// Refresh last-used timestamps best-effort.
		settings.TouchAPIKeyUsage()
		if err := db.Model(&models.AccountSettings{}).
			Where("id = ?", settings.ID).
			Update("api_key_last_used_at", settings.APIKeyLastUsedAt).Error; err != nil {
			log.Warnf("failed to update api key usage timestamp for account %d: %v", account.ID, err)
		}
		if err := repo.TouchLastActive(account.ID); err != nil {
			log.Warnf("failed to update last active timestamp for account %d: %v", account.ID, err)
		}

		acctCtx := accountcontext.AccountContext{
			AccountID:     account.ID,
			AccountName:   account.Name,
			Authenticated: true,
			Plan:          plan,
		}
		c.Locals(accountcontext.KeyAccountContext, acctCtx)
		c.Locals(accountcontext.KeyAccountID, account.ID)
		c.Locals(accountcontext.KeyAccountName, account.Name)
		c.Locals(accountcontext.KeyPlan, plan)

		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
