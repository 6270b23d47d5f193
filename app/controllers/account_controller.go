package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/trendit-hq/trendit/app/models"
	"github.com/trendit-hq/trendit/app/repository"
	"github.com/trendit-hq/trendit/internal/pkg/accountcontext"
	"github.com/trendit-hq/trendit/internal/pkg/database"
)

// HandleGetAccount returns the authenticated account's profile.
func HandleGetAccount(c *fiber.Ctx) error {
	acctCtx := accountcontext.GetAccountContext(c)
	if !acctCtx.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing account context"})
	}

	account, err := repository.GetGlobalFactory().GetAccountRepository().GetByID(acctCtx.AccountID)
	if err != nil {
		log.Errorf("account lookup failed for %d: %v", acctCtx.AccountID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":         account.ID,
		"name":       account.Name,
		"email":      account.Email,
		"status":     account.Status,
		"plan":       acctCtx.Plan,
		"created_at": account.CreatedAt.UTC().Format(time.RFC3339),
	})
}

type issueAPIKeyRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleIssueAPIKey exchanges account credentials for a fresh API key. The
// raw secret is returned exactly once; only its hash is stored. Issuing a
// new key invalidates the previous one.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	var req issueAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Email and password are required"})
	}

	repo := repository.GetGlobalFactory().GetAccountRepository()
	account, err := repo.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid credentials"})
		}
		log.Errorf("account lookup by email failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if !models.CheckPasswordHash(req.Password, account.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid credentials"})
	}
	if account.Status != models.STATUS_ACTIVE {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Account inactive"})
	}

	db := database.GetDB()
	settings, err := models.GetOrCreateAccountSettings(db, account.ID)
	if err != nil {
		log.Errorf("loading settings for account %d: %v", account.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	rawKey, err := settings.IssueAPIKey()
	if err != nil {
		log.Errorf("issuing api key for account %d: %v", account.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if err := db.Save(settings).Error; err != nil {
		log.Errorf("persisting api key for account %d: %v", account.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key":    rawKey,
		"key_prefix": settings.APIKeyPrefix,
		"created_at": settings.APIKeyCreatedAt.UTC().Format(time.RFC3339),
	})
}

// HandleRevokeAPIKey revokes the authenticated account's API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	acctCtx := accountcontext.GetAccountContext(c)
	if !acctCtx.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing account context"})
	}

	db := database.GetDB()
	settings, err := models.GetOrCreateAccountSettings(db, acctCtx.AccountID)
	if err != nil {
		log.Errorf("loading settings for account %d: %v", acctCtx.AccountID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	settings.RevokeAPIKey()
	if err := db.Save(settings).Error; err != nil {
		log.Errorf("revoking api key for account %d: %v", acctCtx.AccountID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
