package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/trendit-hq/trendit/internal/pkg/accountcontext"
)

// HandlePing is the unauthenticated liveness endpoint.
func HandlePing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// The handlers below are the admission-gated endpoint classes. The actual
// collection, export and sentiment pipelines run in separate services;
// these endpoints accept the request once admission has granted it.

// HandleQuery accepts a trend query request.
func HandleQuery(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":      "accepted",
		"account_id":  accountcontext.GetAccountID(c),
		"received_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleExport accepts a data export request.
func HandleExport(c *fiber.Ctx) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":      "queued",
		"account_id":  accountcontext.GetAccountID(c),
		"received_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleSentiment accepts a sentiment analysis request.
func HandleSentiment(c *fiber.Ctx) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":      "queued",
		"account_id":  accountcontext.GetAccountID(c),
		"received_at": time.Now().UTC().Format(time.RFC3339),
	})
}
