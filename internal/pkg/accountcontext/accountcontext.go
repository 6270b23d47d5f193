package accountcontext

import "github.com/gofiber/fiber/v2"

// AccountContext represents the authenticated tenant for a request
type AccountContext struct {
	AccountID     uint   `json:"account_id"`
	AccountName   string `json:"account_name"`
	Authenticated bool   `json:"authenticated"`
	Plan          string `json:"plan"`
}

// GetAccountContext retrieves the account context from fiber context.
// Returns an anonymous context if none is set.
func GetAccountContext(c *fiber.Ctx) AccountContext {
	if ctx := c.Locals(KeyAccountContext); ctx != nil {
		return ctx.(AccountContext)
	}
	return AccountContext{Authenticated: false}
}

// IsAuthenticated checks if the current request carries a valid account
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetAccountContext(c).Authenticated
}

// GetAccountID returns the current account's ID, or 0 if unauthenticated
func GetAccountID(c *fiber.Ctx) uint {
	return GetAccountContext(c).AccountID
}

// GetPlan returns the current account's plan, or empty if unauthenticated
func GetPlan(c *fiber.Ctx) string {
	return GetAccountContext(c).Plan
}
