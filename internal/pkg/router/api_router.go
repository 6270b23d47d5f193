package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/trendit-hq/trendit/app/controllers"
	"github.com/trendit-hq/trendit/app/models"
	"github.com/trendit-hq/trendit/internal/pkg/admission"
	"github.com/trendit-hq/trendit/internal/pkg/cache"
	"github.com/trendit-hq/trendit/internal/pkg/constants"
	"github.com/trendit-hq/trendit/internal/pkg/database"
	"github.com/trendit-hq/trendit/internal/pkg/middleware"
	"github.com/trendit-hq/trendit/internal/pkg/plans"
	"github.com/trendit-hq/trendit/internal/pkg/statistics"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	cfg := plans.Default()
	admissionSvc := admission.NewFromStores(database.GetDB(), cache.GetClient(), cfg)
	recorder := statistics.NewRecorderFromEnv()

	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})
	api.Get("/ping", controllers.HandlePing)

	// Webhook ingress is unauthenticated; the signature check inside the
	// handler is the authentication.
	webhooks := api.Group("/webhooks")
	webhooks.Post("/paddle", controllers.HandlePaddleWebhook)
	webhooks.Get("/paddle/status", controllers.HandlePaddleWebhookStatus)

	v1 := api.Group("/v1")
	v1.Post("/account/api-key", controllers.HandleIssueAPIKey)

	authed := v1.Group("", middleware.APIKeyAuthMiddleware())
	authed.Get("/account", controllers.HandleGetAccount)
	authed.Delete("/account/api-key", controllers.HandleRevokeAPIKey)
	authed.Get("/billing/status", controllers.HandleBillingStatus)

	authed.Post("/query",
		middleware.AdmissionMiddleware(admissionSvc, recorder, constants.EndpointClassQuery, models.UsageTypeAPICalls),
		controllers.HandleQuery)
	authed.Post("/export",
		middleware.AdmissionMiddleware(admissionSvc, recorder, constants.EndpointClassExport, models.UsageTypeExports),
		controllers.HandleExport)
	authed.Post("/sentiment",
		middleware.AdmissionMiddleware(admissionSvc, recorder, constants.EndpointClassSentiment, models.UsageTypeSentiment),
		controllers.HandleSentiment)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
