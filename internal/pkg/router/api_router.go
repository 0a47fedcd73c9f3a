package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/vpspilot/vpspilot/app/controllers"
	"github.com/vpspilot/vpspilot/internal/pkg/constants"
	"github.com/vpspilot/vpspilot/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Operator endpoints onto the App Store Server API; key-protected.
	v1 := api.Group(constants.APIV1Route, middleware.APIKeyAuthMiddleware())
	v1.Get("/subscriptions/:originalTransactionId/status", controllers.HandleSubscriptionStatus)
	v1.Get("/subscriptions/:originalTransactionId/history", controllers.HandleTransactionHistory)
	v1.Get("/orders/:orderId", controllers.HandleOrderLookup)
	v1.Post("/notifications/test", controllers.HandleRequestTestNotification)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
