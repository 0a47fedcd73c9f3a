package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/vpspilot/vpspilot/app/controllers"
	"github.com/vpspilot/vpspilot/internal/pkg/constants"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// App Store server notifications (no auth, payload is Apple-signed)
	app.Post(constants.WebhookAppStoreRoute, controllers.HandleAppStoreWebhook)
	app.Get(constants.WebhookAppStoreVerifyRoute, controllers.HandleAppStoreWebhookVerify)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
