package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/permitradar/permitradar/app/controllers"
	"github.com/permitradar/permitradar/internal/pkg/constants"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Marketing pages
	app.Get(constants.PublicRoute, controllers.HandleHome)
	app.Get(constants.PricingRoute, controllers.HandlePricing)
	app.Get(constants.CitiesRoute, controllers.HandleCities)

	// Billing webhooks: signature-checked in the handler, never rate-limited
	// so provider retries always get through.
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
