package routes

import (
	"github.com/anjiri1684/estate_portal/ratelimit"
	"github.com/gofiber/fiber/v2"
)

type Config struct {
	JWTSecret string
	Guard     *ratelimit.Guard
}

// Setup mounts every route group under /api/v1. Public routes that share a
// prefix with a protected group are registered first.
func Setup(app *fiber.App, cfg Config) {
	api := app.Group("/api/v1")

	AuthRoutes(api, cfg)
	ListingRoutes(api, cfg)
	LeadRoutes(api, cfg)
	BookingRoutes(api, cfg)
	PaymentRoutes(api, cfg)
	ProfileRoutes(api, cfg)
	AdminRoutes(api, cfg)
}
