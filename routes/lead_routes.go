package routes

import (
	"github.com/anjiri1684/estate_portal/handlers"
	"github.com/anjiri1684/estate_portal/middleware"
	"github.com/anjiri1684/estate_portal/ratelimit"
	"github.com/gofiber/fiber/v2"
)

func LeadRoutes(api fiber.Router, cfg Config) {
	api.Post("/leads", middleware.RateLimit(cfg.Guard, ratelimit.CategoryDefault), handlers.CreateLead)
}
