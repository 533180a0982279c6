package routes

import (
	"github.com/anjiri1684/estate_portal/handlers"
	"github.com/anjiri1684/estate_portal/middleware"
	"github.com/anjiri1684/estate_portal/ratelimit"
	"github.com/gofiber/fiber/v2"
)

func AuthRoutes(api fiber.Router, cfg Config) {
	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(cfg.Guard, ratelimit.CategoryRegister), handlers.RegisterUser)
	auth.Post("/login", middleware.RateLimit(cfg.Guard, ratelimit.CategoryLogin), handlers.LoginUser)
}
