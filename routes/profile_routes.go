package routes

import (
	"github.com/anjiri1684/estate_portal/handlers"
	"github.com/anjiri1684/estate_portal/middleware"
	"github.com/gofiber/fiber/v2"
)

func ProfileRoutes(api fiber.Router, cfg Config) {
	profile := api.Group("/profile/me", middleware.Protected(cfg.JWTSecret))
	profile.Get("", handlers.GetProfile)
	profile.Put("", handlers.UpdateProfile)
}
