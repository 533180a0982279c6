package routes

import (
	"github.com/anjiri1684/estate_portal/handlers"
	"github.com/anjiri1684/estate_portal/middleware"
	"github.com/gofiber/fiber/v2"
)

func ListingRoutes(api fiber.Router, cfg Config) {
	api.Get("/listings", handlers.ListListings)
	api.Get("/listings/:idOrSlug", handlers.GetListing)

	admin := api.Group("/listings", middleware.Protected(cfg.JWTSecret), middleware.AdminRequired())
	admin.Post("", handlers.CreateListing)
	admin.Put("/:id", handlers.UpdateListing)
	admin.Delete("/:id", handlers.DeleteListing)
}
