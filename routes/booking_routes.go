package routes

import (
	"github.com/anjiri1684/estate_portal/handlers"
	"github.com/anjiri1684/estate_portal/middleware"
	"github.com/gofiber/fiber/v2"
)

func BookingRoutes(api fiber.Router, cfg Config) {
	api.Get("/bookings/available-slots", handlers.GetAvailableSlots)

	booking := api.Group("/bookings", middleware.Protected(cfg.JWTSecret))
	booking.Post("", handlers.CreateBooking)
	booking.Get("", handlers.ListBookings)
	booking.Get("/:id", handlers.GetBooking)
	booking.Patch("/:id", handlers.UpdateBooking)
	booking.Delete("/:id", middleware.AdminRequired(), handlers.DeleteBooking)
	booking.Post("/:id/confirm", middleware.AdminRequired(), handlers.ConfirmBooking)
	booking.Post("/:id/cancel", handlers.CancelBooking)
}
