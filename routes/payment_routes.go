package routes

import (
	"github.com/anjiri1684/estate_portal/handlers"
	"github.com/anjiri1684/estate_portal/middleware"
	"github.com/anjiri1684/estate_portal/ratelimit"
	"github.com/gofiber/fiber/v2"
)

func PaymentRoutes(api fiber.Router, cfg Config) {
	api.Post("/payments/webhook", handlers.HandleRazorpayWebhook)

	payments := api.Group("/payments", middleware.Protected(cfg.JWTSecret), middleware.RateLimit(cfg.Guard, ratelimit.CategoryPayment))
	payments.Post("/create-order", handlers.CreatePaymentOrder)
	payments.Post("/verify", handlers.VerifyPayment)
	payments.Get("", handlers.ListPayments)
	payments.Get("/:id", handlers.GetPayment)
	payments.Post("/:id/refund", middleware.AdminRequired(), handlers.RefundPayment)
}
