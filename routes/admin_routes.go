package routes

import (
	"github.com/anjiri1684/estate_portal/handlers"
	"github.com/anjiri1684/estate_portal/middleware"
	"github.com/anjiri1684/estate_portal/ratelimit"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(api fiber.Router, cfg Config) {
	// The feed authenticates with its first frame, not a header.
	api.Get("/admin/ws", handlers.UpgradeFeed, websocketcontrib.New(handlers.ServeAdminFeed))

	admin := api.Group("/admin", middleware.Protected(cfg.JWTSecret), middleware.AdminRequired())

	admin.Get("/dashboard-analytics", handlers.GetDashboardAnalytics)
	admin.Get("/bookings/stats", handlers.GetBookingStatistics)
	admin.Get("/reports/transactions", handlers.GenerateTransactionReport)

	admin.Get("/leads", handlers.ListLeads)
	admin.Patch("/leads/:id", handlers.UpdateLeadStatus)

	users := admin.Group("/users")
	users.Get("", handlers.GetAllUsers)
	users.Put("/:userId/status", handlers.ToggleUserStatus)

	admin.Get("/uploads/signature", middleware.RateLimit(cfg.Guard, ratelimit.CategoryUpload), handlers.GenerateUploadSignature)
}
