package handlers

import (
	"errors"
	"time"

	"github.com/anjiri1684/estate_portal/clock"
	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/ratelimit"
	"github.com/anjiri1684/estate_portal/services"
	"github.com/anjiri1684/estate_portal/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var validate = validator.New()

// Deps carries everything the handlers reach for.
type Deps struct {
	DB            *gorm.DB
	Slots         *services.SlotChecker
	Bookings      *services.BookingService
	Payments      *services.PaymentService
	Guard         *ratelimit.Guard
	Events        services.EventPublisher
	Feed          *websocket.Hub
	Clock         clock.Clock
	JWTSecret     string
	JWTTTL        time.Duration
	WebhookSecret string
	CloudinaryURL string
}

var deps Deps

// Setup installs the dependencies used by every handler in the package.
func Setup(d Deps) {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.JWTTTL == 0 {
		d.JWTTTL = 72 * time.Hour
	}
	deps = d
}

// respondError maps the service error taxonomy onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidSignature):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment signature"})
	case errors.Is(err, services.ErrBadRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		logger.Log.WithError(err).WithField("path", c.Path()).Error("request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}

// bindJSON parses and validates the request body.
func bindJSON(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return errors.New("Cannot parse JSON")
	}
	return validate.Struct(req)
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}
