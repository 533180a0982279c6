package handlers

import (
	"encoding/json"

	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/middleware"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/payments"
	"github.com/anjiri1684/estate_portal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CreateOrderRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Currency    string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	PaymentType string  `json:"paymentType" validate:"required,oneof=booking token installment full"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	BookingID   *string `json:"bookingId,omitempty" validate:"omitempty,uuid"`
	ListingID   *string `json:"listingId,omitempty" validate:"omitempty,uuid"`
}

type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpayOrderId" validate:"required"`
	PaymentID string `json:"razorpayPaymentId" validate:"required"`
	Signature string `json:"razorpaySignature" validate:"required"`
}

type RefundRequest struct {
	Amount *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Reason *string  `json:"reason,omitempty" validate:"omitempty,max=500"`
}

func parseOptionalUUID(raw *string) *uuid.UUID {
	if raw == nil {
		return nil
	}
	id := uuid.MustParse(*raw)
	return &id
}

func CreatePaymentOrder(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req CreateOrderRequest
	if err := bindJSON(c, &req); err != nil {
		return badRequest(c, err)
	}

	in := services.CreateOrderInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		PaymentType: models.PaymentType(req.PaymentType),
		Description: req.Description,
		BookingID:   parseOptionalUUID(req.BookingID),
		ListingID:   parseOptionalUUID(req.ListingID),
		UserID:      userID,
	}

	if in.BookingID != nil && !middleware.IsAdmin(c) {
		booking, err := deps.Bookings.Get(c.UserContext(), *in.BookingID)
		if err != nil {
			return respondError(c, err)
		}
		if booking.UserID == nil || *booking.UserID != userID {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
		}
	}

	order, err := deps.Payments.CreatePaymentOrder(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

func VerifyPayment(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req VerifyPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		return badRequest(c, err)
	}

	payment, err := deps.Payments.VerifyPayment(c.UserContext(), services.VerifyPaymentInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		UserID:    userID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Payment verified successfully", "payment": payment})
}

func ListPayments(c *fiber.Ctx) error {
	f := services.PaymentFilter{Status: models.PaymentStatus(c.Query("status"))}
	if !middleware.IsAdmin(c) {
		userID, err := middleware.CurrentUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}
		f.UserID = &userID
	}

	list, err := deps.Payments.List(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

func GetPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment ID"})
	}
	payment, err := deps.Payments.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if !middleware.IsAdmin(c) {
		userID, err := middleware.CurrentUserID(c)
		if err != nil || payment.UserID != userID {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payment not found"})
		}
	}
	return c.JSON(payment)
}

func RefundPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment ID"})
	}

	var req RefundRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return badRequest(c, err)
		}
	}

	payment, err := deps.Payments.InitiateRefund(c.UserContext(), id, req.Amount, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Refund initiated", "payment": payment})
}

// HandleRazorpayWebhook verifies X-Razorpay-Signature over the raw body before
// decoding it.
func HandleRazorpayWebhook(c *fiber.Ctx) error {
	body := c.Body()
	if !payments.VerifyWebhookSignature(deps.WebhookSecret, body, c.Get("X-Razorpay-Signature")) {
		logger.Log.Warn("rejected webhook with invalid signature")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid webhook signature"})
	}

	var ev services.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse webhook payload"})
	}

	if err := deps.Payments.HandleWebhook(c.UserContext(), ev); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
