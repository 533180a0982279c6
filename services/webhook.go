package services

import (
	"context"
	"errors"

	"github.com/anjiri1684/estate_portal/logger"
)

const (
	WebhookPaymentCaptured = "payment.captured"
	WebhookPaymentFailed   = "payment.failed"
	WebhookRefundProcessed = "refund.processed"
)

// WebhookEvent is the subset of the Razorpay webhook body the service reads.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Status           string `json:"status"`
				Method           string `json:"method"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Amount    int64  `json:"amount"`
				Status    string `json:"status"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// HandleWebhook applies a verified gateway event. Unknown events and orders
// this service never created are acknowledged and ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, ev WebhookEvent) error {
	ctx, span := tracer.Start(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	entity := ev.Payload.Payment.Entity
	entry := logger.Log.WithField("event", ev.Event).WithField("razorpay_order_id", entity.OrderID)

	var err error
	switch ev.Event {
	case WebhookPaymentCaptured:
		_, err = s.CompleteByOrderID(ctx, entity.OrderID, entity.ID, entity.Method)
	case WebhookPaymentFailed:
		reason := entity.ErrorDescription
		if reason == "" {
			reason = "payment failed at gateway"
		}
		err = s.FailByOrderID(ctx, entity.OrderID, reason)
	case WebhookRefundProcessed:
		refund := ev.Payload.Refund.Entity
		entry.WithField("razorpay_refund_id", refund.ID).
			WithField("razorpay_payment_id", refund.PaymentID).
			Info("refund processed by gateway")
		return nil
	default:
		entry.Debug("ignoring webhook event")
		return nil
	}

	if errors.Is(err, ErrNotFound) {
		entry.Warn("webhook for unknown order")
		return nil
	}
	if errors.Is(err, ErrConflict) {
		entry.WithError(err).Warn("webhook did not apply")
		return nil
	}
	return err
}
