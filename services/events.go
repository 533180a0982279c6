package services

import (
	"context"
	"time"

	"github.com/anjiri1684/estate_portal/logger"
)

const (
	EventBookingCreated       = "booking.created"
	EventBookingConfirmed     = "booking.confirmed"
	EventBookingCancelled     = "booking.cancelled"
	EventBookingConfirmFailed = "booking.confirm_failed"
	EventPaymentCompleted     = "payment.completed"
	EventPaymentFailed        = "payment.failed"
	EventPaymentRefunded      = "payment.refunded"
	EventLeadCreated          = "lead.created"
)

// EventPublisher is satisfied by the RabbitMQ publisher and by the in-process
// dispatcher used when no broker is configured.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type Event struct {
	Event      string            `json:"event"`
	Version    int               `json:"version"`
	OccurredAt string            `json:"occurred_at"`
	Data       map[string]string `json:"data"`
}

func NewEvent(key string, now time.Time, data map[string]string) Event {
	return Event{
		Event:      key,
		Version:    1,
		OccurredAt: now.UTC().Format(time.RFC3339),
		Data:       data,
	}
}

func publish(ctx context.Context, pub EventPublisher, key string, now time.Time, data map[string]string) {
	if pub == nil {
		return
	}
	if err := pub.PublishJSON(ctx, key, NewEvent(key, now, data)); err != nil {
		logger.Log.WithError(err).WithField("event", key).Error("failed to publish event")
	}
}
