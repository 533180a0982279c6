package jobs

import (
	"context"
	"time"

	"github.com/anjiri1684/estate_portal/clock"
	"github.com/anjiri1684/estate_portal/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

type Expirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type EmailSender interface {
	Send(ctx context.Context, toName, toEmail, subject, html string) error
}

type WhatsAppSender interface {
	SendTemplate(ctx context.Context, to, template string, params []string) (string, error)
}

// Runner holds what the periodic jobs need.
type Runner struct {
	DB         *gorm.DB
	Bookings   Expirer
	Payments   Expirer
	Email      EmailSender
	WhatsApp   WhatsAppSender
	Clock      clock.Clock
	BookingTTL time.Duration
	PaymentTTL time.Duration
}

// Schedule registers the expiry sweep and the reminder job on c.
func (r *Runner) Schedule(c *cron.Cron, expirySpec, reminderSpec string) error {
	if _, err := c.AddFunc(expirySpec, func() {
		if err := r.ExpireStalePending(context.Background()); err != nil {
			logger.Log.WithError(err).Error("expiry sweep failed")
		}
	}); err != nil {
		return err
	}
	_, err := c.AddFunc(reminderSpec, func() {
		if _, err := r.SendVisitReminders(context.Background()); err != nil {
			logger.Log.WithError(err).Error("visit reminder job failed")
		}
	})
	return err
}
