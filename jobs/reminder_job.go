package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/notifications"
	"gorm.io/datatypes"
)

// SendVisitReminders notifies the attendee of every confirmed booking dated
// tomorrow. Each booking is reminded once.
func (r *Runner) SendVisitReminders(ctx context.Context) (int, error) {
	logger.Log.Debug("Running job: SendVisitReminders...")

	y, m, d := r.Clock.Now().AddDate(0, 0, 1).Date()
	tomorrow := datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))

	var upcoming []models.Booking
	err := r.DB.WithContext(ctx).
		Preload("Listing").
		Preload("User").
		Preload("Lead").
		Where("status = ? AND booking_date = ? AND reminder_sent_at IS NULL", models.BookingConfirmed, tomorrow).
		Find(&upcoming).Error
	if err != nil {
		return 0, fmt.Errorf("load upcoming visits: %w", err)
	}

	sent := 0
	for i := range upcoming {
		booking := &upcoming[i]

		res := r.DB.WithContext(ctx).Model(&models.Booking{}).
			Where("id = ? AND reminder_sent_at IS NULL", booking.ID).
			Update("reminder_sent_at", r.Clock.Now())
		if res.Error != nil {
			logger.Log.WithError(res.Error).WithField("booking_id", booking.ID).Error("failed to stamp reminder")
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}

		r.remind(ctx, booking)
		sent++
	}
	return sent, nil
}

func (r *Runner) remind(ctx context.Context, b *models.Booking) {
	name, email, phone := b.Contact()
	title := "your property"
	if b.Listing != nil {
		title = b.Listing.Title
	}
	date := time.Time(b.BookingDate).Format("Monday, 02 January 2006")
	slot := "the scheduled time"
	if b.BookingTime != nil {
		slot = *b.BookingTime
	}
	logger.Log.WithField("booking_id", b.ID).Info("Sending visit reminder")

	if r.Email != nil && email != "" {
		body := fmt.Sprintf(
			"<h1>Visit Reminder</h1><p>Hi %s,</p><p>This is a friendly reminder that your visit to <b>%s</b> is tomorrow, %s at %s.</p>",
			name, title, date, slot,
		)
		if err := r.Email.Send(ctx, name, email, "Reminder: Your site visit is tomorrow", body); err != nil {
			logger.Log.WithError(err).WithField("booking_id", b.ID).Error("failed to email reminder")
		}
	}
	if r.WhatsApp != nil && phone != "" {
		if _, err := r.WhatsApp.SendTemplate(ctx, phone, notifications.TemplateVisitReminder, []string{name, title, date, slot}); err != nil {
			logger.Log.WithError(err).WithField("booking_id", b.ID).Error("failed to WhatsApp reminder")
		}
	}
}
