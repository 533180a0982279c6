package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/mq"
	"github.com/anjiri1684/estate_portal/notifications"
	"github.com/anjiri1684/estate_portal/services"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrMalformed marks a message that can never be processed.
var ErrMalformed = errors.New("malformed event")

// Bindings are the routing keys the notification queue subscribes to.
var Bindings = []string{"booking.*", "payment.*", "lead.*"}

type EmailSender interface {
	Send(ctx context.Context, toName, toEmail, subject, html string) error
}

type WhatsAppSender interface {
	SendTemplate(ctx context.Context, to, template string, params []string) (string, error)
}

type Feed interface {
	Broadcast(v interface{}) bool
}

// NotificationWorker turns domain events into emails, WhatsApp messages and
// admin feed updates.
type NotificationWorker struct {
	db         *gorm.DB
	email      EmailSender
	whatsapp   WhatsAppSender
	feed       Feed
	adminEmail string
}

func NewNotificationWorker(db *gorm.DB, email EmailSender, whatsapp WhatsAppSender, feed Feed, adminEmail string) *NotificationWorker {
	return &NotificationWorker{db: db, email: email, whatsapp: whatsapp, feed: feed, adminEmail: adminEmail}
}

type recipient struct {
	Name  string
	Email string
	Phone string
}

// Handle processes one event. Channel failures are logged; only lookup
// failures are returned so the broker can redeliver.
func (w *NotificationWorker) Handle(ctx context.Context, key string, body []byte) error {
	var ev services.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev.Event == "" {
		ev.Event = key
	}
	if w.feed != nil {
		w.feed.Broadcast(ev)
	}

	var err error
	switch ev.Event {
	case services.EventBookingCreated:
		err = w.bookingCreated(ctx, ev.Data)
	case services.EventBookingConfirmed:
		err = w.bookingConfirmed(ctx, ev.Data)
	case services.EventBookingCancelled:
		err = w.bookingCancelled(ctx, ev.Data)
	case services.EventBookingConfirmFailed:
		w.notifyAdmin(ctx, "Booking could not be confirmed",
			fmt.Sprintf("<p>Payment %s completed but booking %s could not be confirmed. A refund may be required.</p>",
				ev.Data["payment_id"], ev.Data["booking_id"]))
	case services.EventPaymentCompleted:
		err = w.paymentCompleted(ctx, ev.Data)
	case services.EventPaymentFailed:
		err = w.paymentFailed(ctx, ev.Data)
	case services.EventPaymentRefunded:
		err = w.paymentRefunded(ctx, ev.Data)
	case services.EventLeadCreated:
		w.leadCreated(ctx, ev.Data)
	default:
		logger.Log.WithField("event", ev.Event).Debug("no notification for event")
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Log.WithField("event", ev.Event).Warn("event refers to a record that no longer exists")
		return nil
	}
	return err
}

// RunRabbit consumes deliveries until ctx is done. Failed messages are
// requeued unless they are malformed.
func (w *NotificationWorker) RunRabbit(ctx context.Context, c *mq.Consumer) error {
	msgs, err := c.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := w.Handle(ctx, d.RoutingKey, d.Body); err != nil {
				requeue := !errors.Is(err, ErrMalformed)
				logger.Log.WithError(err).WithField("event", d.RoutingKey).WithField("requeue", requeue).Error("notification handling failed")
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (w *NotificationWorker) loadBooking(ctx context.Context, data map[string]string) (*models.Booking, recipient, error) {
	id, err := uuid.Parse(data["booking_id"])
	if err != nil {
		return nil, recipient{}, fmt.Errorf("%w: booking_id", ErrMalformed)
	}
	var b models.Booking
	if err := w.db.WithContext(ctx).Preload("Listing").Preload("User").Preload("Lead").First(&b, "id = ?", id).Error; err != nil {
		return nil, recipient{}, err
	}
	return &b, bookingRecipient(&b), nil
}

func bookingRecipient(b *models.Booking) recipient {
	name, email, phone := b.Contact()
	return recipient{Name: name, Email: email, Phone: phone}
}

func listingTitle(l *models.Listing) string {
	if l == nil {
		return "your property"
	}
	return l.Title
}

func visitSchedule(b *models.Booking) (string, string) {
	date := time.Time(b.BookingDate).Format("Monday, 02 January 2006")
	slot := "to be confirmed"
	if b.BookingTime != nil {
		slot = *b.BookingTime
	}
	return date, slot
}

func (w *NotificationWorker) bookingCreated(ctx context.Context, data map[string]string) error {
	b, to, err := w.loadBooking(ctx, data)
	if err != nil {
		return err
	}
	date, slot := visitSchedule(b)
	w.sendEmail(ctx, to, "We received your booking request",
		fmt.Sprintf("<h1>Booking Received</h1><p>Hi %s,</p><p>Your %s request for <b>%s</b> on %s at %s is awaiting confirmation.</p>",
			to.Name, b.BookingType, listingTitle(b.Listing), date, slot))
	return nil
}

func (w *NotificationWorker) bookingConfirmed(ctx context.Context, data map[string]string) error {
	b, to, err := w.loadBooking(ctx, data)
	if err != nil {
		return err
	}
	date, slot := visitSchedule(b)
	title := listingTitle(b.Listing)
	w.sendEmail(ctx, to, "Your site visit is confirmed",
		fmt.Sprintf("<h1>Visit Confirmed</h1><p>Hi %s,</p><p>Your visit to <b>%s</b> is confirmed for %s at %s.</p>",
			to.Name, title, date, slot))
	w.sendWhatsApp(ctx, to, notifications.TemplateSiteVisitConfirmation, []string{to.Name, title, date, slot})
	return nil
}

func (w *NotificationWorker) bookingCancelled(ctx context.Context, data map[string]string) error {
	b, to, err := w.loadBooking(ctx, data)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("<h1>Booking Cancelled</h1><p>Hi %s,</p><p>Your booking for <b>%s</b> has been cancelled.</p>",
		to.Name, listingTitle(b.Listing))
	if reason := data["reason"]; reason != "" {
		body += fmt.Sprintf("<p><b>Reason:</b> %s</p>", reason)
	}
	w.sendEmail(ctx, to, "Your booking was cancelled", body)
	return nil
}

func (w *NotificationWorker) loadPayment(ctx context.Context, data map[string]string) (*models.Payment, recipient, error) {
	id, err := uuid.Parse(data["payment_id"])
	if err != nil {
		return nil, recipient{}, fmt.Errorf("%w: payment_id", ErrMalformed)
	}
	var p models.Payment
	if err := w.db.WithContext(ctx).Preload("User").Preload("Listing").First(&p, "id = ?", id).Error; err != nil {
		return nil, recipient{}, err
	}
	to := recipient{}
	if p.User != nil {
		to = recipient{Name: p.User.FullName, Email: p.User.Email}
		if p.User.Phone != nil {
			to.Phone = *p.User.Phone
		}
	}
	return &p, to, nil
}

func formatAmount(p *models.Payment) string {
	return fmt.Sprintf("%s %.2f", p.Currency, p.Amount)
}

func (w *NotificationWorker) paymentCompleted(ctx context.Context, data map[string]string) error {
	p, to, err := w.loadPayment(ctx, data)
	if err != nil {
		return err
	}
	invoice := ""
	if p.InvoiceNumber != nil {
		invoice = *p.InvoiceNumber
	}
	title := listingTitle(p.Listing)
	w.sendEmail(ctx, to, "Payment received",
		fmt.Sprintf("<h1>Payment Successful</h1><p>Hi %s,</p><p>We received your payment of <b>%s</b> for %s.</p><p>Invoice: %s</p>",
			to.Name, formatAmount(p), title, invoice))
	w.sendWhatsApp(ctx, to, notifications.TemplatePaymentConfirmation, []string{to.Name, formatAmount(p), invoice, title})
	return nil
}

func (w *NotificationWorker) paymentFailed(ctx context.Context, data map[string]string) error {
	p, to, err := w.loadPayment(ctx, data)
	if err != nil {
		return err
	}
	title := listingTitle(p.Listing)
	w.sendEmail(ctx, to, "Payment failed",
		fmt.Sprintf("<h1>Payment Failed</h1><p>Hi %s,</p><p>Your payment of <b>%s</b> for %s did not go through. You can retry from your dashboard.</p>",
			to.Name, formatAmount(p), title))
	w.sendWhatsApp(ctx, to, notifications.TemplatePaymentFailed, []string{to.Name, formatAmount(p), title})
	return nil
}

func (w *NotificationWorker) paymentRefunded(ctx context.Context, data map[string]string) error {
	p, to, err := w.loadPayment(ctx, data)
	if err != nil {
		return err
	}
	refunded := p.Amount
	if p.RefundAmount != nil {
		refunded = *p.RefundAmount
	}
	w.sendEmail(ctx, to, "Refund initiated",
		fmt.Sprintf("<h1>Refund Initiated</h1><p>Hi %s,</p><p>A refund of <b>%s %.2f</b> has been initiated and should reach you in 5-7 business days.</p>",
			to.Name, p.Currency, refunded))
	return nil
}

func (w *NotificationWorker) leadCreated(ctx context.Context, data map[string]string) {
	to := recipient{Name: data["name"], Email: data["email"], Phone: data["phone"]}
	w.sendWhatsApp(ctx, to, notifications.TemplateInquiryReceived, []string{to.Name})
	w.notifyAdmin(ctx, "New inquiry received",
		fmt.Sprintf("<p>%s (%s, %s) sent an inquiry.</p>", to.Name, to.Email, to.Phone))
}

func (w *NotificationWorker) notifyAdmin(ctx context.Context, subject, html string) {
	if w.adminEmail == "" {
		return
	}
	w.sendEmail(ctx, recipient{Name: "Admin", Email: w.adminEmail}, subject, html)
}

func (w *NotificationWorker) sendEmail(ctx context.Context, to recipient, subject, html string) {
	if w.email == nil || to.Email == "" {
		return
	}
	if err := w.email.Send(ctx, to.Name, to.Email, subject, html); err != nil {
		logger.Log.WithError(err).WithField("to", to.Email).Error("failed to send email")
	}
}

func (w *NotificationWorker) sendWhatsApp(ctx context.Context, to recipient, template string, params []string) {
	if w.whatsapp == nil || to.Phone == "" {
		return
	}
	if _, err := w.whatsapp.SendTemplate(ctx, to.Phone, template, params); err != nil {
		logger.Log.WithError(err).WithField("template", template).Error("failed to send WhatsApp message")
	}
}
