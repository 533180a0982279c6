package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/notifications"
	"github.com/anjiri1684/estate_portal/services"
	"github.com/anjiri1684/estate_portal/testutil"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type sentEmail struct{ to, subject string }

type sentWhatsApp struct {
	to, template string
	params       []string
}

type recorder struct {
	mu       sync.Mutex
	emails   []sentEmail
	messages []sentWhatsApp
	feed     []interface{}
}

func (r *recorder) Send(_ context.Context, _, toEmail, subject, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, sentEmail{to: toEmail, subject: subject})
	return nil
}

func (r *recorder) SendTemplate(_ context.Context, to, template string, params []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, sentWhatsApp{to: to, template: template, params: params})
	return "wamid.1", nil
}

func (r *recorder) Broadcast(v interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feed = append(r.feed, v)
	return true
}

func encode(t *testing.T, key string, data map[string]string) []byte {
	t.Helper()
	b, err := json.Marshal(services.NewEvent(key, time.Now(), data))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestNotificationWorker_BookingConfirmed(t *testing.T) {
	db := testutil.NewTestDB(t)
	listing := testutil.CreateListing(t, db, "Green Acres Plot 12")
	user := testutil.CreateUser(t, db, "asha@example.com", models.RoleCustomer)
	phone := "+91 98765 43210"
	if err := db.Model(&user).Update("phone", phone).Error; err != nil {
		t.Fatalf("update phone: %v", err)
	}
	slot := "11:00"
	booking := models.Booking{
		ListingID:   listing.ID,
		UserID:      &user.ID,
		BookingDate: datatypes.Date(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)),
		BookingTime: &slot,
		BookingType: models.BookingSiteVisit,
		Status:      models.BookingConfirmed,
		Attendees:   2,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("create booking: %v", err)
	}

	rec := &recorder{}
	w := NewNotificationWorker(db, rec, rec, rec, "")
	body := encode(t, services.EventBookingConfirmed, map[string]string{"booking_id": booking.ID.String()})
	if err := w.Handle(context.Background(), services.EventBookingConfirmed, body); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(rec.emails) != 1 || rec.emails[0].to != "asha@example.com" {
		t.Fatalf("expected one email to the customer, got %+v", rec.emails)
	}
	if len(rec.messages) != 1 {
		t.Fatalf("expected one WhatsApp message, got %d", len(rec.messages))
	}
	msg := rec.messages[0]
	if msg.template != notifications.TemplateSiteVisitConfirmation || msg.to != phone {
		t.Fatalf("unexpected WhatsApp message %+v", msg)
	}
	if msg.params[1] != "Green Acres Plot 12" || msg.params[3] != "11:00" {
		t.Fatalf("unexpected template params %v", msg.params)
	}
	if len(rec.feed) != 1 {
		t.Fatalf("expected event on the admin feed, got %d", len(rec.feed))
	}
}

func TestNotificationWorker_Payments(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.CreateUser(t, db, "ravi@example.com", models.RoleCustomer)
	invoice := "INV-1-ABCDEF"
	payment := models.Payment{
		Amount:          50000,
		Currency:        "INR",
		PaymentType:     models.PaymentForToken,
		Status:          models.PaymentCompleted,
		RazorpayOrderID: "order_1",
		InvoiceNumber:   &invoice,
		UserID:          user.ID,
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}

	rec := &recorder{}
	w := NewNotificationWorker(db, rec, rec, rec, "admin@example.com")
	data := map[string]string{"payment_id": payment.ID.String()}

	if err := w.Handle(context.Background(), services.EventPaymentCompleted, encode(t, services.EventPaymentCompleted, data)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(rec.emails) != 1 || rec.emails[0].subject != "Payment received" {
		t.Fatalf("unexpected emails %+v", rec.emails)
	}
	if len(rec.messages) != 0 {
		t.Fatalf("expected no WhatsApp without a phone number, got %+v", rec.messages)
	}

	failed := map[string]string{"payment_id": payment.ID.String(), "booking_id": uuid.NewString()}
	if err := w.Handle(context.Background(), services.EventBookingConfirmFailed, encode(t, services.EventBookingConfirmFailed, failed)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if last := rec.emails[len(rec.emails)-1]; last.to != "admin@example.com" {
		t.Fatalf("expected admin alert, got %+v", last)
	}
}

func TestNotificationWorker_LeadAndEdgeCases(t *testing.T) {
	db := testutil.NewTestDB(t)
	rec := &recorder{}
	w := NewNotificationWorker(db, rec, rec, rec, "admin@example.com")
	ctx := context.Background()

	t.Run("lead created", func(t *testing.T) {
		data := map[string]string{"lead_id": uuid.NewString(), "name": "Meera", "email": "meera@example.com", "phone": "919900112233"}
		if err := w.Handle(ctx, services.EventLeadCreated, encode(t, services.EventLeadCreated, data)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(rec.messages) != 1 || rec.messages[0].template != notifications.TemplateInquiryReceived {
			t.Fatalf("unexpected messages %+v", rec.messages)
		}
		if len(rec.emails) != 1 || rec.emails[0].to != "admin@example.com" {
			t.Fatalf("expected admin email, got %+v", rec.emails)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		if err := w.Handle(ctx, "booking.created", []byte("{not json")); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed, got %v", err)
		}
	})

	t.Run("missing record is acknowledged", func(t *testing.T) {
		data := map[string]string{"booking_id": uuid.NewString()}
		if err := w.Handle(ctx, services.EventBookingCreated, encode(t, services.EventBookingCreated, data)); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	})

	t.Run("unknown event", func(t *testing.T) {
		if err := w.Handle(ctx, "listing.updated", encode(t, "listing.updated", nil)); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	})
}
