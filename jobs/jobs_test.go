package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anjiri1684/estate_portal/clock"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/testutil"
	"github.com/robfig/cron/v3"
	"gorm.io/datatypes"
)

type fakeExpirer struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakeExpirer) ExpireStale(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

type fakeSender struct {
	emails    []string
	templates []string
}

func (f *fakeSender) Send(_ context.Context, _, toEmail, _, _ string) error {
	f.emails = append(f.emails, toEmail)
	return nil
}

func (f *fakeSender) SendTemplate(_ context.Context, _, template string, _ []string) (string, error) {
	f.templates = append(f.templates, template)
	return "wamid", nil
}

func TestExpireStalePending(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bookings := &fakeExpirer{n: 2}
	payments := &fakeExpirer{err: errors.New("db down")}
	r := &Runner{
		Bookings:   bookings,
		Payments:   payments,
		Clock:      clock.NewManual(now),
		BookingTTL: 48 * time.Hour,
		PaymentTTL: 30 * time.Minute,
	}

	err := r.ExpireStalePending(context.Background())
	if err == nil || err.Error() != "db down" {
		t.Fatalf("expected payment sweep error, got %v", err)
	}
	if !bookings.cutoff.Equal(now.Add(-48 * time.Hour)) {
		t.Fatalf("unexpected booking cutoff %v", bookings.cutoff)
	}
	if !payments.cutoff.Equal(now.Add(-30 * time.Minute)) {
		t.Fatalf("unexpected payment cutoff %v", payments.cutoff)
	}
}

func TestSendVisitReminders(t *testing.T) {
	db := testutil.NewTestDB(t)
	listing := testutil.CreateListing(t, db, "Lakeview Villa")
	user := testutil.CreateUser(t, db, "kiran@example.com", models.RoleCustomer)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	day := func(offset int) datatypes.Date {
		return datatypes.Date(time.Date(2025, 6, 1+offset, 0, 0, 0, 0, time.UTC))
	}
	slot := "10:00"
	seed := []models.Booking{
		{ListingID: listing.ID, UserID: &user.ID, BookingDate: day(1), BookingTime: &slot, Status: models.BookingConfirmed, BookingType: models.BookingSiteVisit, Attendees: 1},
		{ListingID: listing.ID, UserID: &user.ID, BookingDate: day(1), Status: models.BookingPending, BookingType: models.BookingSiteVisit, Attendees: 1},
		{ListingID: listing.ID, UserID: &user.ID, BookingDate: day(2), Status: models.BookingConfirmed, BookingType: models.BookingSiteVisit, Attendees: 1},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("create booking: %v", err)
		}
	}

	sender := &fakeSender{}
	r := &Runner{DB: db, Email: sender, WhatsApp: sender, Clock: clock.NewManual(now)}

	sent, err := r.SendVisitReminders(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sent != 1 || len(sender.emails) != 1 || sender.emails[0] != "kiran@example.com" {
		t.Fatalf("expected one reminder, got sent=%d emails=%v", sent, sender.emails)
	}
	if len(sender.templates) != 0 {
		t.Fatalf("expected no WhatsApp without a phone, got %v", sender.templates)
	}

	var stamped models.Booking
	if err := db.First(&stamped, "id = ?", seed[0].ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stamped.ReminderSentAt == nil {
		t.Fatalf("expected reminder_sent_at to be stamped")
	}

	sent, err = r.SendVisitReminders(context.Background())
	if err != nil || sent != 0 {
		t.Fatalf("expected no second reminder, got sent=%d err=%v", sent, err)
	}
}

func TestSchedule(t *testing.T) {
	c := cron.New()
	r := &Runner{}
	if err := r.Schedule(c, "*/10 * * * *", "0 9 * * *"); err != nil {
		t.Fatalf("expected valid specs, got %v", err)
	}
	if len(c.Entries()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(c.Entries()))
	}
	if err := r.Schedule(cron.New(), "not a cron expression", "0 9 * * *"); err == nil {
		t.Fatalf("expected invalid cron expression to fail")
	}
}
