package services

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/estate_portal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// VisitSlots is the fixed, ordered set of daily site-visit slots.
var VisitSlots = []string{"09:00", "10:00", "11:00", "12:00", "14:00", "15:00", "16:00", "17:00", "18:00"}

func IsVisitSlot(s string) bool {
	for _, slot := range VisitSlots {
		if slot == s {
			return true
		}
	}
	return false
}

// ParseBookingDate accepts a calendar date (2006-01-02) or an RFC3339 timestamp
// and returns midnight UTC of that day.
func ParseBookingDate(s string) (datatypes.Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		ts, err2 := time.Parse(time.RFC3339, s)
		if err2 != nil {
			return datatypes.Date{}, fmt.Errorf("%w: invalid date %q", ErrBadRequest, s)
		}
		t = ts
	}
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)), nil
}

type SlotChecker struct {
	db *gorm.DB
}

func NewSlotChecker(db *gorm.DB) *SlotChecker {
	return &SlotChecker{db: db}
}

// AvailableSlots returns VisitSlots minus the slots that already hold a
// confirmed booking for the listing on that date. The listing is not validated.
func (s *SlotChecker) AvailableSlots(ctx context.Context, listingID uuid.UUID, date string) ([]string, error) {
	day, err := ParseBookingDate(date)
	if err != nil {
		return nil, err
	}

	var booked []string
	err = s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("listing_id = ? AND booking_date = ? AND status = ? AND booking_time IS NOT NULL",
			listingID, day, models.BookingConfirmed).
		Pluck("booking_time", &booked).Error
	if err != nil {
		return nil, fmt.Errorf("%w: load booked slots: %v", ErrInternal, err)
	}

	taken := make(map[string]struct{}, len(booked))
	for _, t := range booked {
		taken[t] = struct{}{}
	}
	available := make([]string, 0, len(VisitSlots))
	for _, slot := range VisitSlots {
		if _, ok := taken[slot]; !ok {
			available = append(available, slot)
		}
	}
	return available, nil
}
