package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingPending     BookingStatus = "pending"
	BookingConfirmed   BookingStatus = "confirmed"
	BookingCompleted   BookingStatus = "completed"
	BookingCancelled   BookingStatus = "cancelled"
	BookingRescheduled BookingStatus = "rescheduled"
	BookingExpired     BookingStatus = "expired"
)

type BookingType string

const (
	BookingSiteVisit     BookingType = "site_visit"
	BookingConsultation  BookingType = "consultation"
	BookingDocumentation BookingType = "documentation"
)

type Booking struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ListingID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"listing_id"`
	UserID      *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	LeadID      *uuid.UUID     `gorm:"type:uuid" json:"lead_id,omitempty"`
	BookingDate datatypes.Date `gorm:"not null;index" json:"booking_date"`
	BookingTime *string        `gorm:"size:5" json:"booking_time,omitempty"`
	BookingType BookingType    `gorm:"size:20;not null;default:'site_visit'" json:"booking_type"`
	Status      BookingStatus  `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Notes       *string        `gorm:"type:text" json:"notes,omitempty"`
	Attendees   int            `gorm:"not null;default:1" json:"attendees"`

	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason *string    `gorm:"type:text" json:"cancellation_reason,omitempty"`
	ReminderSentAt     *time.Time `json:"-"`

	Listing *Listing `gorm:"foreignkey:ListingID" json:"listing,omitempty"`
	User    *User    `gorm:"foreignkey:UserID" json:"user,omitempty"`
	Lead    *Lead    `gorm:"foreignkey:LeadID" json:"lead,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Contact returns who to notify about the booking: the account holder when
// there is one, otherwise the lead it was made for.
func (b *Booking) Contact() (name, email, phone string) {
	switch {
	case b.User != nil:
		if b.User.Phone != nil {
			phone = *b.User.Phone
		}
		return b.User.FullName, b.User.Email, phone
	case b.Lead != nil:
		return b.Lead.Name, b.Lead.Email, b.Lead.Phone
	}
	return "", "", ""
}
