package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunding PaymentStatus = "refunding"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentExpired   PaymentStatus = "expired"
)

type PaymentType string

const (
	PaymentForBooking     PaymentType = "booking"
	PaymentForToken       PaymentType = "token"
	PaymentForInstallment PaymentType = "installment"
	PaymentForFull        PaymentType = "full"
)

type Payment struct {
	ID          uuid.UUID     `gorm:"type:uuid;primary_key" json:"id"`
	Amount      float64       `gorm:"type:numeric(15,2);not null" json:"amount"`
	Currency    string        `gorm:"size:10;not null;default:'INR'" json:"currency"`
	PaymentType PaymentType   `gorm:"size:20;not null" json:"payment_type"`
	Description *string       `gorm:"type:text" json:"description,omitempty"`
	Status      PaymentStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`

	RazorpayOrderID   string  `gorm:"size:255;not null;unique" json:"razorpay_order_id"`
	RazorpayPaymentID *string `gorm:"size:255;unique" json:"razorpay_payment_id,omitempty"`
	RazorpaySignature *string `gorm:"size:500" json:"-"`
	RazorpayRefundID  *string `gorm:"size:255" json:"razorpay_refund_id,omitempty"`
	PaymentMethod     *string `gorm:"size:50" json:"payment_method,omitempty"`
	InvoiceNumber     *string `gorm:"size:100;unique" json:"invoice_number,omitempty"`
	ReceiptURL        *string `gorm:"type:text" json:"receipt_url,omitempty"`

	RefundAmount *float64   `gorm:"type:numeric(15,2)" json:"refund_amount,omitempty"`
	RefundReason *string    `gorm:"type:text" json:"refund_reason,omitempty"`
	RefundedAt   *time.Time `json:"refunded_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	BookingID *uuid.UUID `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	ListingID *uuid.UUID `gorm:"type:uuid" json:"listing_id,omitempty"`

	User    *User    `gorm:"foreignkey:UserID" json:"user,omitempty"`
	Booking *Booking `gorm:"foreignkey:BookingID" json:"booking,omitempty"`
	Listing *Listing `gorm:"foreignkey:ListingID" json:"listing,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
