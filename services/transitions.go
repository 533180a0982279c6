package services

import "github.com/anjiri1684/estate_portal/models"

var bookingTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:     {models.BookingConfirmed, models.BookingCancelled, models.BookingRescheduled, models.BookingExpired},
	models.BookingConfirmed:   {models.BookingCompleted, models.BookingCancelled, models.BookingRescheduled},
	models.BookingRescheduled: {models.BookingPending, models.BookingConfirmed, models.BookingCancelled},
}

var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentPending:   {models.PaymentCompleted, models.PaymentFailed, models.PaymentExpired},
	models.PaymentFailed:    {models.PaymentCompleted},
	models.PaymentExpired:   {models.PaymentCompleted},
	models.PaymentCompleted: {models.PaymentRefunding},
	// refunding is held only while the gateway refund call is in flight.
	models.PaymentRefunding: {models.PaymentRefunded, models.PaymentCompleted},
}

// CanTransitionBooking reports whether a booking may move from one status to
// another. Staying in the same status is always allowed.
func CanTransitionBooking(from, to models.BookingStatus) bool {
	if from == to {
		return true
	}
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionPayment(from, to models.PaymentStatus) bool {
	if from == to {
		return true
	}
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsValidBookingStatus(s models.BookingStatus) bool {
	switch s {
	case models.BookingPending, models.BookingConfirmed, models.BookingCompleted,
		models.BookingCancelled, models.BookingRescheduled, models.BookingExpired:
		return true
	}
	return false
}

func IsValidBookingType(t models.BookingType) bool {
	switch t {
	case models.BookingSiteVisit, models.BookingConsultation, models.BookingDocumentation:
		return true
	}
	return false
}
