package handlers

import (
	"strconv"

	"github.com/anjiri1684/estate_portal/middleware"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CreateBookingRequest struct {
	ListingID   string  `json:"listingId" validate:"required,uuid"`
	BookingDate string  `json:"bookingDate" validate:"required"`
	BookingTime *string `json:"bookingTime,omitempty"`
	BookingType string  `json:"bookingType,omitempty" validate:"omitempty,oneof=site_visit consultation documentation"`
	LeadID      *string `json:"leadId,omitempty" validate:"omitempty,uuid"`
	Notes       *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Attendees   int     `json:"attendees,omitempty"`
}

type UpdateBookingRequest struct {
	BookingDate        *string `json:"bookingDate,omitempty"`
	BookingTime        *string `json:"bookingTime,omitempty"`
	BookingType        *string `json:"bookingType,omitempty"`
	Status             *string `json:"status,omitempty"`
	Notes              *string `json:"notes,omitempty"`
	Attendees          *int    `json:"attendees,omitempty"`
	CancellationReason *string `json:"cancellationReason,omitempty"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func CreateBooking(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req CreateBookingRequest
	if err := bindJSON(c, &req); err != nil {
		return badRequest(c, err)
	}

	in := services.CreateBookingInput{
		ListingID:   uuid.MustParse(req.ListingID),
		BookingDate: req.BookingDate,
		BookingTime: req.BookingTime,
		BookingType: models.BookingType(req.BookingType),
		UserID:      &userID,
		Notes:       req.Notes,
		Attendees:   req.Attendees,
	}
	if req.LeadID != nil {
		leadID := uuid.MustParse(*req.LeadID)
		in.LeadID = &leadID
	}

	booking, err := deps.Bookings.Create(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(booking)
}

func ListBookings(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))

	f := services.BookingFilter{
		Status:      models.BookingStatus(c.Query("status")),
		BookingType: models.BookingType(c.Query("booking_type")),
		StartDate:   c.Query("startDate"),
		EndDate:     c.Query("endDate"),
		Page:        page,
		Limit:       limit,
		SortBy:      c.Query("sortBy"),
		SortOrder:   c.Query("sortOrder"),
	}
	if raw := c.Query("listingId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid listing ID"})
		}
		f.ListingID = &id
	}

	if middleware.IsAdmin(c) {
		if raw := c.Query("userId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user ID"})
			}
			f.UserID = &id
		}
	} else {
		userID, err := middleware.CurrentUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}
		f.UserID = &userID
	}

	result, err := deps.Bookings.List(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

func GetAvailableSlots(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Query("listingId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "listingId is required"})
	}
	date := c.Query("date")
	if date == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "date is required"})
	}

	slots, err := deps.Slots.AvailableSlots(c.UserContext(), listingID, date)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"date": date, "availableSlots": slots})
}

// loadVisibleBooking returns the booking when the caller owns it or is an
// admin. Anyone else gets a 404 so ids are not leaked.
func loadVisibleBooking(c *fiber.Ctx) (*models.Booking, bool, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID"})
	}
	booking, err := deps.Bookings.Get(c.UserContext(), id)
	if err != nil {
		return nil, false, respondError(c, err)
	}
	if middleware.IsAdmin(c) {
		return booking, true, nil
	}
	userID, err := middleware.CurrentUserID(c)
	if err != nil || booking.UserID == nil || *booking.UserID != userID {
		return nil, false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
	}
	return booking, true, nil
}

func GetBooking(c *fiber.Ctx) error {
	booking, ok, err := loadVisibleBooking(c)
	if !ok {
		return err
	}
	return c.JSON(booking)
}

func UpdateBooking(c *fiber.Ctx) error {
	booking, ok, err := loadVisibleBooking(c)
	if !ok {
		return err
	}

	var req UpdateBookingRequest
	if err := bindJSON(c, &req); err != nil {
		return badRequest(c, err)
	}
	if req.Status != nil && !middleware.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only admins can change booking status"})
	}

	in := services.UpdateBookingInput{
		BookingDate:        req.BookingDate,
		BookingTime:        req.BookingTime,
		Notes:              req.Notes,
		Attendees:          req.Attendees,
		CancellationReason: req.CancellationReason,
	}
	if req.BookingType != nil {
		t := models.BookingType(*req.BookingType)
		in.BookingType = &t
	}
	if req.Status != nil {
		s := models.BookingStatus(*req.Status)
		in.Status = &s
	}

	updated, err := deps.Bookings.Update(c.UserContext(), booking.ID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(updated)
}

func DeleteBooking(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID"})
	}
	if err := deps.Bookings.Delete(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func ConfirmBooking(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID"})
	}
	booking, err := deps.Bookings.Confirm(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(booking)
}

func CancelBooking(c *fiber.Ctx) error {
	booking, ok, err := loadVisibleBooking(c)
	if !ok {
		return err
	}

	var req CancelBookingRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return badRequest(c, err)
		}
	}

	cancelled, err := deps.Bookings.Cancel(c.UserContext(), booking.ID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cancelled)
}

func GetBookingStatistics(c *fiber.Ctx) error {
	stats, err := deps.Bookings.Statistics(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}
