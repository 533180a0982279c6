package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anjiri1684/estate_portal/clock"
	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/anjiri1684/estate_portal/services")

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
	maxAttendees = 10
)

// bookingSortColumns maps accepted sortBy values to columns.
var bookingSortColumns = map[string]string{
	"booking_date": "booking_date",
	"booking_time": "booking_time",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"status":       "status",
	"booking_type": "booking_type",
	"attendees":    "attendees",
}

type BookingService struct {
	db     *gorm.DB
	clock  clock.Clock
	events EventPublisher
}

func NewBookingService(db *gorm.DB, clk clock.Clock, events EventPublisher) *BookingService {
	return &BookingService{db: db, clock: clk, events: events}
}

type CreateBookingInput struct {
	ListingID   uuid.UUID
	BookingDate string
	BookingTime *string
	BookingType models.BookingType
	LeadID      *uuid.UUID
	UserID      *uuid.UUID
	Notes       *string
	Attendees   int
}

type BookingFilter struct {
	Status      models.BookingStatus
	BookingType models.BookingType
	ListingID   *uuid.UUID
	UserID      *uuid.UUID
	StartDate   string
	EndDate     string
	Page        int
	Limit       int
	SortBy      string
	SortOrder   string
}

type BookingPage struct {
	Data       []models.Booking `json:"data"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
}

type UpdateBookingInput struct {
	BookingDate        *string
	BookingTime        *string
	BookingType        *models.BookingType
	Status             *models.BookingStatus
	Notes              *string
	Attendees          *int
	CancellationReason *string
}

type BookingStatistics struct {
	TotalBookings     int64 `json:"totalBookings"`
	PendingBookings   int64 `json:"pendingBookings"`
	CompletedBookings int64 `json:"completedBookings"`
	CancelledBookings int64 `json:"cancelledBookings"`
}

func (s *BookingService) Create(ctx context.Context, in CreateBookingInput) (*models.Booking, error) {
	ctx, span := tracer.Start(ctx, "BookingService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("listing_id", in.ListingID.String()))

	day, err := ParseBookingDate(in.BookingDate)
	if err != nil {
		return nil, err
	}
	if in.BookingTime != nil && !IsVisitSlot(*in.BookingTime) {
		return nil, fmt.Errorf("%w: %q is not a bookable time slot", ErrBadRequest, *in.BookingTime)
	}
	bookingType := in.BookingType
	if bookingType == "" {
		bookingType = models.BookingSiteVisit
	}
	if !IsValidBookingType(bookingType) {
		return nil, fmt.Errorf("%w: unknown booking type %q", ErrBadRequest, bookingType)
	}
	attendees := in.Attendees
	if attendees == 0 {
		attendees = 1
	}
	if attendees < 1 || attendees > maxAttendees {
		return nil, fmt.Errorf("%w: attendees must be between 1 and %d", ErrBadRequest, maxAttendees)
	}

	booking := models.Booking{
		ListingID:   in.ListingID,
		UserID:      in.UserID,
		LeadID:      in.LeadID,
		BookingDate: day,
		BookingTime: in.BookingTime,
		BookingType: bookingType,
		Status:      models.BookingPending,
		Notes:       in.Notes,
		Attendees:   attendees,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listings int64
		if err := tx.Model(&models.Listing{}).Where("id = ?", in.ListingID).Count(&listings).Error; err != nil {
			return err
		}
		if listings == 0 {
			return fmt.Errorf("%w: listing %s", ErrNotFound, in.ListingID)
		}

		if in.BookingTime != nil {
			taken, err := slotTaken(tx, in.ListingID, day, *in.BookingTime, uuid.Nil)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: this time slot is already booked", ErrConflict)
			}
		}
		return tx.Create(&booking).Error
	})
	if err != nil {
		return nil, classifyDBError(slotConflict(err), "create booking")
	}

	logger.Log.WithField("booking_id", booking.ID).Info("booking created")
	publish(ctx, s.events, EventBookingCreated, s.clock.Now(), bookingEventData(&booking))
	return s.Get(ctx, booking.ID)
}

func (s *BookingService) List(ctx context.Context, f BookingFilter) (*BookingPage, error) {
	page := f.Page
	if page < 1 {
		page = defaultPage
	}
	limit := f.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	sortBy := f.SortBy
	if sortBy == "" {
		sortBy = "booking_date"
	}
	column, ok := bookingSortColumns[sortBy]
	if !ok {
		return nil, fmt.Errorf("%w: cannot sort by %q", ErrBadRequest, f.SortBy)
	}
	order := strings.ToUpper(f.SortOrder)
	if order == "" {
		order = "DESC"
	}
	if order != "ASC" && order != "DESC" {
		return nil, fmt.Errorf("%w: sortOrder must be ASC or DESC", ErrBadRequest)
	}

	query := s.db.WithContext(ctx).Model(&models.Booking{})
	if f.Status != "" {
		if !IsValidBookingStatus(f.Status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, f.Status)
		}
		query = query.Where("status = ?", f.Status)
	}
	if f.BookingType != "" {
		if !IsValidBookingType(f.BookingType) {
			return nil, fmt.Errorf("%w: unknown booking type %q", ErrBadRequest, f.BookingType)
		}
		query = query.Where("booking_type = ?", f.BookingType)
	}
	if f.ListingID != nil {
		query = query.Where("listing_id = ?", *f.ListingID)
	}
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.StartDate != "" {
		start, err := ParseBookingDate(f.StartDate)
		if err != nil {
			return nil, err
		}
		query = query.Where("booking_date >= ?", start)
	}
	if f.EndDate != "" {
		end, err := ParseBookingDate(f.EndDate)
		if err != nil {
			return nil, err
		}
		query = query.Where("booking_date <= ?", end)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, classifyDBError(err, "count bookings")
	}

	bookings := []models.Booking{}
	err := query.
		Preload("Listing").Preload("User").Preload("Lead").
		Order(column + " " + order).
		Offset((page - 1) * limit).Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, classifyDBError(err, "list bookings")
	}

	return &BookingPage{
		Data:       bookings,
		Total:      total,
		Page:       page,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func (s *BookingService) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).
		Preload("Listing").Preload("User").Preload("Lead").
		First(&booking, "id = ?", id).Error
	if err != nil {
		return nil, classifyDBError(err, fmt.Sprintf("booking with ID %s", id))
	}
	return &booking, nil
}

func (s *BookingService) Update(ctx context.Context, id uuid.UUID, in UpdateBookingInput) (*models.Booking, error) {
	ctx, span := tracer.Start(ctx, "BookingService.Update")
	defer span.End()

	var before, after models.BookingStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Booking
		if err := tx.First(&current, "id = ?", id).Error; err != nil {
			return err
		}
		before = current.Status

		updates := map[string]any{}
		target := current

		if in.BookingDate != nil {
			day, err := ParseBookingDate(*in.BookingDate)
			if err != nil {
				return err
			}
			updates["booking_date"] = day
			target.BookingDate = day
		}
		if in.BookingTime != nil {
			if !IsVisitSlot(*in.BookingTime) {
				return fmt.Errorf("%w: %q is not a bookable time slot", ErrBadRequest, *in.BookingTime)
			}
			updates["booking_time"] = *in.BookingTime
			target.BookingTime = in.BookingTime
		}
		if in.BookingType != nil {
			if !IsValidBookingType(*in.BookingType) {
				return fmt.Errorf("%w: unknown booking type %q", ErrBadRequest, *in.BookingType)
			}
			updates["booking_type"] = *in.BookingType
		}
		if in.Notes != nil {
			updates["notes"] = *in.Notes
		}
		if in.Attendees != nil {
			if *in.Attendees < 1 || *in.Attendees > maxAttendees {
				return fmt.Errorf("%w: attendees must be between 1 and %d", ErrBadRequest, maxAttendees)
			}
			updates["attendees"] = *in.Attendees
		}
		if in.CancellationReason != nil {
			updates["cancellation_reason"] = *in.CancellationReason
		}
		if in.Status != nil {
			if !IsValidBookingStatus(*in.Status) {
				return fmt.Errorf("%w: unknown status %q", ErrBadRequest, *in.Status)
			}
			if !CanTransitionBooking(current.Status, *in.Status) {
				return fmt.Errorf("%w: cannot change booking from %s to %s", ErrConflict, current.Status, *in.Status)
			}
			updates["status"] = *in.Status
			target.Status = *in.Status
			if *in.Status == models.BookingCancelled {
				updates["cancelled_at"] = s.clock.Now()
			}
		}
		after = target.Status

		if len(updates) == 0 {
			return nil
		}
		if target.Status == models.BookingConfirmed && target.BookingTime != nil {
			taken, err := slotTaken(tx, target.ListingID, target.BookingDate, *target.BookingTime, id)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: this time slot is already booked", ErrConflict)
			}
		}
		return conditionalBookingUpdate(tx, id, current.Status, updates)
	})
	if err != nil {
		return nil, classifyDBError(slotConflict(err), fmt.Sprintf("booking with ID %s", id))
	}

	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if before != after {
		s.emitStatusChange(ctx, booking)
	}
	return booking, nil
}

func (s *BookingService) Delete(ctx context.Context, id uuid.UUID) error {
	return classifyDBError(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		if err := tx.First(&booking, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&booking).Error
	}), fmt.Sprintf("booking with ID %s", id))
}

// Confirm re-checks the slot at confirm time; the partial unique index on
// confirmed slots is the final arbiter when two confirms race.
func (s *BookingService) Confirm(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	ctx, span := tracer.Start(ctx, "BookingService.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", id.String()))

	return s.transition(ctx, id, models.BookingConfirmed, nil)
}

func (s *BookingService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Booking, error) {
	return s.transition(ctx, id, models.BookingCancelled, map[string]any{
		"cancellation_reason": reason,
		"cancelled_at":        s.clock.Now(),
	})
}

func (s *BookingService) Statistics(ctx context.Context) (*BookingStatistics, error) {
	var stats BookingStatistics
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.Booking{}).Count(&stats.TotalBookings).Error; err != nil {
		return nil, classifyDBError(err, "count bookings")
	}
	counts := []struct {
		status models.BookingStatus
		dst    *int64
	}{
		{models.BookingPending, &stats.PendingBookings},
		{models.BookingCompleted, &stats.CompletedBookings},
		{models.BookingCancelled, &stats.CancelledBookings},
	}
	for _, c := range counts {
		if err := db.Model(&models.Booking{}).Where("status = ?", c.status).Count(c.dst).Error; err != nil {
			return nil, classifyDBError(err, "count bookings")
		}
	}
	return &stats, nil
}

// ExpireStale moves pending bookings created before cutoff to expired.
func (s *BookingService) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("status = ? AND created_at < ?", models.BookingPending, cutoff).
		Update("status", models.BookingExpired)
	if res.Error != nil {
		return 0, classifyDBError(res.Error, "expire bookings")
	}
	return res.RowsAffected, nil
}

func (s *BookingService) transition(ctx context.Context, id uuid.UUID, to models.BookingStatus, extra map[string]any) (*models.Booking, error) {
	var from models.BookingStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Booking
		if err := tx.First(&current, "id = ?", id).Error; err != nil {
			return err
		}
		from = current.Status
		if !CanTransitionBooking(current.Status, to) {
			return fmt.Errorf("%w: cannot change booking from %s to %s", ErrConflict, current.Status, to)
		}
		if to == models.BookingConfirmed && current.BookingTime != nil {
			taken, err := slotTaken(tx, current.ListingID, current.BookingDate, *current.BookingTime, current.ID)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: this time slot is already booked", ErrConflict)
			}
		}

		updates := map[string]any{"status": to}
		for k, v := range extra {
			updates[k] = v
		}
		return conditionalBookingUpdate(tx, id, current.Status, updates)
	})
	if err != nil {
		return nil, classifyDBError(slotConflict(err), fmt.Sprintf("booking with ID %s", id))
	}

	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if from != to || to == models.BookingCancelled {
		s.emitStatusChange(ctx, booking)
	}
	return booking, nil
}

func (s *BookingService) emitStatusChange(ctx context.Context, b *models.Booking) {
	entry := logger.Log.WithField("booking_id", b.ID).WithField("status", b.Status)
	switch b.Status {
	case models.BookingConfirmed:
		entry.Info("booking confirmed")
		publish(ctx, s.events, EventBookingConfirmed, s.clock.Now(), bookingEventData(b))
	case models.BookingCancelled:
		entry.Info("booking cancelled")
		publish(ctx, s.events, EventBookingCancelled, s.clock.Now(), bookingEventData(b))
	default:
		entry.Info("booking status changed")
	}
}

func conditionalBookingUpdate(tx *gorm.DB, id uuid.UUID, expected models.BookingStatus, updates map[string]any) error {
	res := tx.Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: booking was modified concurrently", ErrConflict)
	}
	return nil
}

func slotTaken(tx *gorm.DB, listingID uuid.UUID, day datatypes.Date, slot string, exclude uuid.UUID) (bool, error) {
	var count int64
	q := tx.Model(&models.Booking{}).
		Where("listing_id = ? AND booking_date = ? AND booking_time = ? AND status = ?",
			listingID, day, slot, models.BookingConfirmed)
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func bookingEventData(b *models.Booking) map[string]string {
	data := map[string]string{
		"booking_id":   b.ID.String(),
		"listing_id":   b.ListingID.String(),
		"booking_date": time.Time(b.BookingDate).Format(dateLayout),
		"status":       string(b.Status),
	}
	if b.BookingTime != nil {
		data["booking_time"] = *b.BookingTime
	}
	if b.UserID != nil {
		data["user_id"] = b.UserID.String()
	}
	if b.LeadID != nil {
		data["lead_id"] = b.LeadID.String()
	}
	if b.CancellationReason != nil {
		data["reason"] = *b.CancellationReason
	}
	return data
}

// slotConflict turns a violation of the confirmed-slot index into the
// user-facing conflict.
func slotConflict(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: this time slot is already booked", ErrConflict)
	}
	return err
}

// classifyDBError maps persistence errors onto the service taxonomy and keeps
// already-classified errors untouched.
func classifyDBError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrInternal):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: duplicate %s", ErrConflict, what)
	default:
		logger.Log.WithError(err).Error(what)
		return fmt.Errorf("%w: %s", ErrInternal, what)
	}
}
