package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/estate_portal/clock"
	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/payments"
	"github.com/anjiri1684/estate_portal/utils"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const defaultCurrency = "INR"

// InvoiceIssuer renders and stores an invoice for a completed payment and
// returns its public URL.
type InvoiceIssuer interface {
	Issue(ctx context.Context, payment *models.Payment) (string, error)
}

type PaymentService struct {
	db          *gorm.DB
	gateway     payments.Gateway
	bookings    *BookingService
	clock       clock.Clock
	events      EventPublisher
	invoices    InvoiceIssuer
	autoConfirm bool
}

type PaymentOption func(*PaymentService)

// WithAutoConfirm confirms the linked booking once its payment completes.
func WithAutoConfirm(enabled bool) PaymentOption {
	return func(s *PaymentService) { s.autoConfirm = enabled }
}

func WithInvoices(issuer InvoiceIssuer) PaymentOption {
	return func(s *PaymentService) { s.invoices = issuer }
}

func NewPaymentService(db *gorm.DB, gateway payments.Gateway, bookings *BookingService, clk clock.Clock, events EventPublisher, opts ...PaymentOption) *PaymentService {
	s := &PaymentService{
		db:       db,
		gateway:  gateway,
		bookings: bookings,
		clock:    clk,
		events:   events,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateOrderInput struct {
	Amount      float64
	Currency    string
	PaymentType models.PaymentType
	Description *string
	BookingID   *uuid.UUID
	ListingID   *uuid.UUID
	UserID      uuid.UUID
}

type OrderResult struct {
	PaymentID uuid.UUID `json:"paymentId"`
	OrderID   string    `json:"orderId"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Receipt   string    `json:"receipt"`
}

type VerifyPaymentInput struct {
	OrderID   string
	PaymentID string
	Signature string
	UserID    uuid.UUID
}

type PaymentFilter struct {
	UserID *uuid.UUID
	Status models.PaymentStatus
}

func IsValidPaymentType(t models.PaymentType) bool {
	switch t {
	case models.PaymentForBooking, models.PaymentForToken, models.PaymentForInstallment, models.PaymentForFull:
		return true
	}
	return false
}

func IsValidPaymentStatus(s models.PaymentStatus) bool {
	switch s {
	case models.PaymentPending, models.PaymentCompleted, models.PaymentFailed,
		models.PaymentRefunding, models.PaymentRefunded, models.PaymentExpired:
		return true
	}
	return false
}

func (s *PaymentService) CreatePaymentOrder(ctx context.Context, in CreateOrderInput) (*OrderResult, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.CreatePaymentOrder")
	defer span.End()

	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrBadRequest)
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = defaultCurrency
	}
	if !IsValidPaymentType(in.PaymentType) {
		return nil, fmt.Errorf("%w: unknown payment type %q", ErrBadRequest, in.PaymentType)
	}

	listingID := in.ListingID
	if in.BookingID != nil {
		var booking models.Booking
		if err := s.db.WithContext(ctx).First(&booking, "id = ?", *in.BookingID).Error; err != nil {
			return nil, classifyDBError(err, fmt.Sprintf("booking with ID %s", *in.BookingID))
		}
		if listingID == nil {
			listingID = &booking.ListingID
		}
	}

	receipt := utils.ReceiptNumber(s.clock.Now(), in.UserID)
	notes := map[string]string{"user_id": in.UserID.String()}
	if in.BookingID != nil {
		notes["booking_id"] = in.BookingID.String()
	}
	if listingID != nil {
		notes["listing_id"] = listingID.String()
	}

	order, err := s.gateway.CreateOrder(ctx, in.Amount, currency, receipt, notes)
	if err != nil {
		return nil, fmt.Errorf("%w: order creation failed", ErrInternal)
	}

	payment := models.Payment{
		Amount:          in.Amount,
		Currency:        currency,
		PaymentType:     in.PaymentType,
		Description:     in.Description,
		Status:          models.PaymentPending,
		RazorpayOrderID: order.ID,
		UserID:          in.UserID,
		BookingID:       in.BookingID,
		ListingID:       listingID,
	}
	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, classifyDBError(err, "payment order")
	}

	span.SetAttributes(attribute.String("payment_id", payment.ID.String()))
	logger.Log.WithField("payment_id", payment.ID).WithField("razorpay_order_id", order.ID).Info("payment order created")

	return &OrderResult{
		PaymentID: payment.ID,
		OrderID:   order.ID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Receipt:   receipt,
	}, nil
}

// VerifyPayment checks the checkout signature and completes the payment.
// A failed or expired payment may still be completed; a completed one is only
// accepted again for the same gateway payment id.
func (s *PaymentService) VerifyPayment(ctx context.Context, in VerifyPaymentInput) (*models.Payment, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.VerifyPayment")
	defer span.End()
	span.SetAttributes(attribute.String("razorpay_order_id", in.OrderID))

	var payment models.Payment
	err := s.db.WithContext(ctx).First(&payment, "razorpay_order_id = ?", in.OrderID).Error
	if err != nil {
		return nil, classifyDBError(err, fmt.Sprintf("payment for order %s", in.OrderID))
	}
	if payment.UserID != in.UserID {
		return nil, fmt.Errorf("%w: payment for order %s", ErrNotFound, in.OrderID)
	}

	if !s.gateway.VerifySignature(in.OrderID, in.PaymentID, in.Signature) {
		if payment.Status == models.PaymentPending {
			if err := s.fail(ctx, &payment, "signature verification failed"); err != nil && !errors.Is(err, ErrConflict) {
				return nil, err
			}
		}
		logger.Log.WithField("payment_id", payment.ID).Warn("payment signature mismatch")
		return nil, ErrInvalidSignature
	}

	switch payment.Status {
	case models.PaymentCompleted:
		if payment.RazorpayPaymentID != nil && *payment.RazorpayPaymentID == in.PaymentID {
			return s.Get(ctx, payment.ID)
		}
		return nil, fmt.Errorf("%w: payment already completed", ErrConflict)
	case models.PaymentRefunding, models.PaymentRefunded:
		return nil, fmt.Errorf("%w: payment is %s", ErrConflict, payment.Status)
	}

	method := ""
	if details, err := s.gateway.FetchPayment(ctx, in.PaymentID); err != nil {
		logger.Log.WithError(err).WithField("payment_id", payment.ID).Warn("could not fetch payment method")
	} else {
		method = details.Method
	}

	signature := in.Signature
	if err := s.complete(ctx, &payment, in.PaymentID, &signature, method); err != nil {
		return nil, err
	}
	return s.Get(ctx, payment.ID)
}

func (s *PaymentService) List(ctx context.Context, f PaymentFilter) ([]models.Payment, error) {
	query := s.db.WithContext(ctx).Model(&models.Payment{})
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		if !IsValidPaymentStatus(f.Status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, f.Status)
		}
		query = query.Where("status = ?", f.Status)
	}

	list := []models.Payment{}
	err := query.Preload("User").Preload("Booking").Preload("Listing").
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, classifyDBError(err, "list payments")
	}
	return list, nil
}

func (s *PaymentService) Get(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Preload("User").Preload("Booking").Preload("Listing").
		First(&payment, "id = ?", id).Error
	if err != nil {
		return nil, classifyDBError(err, fmt.Sprintf("payment with ID %s", id))
	}
	return &payment, nil
}

// InitiateRefund refunds a completed payment. amount defaults to the full
// payment amount.
func (s *PaymentService) InitiateRefund(ctx context.Context, id uuid.UUID, amount *float64, reason *string) (*models.Payment, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.InitiateRefund")
	defer span.End()
	span.SetAttributes(attribute.String("payment_id", id.String()))

	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, classifyDBError(err, fmt.Sprintf("payment with ID %s", id))
	}
	if payment.Status != models.PaymentCompleted {
		return nil, fmt.Errorf("%w: only completed payments can be refunded", ErrConflict)
	}
	if payment.RazorpayPaymentID == nil {
		return nil, fmt.Errorf("%w: completed payment has no gateway payment id", ErrInternal)
	}

	refundAmount := payment.Amount
	if amount != nil {
		if *amount <= 0 || *amount > payment.Amount {
			return nil, fmt.Errorf("%w: refund amount must be between 0 and %.2f", ErrBadRequest, payment.Amount)
		}
		refundAmount = *amount
	}

	// Claim the payment before talking to the gateway so concurrent refunds
	// cannot both reach it.
	db := s.db.WithContext(ctx)
	if err := conditionalPaymentUpdate(db, payment.ID, models.PaymentCompleted, map[string]any{"status": models.PaymentRefunding}); err != nil {
		return nil, classifyDBError(err, "refund payment")
	}

	notes := map[string]string{"payment_id": payment.ID.String()}
	if reason != nil {
		notes["reason"] = *reason
	}
	refund, err := s.gateway.RefundPayment(ctx, *payment.RazorpayPaymentID, refundAmount, notes)
	// The gateway has been called; record the outcome even if the caller went away.
	settle := s.db.WithContext(context.WithoutCancel(ctx))
	if err != nil {
		if rerr := conditionalPaymentUpdate(settle, payment.ID, models.PaymentRefunding, map[string]any{"status": models.PaymentCompleted}); rerr != nil {
			logger.Log.WithError(rerr).WithField("payment_id", payment.ID).Error("could not release refund claim")
		}
		return nil, gatewayError(err)
	}

	updates := map[string]any{
		"status":        models.PaymentRefunded,
		"refund_amount": refundAmount,
		"refunded_at":   s.clock.Now(),
	}
	if refund.ID != "" {
		updates["razorpay_refund_id"] = refund.ID
	}
	if reason != nil {
		updates["refund_reason"] = *reason
	}
	if err := conditionalPaymentUpdate(settle, payment.ID, models.PaymentRefunding, updates); err != nil {
		logger.Log.WithError(err).WithField("payment_id", payment.ID).WithField("razorpay_refund_id", refund.ID).
			Error("gateway refunded but payment could not be marked refunded")
		return nil, classifyDBError(err, "refund payment")
	}

	logger.Log.WithField("payment_id", payment.ID).WithField("refund_amount", refundAmount).Info("payment refunded")
	data := paymentEventData(&payment)
	data["refund_amount"] = fmt.Sprintf("%.2f", refundAmount)
	publish(ctx, s.events, EventPaymentRefunded, s.clock.Now(), data)

	return s.Get(ctx, payment.ID)
}

// CompleteByOrderID completes a payment reported as captured by the gateway
// webhook, including one the sweep already expired. Already completed
// payments are left untouched.
func (s *PaymentService) CompleteByOrderID(ctx context.Context, orderID, gatewayPaymentID, method string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, "razorpay_order_id = ?", orderID).Error; err != nil {
		return nil, classifyDBError(err, fmt.Sprintf("payment for order %s", orderID))
	}
	switch payment.Status {
	case models.PaymentCompleted, models.PaymentRefunding, models.PaymentRefunded:
		return &payment, nil
	}
	if err := s.complete(ctx, &payment, gatewayPaymentID, nil, method); err != nil {
		return nil, err
	}
	return s.Get(ctx, payment.ID)
}

// FailByOrderID marks a pending payment failed.
func (s *PaymentService) FailByOrderID(ctx context.Context, orderID, reason string) error {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, "razorpay_order_id = ?", orderID).Error; err != nil {
		return classifyDBError(err, fmt.Sprintf("payment for order %s", orderID))
	}
	if payment.Status != models.PaymentPending {
		return nil
	}
	return s.fail(ctx, &payment, reason)
}

// ExpireStale moves pending payments created before cutoff to expired.
func (s *PaymentService) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("status = ? AND created_at < ?", models.PaymentPending, cutoff).
		Update("status", models.PaymentExpired)
	if res.Error != nil {
		return 0, classifyDBError(res.Error, "expire payments")
	}
	return res.RowsAffected, nil
}

func (s *PaymentService) fail(ctx context.Context, payment *models.Payment, reason string) error {
	err := conditionalPaymentUpdate(s.db.WithContext(ctx), payment.ID, payment.Status, map[string]any{
		"status": models.PaymentFailed,
	})
	if err != nil {
		return classifyDBError(err, "fail payment")
	}
	payment.Status = models.PaymentFailed

	logger.Log.WithField("payment_id", payment.ID).WithField("reason", reason).Warn("payment failed")
	data := paymentEventData(payment)
	data["reason"] = reason
	publish(ctx, s.events, EventPaymentFailed, s.clock.Now(), data)
	return nil
}

func (s *PaymentService) complete(ctx context.Context, payment *models.Payment, gatewayPaymentID string, signature *string, method string) error {
	if !CanTransitionPayment(payment.Status, models.PaymentCompleted) {
		return fmt.Errorf("%w: cannot complete a %s payment", ErrConflict, payment.Status)
	}

	now := s.clock.Now()
	updates := map[string]any{
		"status":              models.PaymentCompleted,
		"razorpay_payment_id": gatewayPaymentID,
		"completed_at":        now,
		"invoice_number":      utils.InvoiceNumber(now, payment.ID),
	}
	if signature != nil {
		updates["razorpay_signature"] = *signature
	}
	if method != "" {
		updates["payment_method"] = method
	}
	if err := conditionalPaymentUpdate(s.db.WithContext(ctx), payment.ID, payment.Status, updates); err != nil {
		return classifyDBError(err, "gateway payment id")
	}
	payment.Status = models.PaymentCompleted
	payment.RazorpayPaymentID = &gatewayPaymentID

	logger.Log.WithField("payment_id", payment.ID).Info("payment completed")
	publish(ctx, s.events, EventPaymentCompleted, now, paymentEventData(payment))

	if s.autoConfirm && payment.BookingID != nil && s.bookings != nil {
		s.confirmBooking(ctx, payment)
	}
	if s.invoices != nil {
		go s.issueInvoice(payment.ID)
	}
	return nil
}

// confirmBooking runs after the payment is committed. A slot taken in the
// meantime leaves the payment completed and raises booking.confirm_failed.
func (s *PaymentService) confirmBooking(ctx context.Context, payment *models.Payment) {
	_, err := s.bookings.Confirm(ctx, *payment.BookingID)
	if err == nil {
		return
	}
	entry := logger.Log.WithError(err).
		WithField("payment_id", payment.ID).
		WithField("booking_id", *payment.BookingID)
	if !errors.Is(err, ErrConflict) {
		entry.Error("could not confirm booking after payment")
		return
	}
	entry.Warn("booking could not be confirmed after payment, refund may be required")
	data := paymentEventData(payment)
	data["reason"] = err.Error()
	publish(ctx, s.events, EventBookingConfirmFailed, s.clock.Now(), data)
}

func (s *PaymentService) issueInvoice(paymentID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		logger.Log.WithError(err).WithField("payment_id", paymentID).Error("invoice: load payment")
		return
	}
	url, err := s.invoices.Issue(ctx, payment)
	if err != nil {
		logger.Log.WithError(err).WithField("payment_id", paymentID).Error("invoice generation failed")
		return
	}
	err = s.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", paymentID).Update("receipt_url", url).Error
	if err != nil {
		logger.Log.WithError(err).WithField("payment_id", paymentID).Error("invoice: store receipt url")
	}
}

func conditionalPaymentUpdate(db *gorm.DB, id uuid.UUID, expected models.PaymentStatus, updates map[string]any) error {
	res := db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: payment was modified concurrently", ErrConflict)
	}
	return nil
}

// gatewayError maps adapter failures: order creation is a server fault, the
// rest are reported to the caller as client errors.
func gatewayError(err error) error {
	if errors.Is(err, payments.ErrOrderCreation) {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return fmt.Errorf("%w: %v", ErrBadRequest, err)
}

func paymentEventData(p *models.Payment) map[string]string {
	data := map[string]string{
		"payment_id":        p.ID.String(),
		"razorpay_order_id": p.RazorpayOrderID,
		"user_id":           p.UserID.String(),
		"amount":            fmt.Sprintf("%.2f", p.Amount),
		"currency":          p.Currency,
		"status":            string(p.Status),
	}
	if p.BookingID != nil {
		data["booking_id"] = p.BookingID.String()
	}
	if p.RazorpayPaymentID != nil {
		data["razorpay_payment_id"] = *p.RazorpayPaymentID
	}
	return data
}
