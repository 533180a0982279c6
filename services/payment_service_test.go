package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anjiri1684/estate_portal/clock"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/payments"
	"github.com/anjiri1684/estate_portal/testutil"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const testKeySecret = "rzp_secret"

type paymentFixture struct {
	db       *gorm.DB
	gateway  *fakeGateway
	pub      *recordingPublisher
	bookings *BookingService
	svc      *PaymentService
	user     models.User
	listing  models.Listing
}

func newPaymentFixture(t *testing.T, opts ...PaymentOption) *paymentFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	pub := &recordingPublisher{}
	gw := newFakeGateway(testKeySecret)
	clk := clock.NewManual(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	bookings := NewBookingService(db, clk, pub)
	return &paymentFixture{
		db:       db,
		gateway:  gw,
		pub:      pub,
		bookings: bookings,
		svc:      NewPaymentService(db, gw, bookings, clk, pub, opts...),
		user:     testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer),
		listing:  testutil.CreateListing(t, db, "Payment Plot"),
	}
}

func (f *paymentFixture) order(t *testing.T, in CreateOrderInput) *OrderResult {
	t.Helper()
	if in.UserID == uuid.Nil {
		in.UserID = f.user.ID
	}
	if in.PaymentType == "" {
		in.PaymentType = models.PaymentForBooking
	}
	if in.Amount == 0 {
		in.Amount = 50000
	}
	res, err := f.svc.CreatePaymentOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return res
}

func (f *paymentFixture) reload(t *testing.T, id uuid.UUID) models.Payment {
	t.Helper()
	var p models.Payment
	if err := f.db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	return p
}

func TestPaymentService_VerifyScenario(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	res := f.order(t, CreateOrderInput{Amount: 50000, Currency: "inr", ListingID: &f.listing.ID})
	if res.OrderID == "" || res.Currency != "INR" || res.Amount != 50000 {
		t.Fatalf("unexpected order result %+v", res)
	}
	if got := f.reload(t, res.PaymentID); got.Status != models.PaymentPending || got.RazorpayOrderID != res.OrderID {
		t.Fatalf("expected pending payment keyed by order id, got %+v", got)
	}

	_, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{
		OrderID:   res.OrderID,
		PaymentID: "pay_1",
		Signature: "tampered",
		UserID:    f.user.ID,
	})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if got := f.reload(t, res.PaymentID); got.Status != models.PaymentFailed {
		t.Fatalf("expected failed after bad signature, got %s", got.Status)
	}
	if f.pub.count(EventPaymentFailed) != 1 {
		t.Fatalf("expected payment.failed event")
	}

	good := payments.PaymentSignature(testKeySecret, res.OrderID, "pay_1")
	paid, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{
		OrderID:   res.OrderID,
		PaymentID: "pay_1",
		Signature: good,
		UserID:    f.user.ID,
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if paid.Status != models.PaymentCompleted || paid.CompletedAt == nil {
		t.Fatalf("expected completed payment, got %+v", paid)
	}
	if paid.InvoiceNumber == nil || paid.PaymentMethod == nil || *paid.PaymentMethod != "upi" {
		t.Fatalf("expected invoice number and method, got %+v", paid)
	}
	if paid.RazorpayPaymentID == nil || *paid.RazorpayPaymentID != "pay_1" {
		t.Fatalf("expected gateway payment id stored")
	}

	t.Run("same payment id is idempotent", func(t *testing.T) {
		calls := f.gateway.fetchCalls
		again, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{OrderID: res.OrderID, PaymentID: "pay_1", Signature: good, UserID: f.user.ID})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if *again.InvoiceNumber != *paid.InvoiceNumber {
			t.Fatalf("expected stored record to be returned unchanged")
		}
		if f.gateway.fetchCalls != calls {
			t.Fatalf("expected no gateway call on idempotent verify")
		}
		if f.pub.count(EventPaymentCompleted) != 1 {
			t.Fatalf("expected a single payment.completed event")
		}
	})

	t.Run("different payment id conflicts", func(t *testing.T) {
		sig := payments.PaymentSignature(testKeySecret, res.OrderID, "pay_2")
		_, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{OrderID: res.OrderID, PaymentID: "pay_2", Signature: sig, UserID: f.user.ID})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("bad signature does not touch a completed payment", func(t *testing.T) {
		_, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{OrderID: res.OrderID, PaymentID: "pay_1", Signature: "bad", UserID: f.user.ID})
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
		if got := f.reload(t, res.PaymentID); got.Status != models.PaymentCompleted {
			t.Fatalf("expected still completed, got %s", got.Status)
		}
	})

	t.Run("other users cannot verify", func(t *testing.T) {
		_, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{OrderID: res.OrderID, PaymentID: "pay_1", Signature: good, UserID: uuid.New()})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{OrderID: "order_missing", PaymentID: "pay_1", Signature: good, UserID: f.user.ID})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPaymentService_CreatePaymentOrder(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	t.Run("validates input", func(t *testing.T) {
		tests := []struct {
			name  string
			input CreateOrderInput
			want  error
		}{
			{"zero amount", CreateOrderInput{Amount: 0, PaymentType: models.PaymentForToken, UserID: f.user.ID}, ErrBadRequest},
			{"unknown type", CreateOrderInput{Amount: 10, PaymentType: "gift", UserID: f.user.ID}, ErrBadRequest},
			{"unknown booking", CreateOrderInput{Amount: 10, PaymentType: models.PaymentForBooking, BookingID: ptrUUID(uuid.New()), UserID: f.user.ID}, ErrNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.CreatePaymentOrder(ctx, tt.input)
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})

	t.Run("gateway failure persists nothing", func(t *testing.T) {
		f.gateway.createErr = payments.ErrOrderCreation
		defer func() { f.gateway.createErr = nil }()

		_, err := f.svc.CreatePaymentOrder(ctx, CreateOrderInput{Amount: 10, PaymentType: models.PaymentForToken, UserID: f.user.ID})
		if !errors.Is(err, ErrInternal) {
			t.Fatalf("expected ErrInternal, got %v", err)
		}
		var count int64
		f.db.Model(&models.Payment{}).Count(&count)
		if count != 0 {
			t.Fatalf("expected no payment rows, got %d", count)
		}
	})

	t.Run("booking supplies the listing", func(t *testing.T) {
		b, err := f.bookings.Create(ctx, CreateBookingInput{ListingID: f.listing.ID, BookingDate: "2025-06-05"})
		if err != nil {
			t.Fatalf("create booking: %v", err)
		}
		res := f.order(t, CreateOrderInput{BookingID: &b.ID})
		got := f.reload(t, res.PaymentID)
		if got.ListingID == nil || *got.ListingID != f.listing.ID {
			t.Fatalf("expected listing id copied from booking, got %v", got.ListingID)
		}
		if got.Currency != "INR" {
			t.Fatalf("expected default currency INR, got %s", got.Currency)
		}
	})
}

func ptrUUID(id uuid.UUID) *uuid.UUID { return &id }

func completedPayment(t *testing.T, f *paymentFixture, amount float64) (*OrderResult, string) {
	t.Helper()
	res := f.order(t, CreateOrderInput{Amount: amount})
	gatewayID := "pay_" + res.OrderID
	_, err := f.svc.VerifyPayment(context.Background(), VerifyPaymentInput{
		OrderID:   res.OrderID,
		PaymentID: gatewayID,
		Signature: payments.PaymentSignature(testKeySecret, res.OrderID, gatewayID),
		UserID:    f.user.ID,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return res, gatewayID
}

func TestPaymentService_InitiateRefund(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	t.Run("non completed payments are never refunded", func(t *testing.T) {
		pending := f.order(t, CreateOrderInput{Amount: 1000})
		failed := f.order(t, CreateOrderInput{Amount: 1000})
		if err := f.svc.FailByOrderID(ctx, failed.OrderID, "declined"); err != nil {
			t.Fatalf("fail: %v", err)
		}

		for _, id := range []uuid.UUID{pending.PaymentID, failed.PaymentID} {
			before := f.reload(t, id)
			_, err := f.svc.InitiateRefund(ctx, id, nil, strPtr("changed mind"))
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}
			after := f.reload(t, id)
			if after.Status != before.Status || after.RefundAmount != nil || after.RefundReason != nil || !after.UpdatedAt.Equal(before.UpdatedAt) {
				t.Fatalf("expected payment untouched, before=%+v after=%+v", before, after)
			}
		}
		if f.gateway.refundCalls != 0 {
			t.Fatalf("expected no gateway refunds, got %d", f.gateway.refundCalls)
		}
	})

	t.Run("partial refund", func(t *testing.T) {
		res, _ := completedPayment(t, f, 5000)
		amount := 1500.0
		refunded, err := f.svc.InitiateRefund(ctx, res.PaymentID, &amount, strPtr("plot unavailable"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if refunded.Status != models.PaymentRefunded || refunded.RefundedAt == nil {
			t.Fatalf("expected refunded payment, got %+v", refunded)
		}
		if refunded.RefundAmount == nil || *refunded.RefundAmount != 1500 {
			t.Fatalf("expected refund amount 1500, got %v", refunded.RefundAmount)
		}
		if refunded.RazorpayRefundID == nil {
			t.Fatalf("expected gateway refund id")
		}
		if f.pub.count(EventPaymentRefunded) != 1 {
			t.Fatalf("expected payment.refunded event")
		}

		_, err = f.svc.InitiateRefund(ctx, res.PaymentID, nil, nil)
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict on second refund, got %v", err)
		}
	})

	t.Run("full refund by default", func(t *testing.T) {
		res, _ := completedPayment(t, f, 2000)
		refunded, err := f.svc.InitiateRefund(ctx, res.PaymentID, nil, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if *refunded.RefundAmount != 2000 {
			t.Fatalf("expected full refund, got %v", *refunded.RefundAmount)
		}
		if f.gateway.lastRefund != 2000 {
			t.Fatalf("expected gateway to be asked for the full 2000, got %v", f.gateway.lastRefund)
		}
	})

	t.Run("concurrent refunds reach the gateway once", func(t *testing.T) {
		res, _ := completedPayment(t, f, 5000)
		calls := f.gateway.refundCalls
		f.gateway.refundStarted = make(chan struct{})
		f.gateway.refundRelease = make(chan struct{})
		defer func() { f.gateway.refundStarted, f.gateway.refundRelease = nil, nil }()

		amount := 3000.0
		first := make(chan error, 1)
		go func() {
			_, err := f.svc.InitiateRefund(ctx, res.PaymentID, &amount, nil)
			first <- err
		}()
		<-f.gateway.refundStarted

		if got := f.reload(t, res.PaymentID); got.Status != models.PaymentRefunding {
			t.Fatalf("expected payment claimed as refunding, got %s", got.Status)
		}
		if _, err := f.svc.InitiateRefund(ctx, res.PaymentID, &amount, nil); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict while a refund is in flight, got %v", err)
		}

		close(f.gateway.refundRelease)
		if err := <-first; err != nil {
			t.Fatalf("expected first refund to succeed, got %v", err)
		}
		if f.gateway.refundCalls != calls+1 {
			t.Fatalf("expected exactly one gateway refund, got %d", f.gateway.refundCalls-calls)
		}
		got := f.reload(t, res.PaymentID)
		if got.Status != models.PaymentRefunded || got.RefundAmount == nil || *got.RefundAmount != 3000 {
			t.Fatalf("expected refunded 3000, got %+v", got)
		}
	})

	t.Run("amount out of range", func(t *testing.T) {
		res, _ := completedPayment(t, f, 2000)
		calls := f.gateway.refundCalls
		for _, amount := range []float64{0, -5, 2000.01} {
			a := amount
			_, err := f.svc.InitiateRefund(ctx, res.PaymentID, &a, nil)
			if !errors.Is(err, ErrBadRequest) {
				t.Fatalf("amount %v: expected ErrBadRequest, got %v", amount, err)
			}
		}
		if f.gateway.refundCalls != calls {
			t.Fatalf("expected no gateway call for invalid amounts")
		}
	})

	t.Run("gateway failure leaves payment completed", func(t *testing.T) {
		res, _ := completedPayment(t, f, 2000)
		f.gateway.refundErr = payments.ErrRefund
		defer func() { f.gateway.refundErr = nil }()

		_, err := f.svc.InitiateRefund(ctx, res.PaymentID, nil, nil)
		if !errors.Is(err, ErrBadRequest) {
			t.Fatalf("expected ErrBadRequest, got %v", err)
		}
		if got := f.reload(t, res.PaymentID); got.Status != models.PaymentCompleted {
			t.Fatalf("expected still completed, got %s", got.Status)
		}

		f.gateway.refundErr = nil
		if _, err := f.svc.InitiateRefund(ctx, res.PaymentID, nil, nil); err != nil {
			t.Fatalf("expected retry after gateway failure to succeed, got %v", err)
		}
	})
}

func TestPaymentService_AutoConfirmBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("confirms the linked booking", func(t *testing.T) {
		f := newPaymentFixture(t, WithAutoConfirm(true))
		b, err := f.bookings.Create(ctx, CreateBookingInput{ListingID: f.listing.ID, BookingDate: "2025-06-01", BookingTime: strPtr("10:00")})
		if err != nil {
			t.Fatalf("create booking: %v", err)
		}
		res := f.order(t, CreateOrderInput{BookingID: &b.ID})
		sig := payments.PaymentSignature(testKeySecret, res.OrderID, "pay_ok")
		if _, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{OrderID: res.OrderID, PaymentID: "pay_ok", Signature: sig, UserID: f.user.ID}); err != nil {
			t.Fatalf("verify: %v", err)
		}
		got, _ := f.bookings.Get(ctx, b.ID)
		if got.Status != models.BookingConfirmed {
			t.Fatalf("expected booking confirmed, got %s", got.Status)
		}
	})

	t.Run("slot taken keeps payment completed and reports", func(t *testing.T) {
		f := newPaymentFixture(t, WithAutoConfirm(true))
		winner, _ := f.bookings.Create(ctx, CreateBookingInput{ListingID: f.listing.ID, BookingDate: "2025-06-01", BookingTime: strPtr("10:00")})
		loser, _ := f.bookings.Create(ctx, CreateBookingInput{ListingID: f.listing.ID, BookingDate: "2025-06-01", BookingTime: strPtr("10:00")})
		if _, err := f.bookings.Confirm(ctx, winner.ID); err != nil {
			t.Fatalf("confirm winner: %v", err)
		}

		res := f.order(t, CreateOrderInput{BookingID: &loser.ID})
		sig := payments.PaymentSignature(testKeySecret, res.OrderID, "pay_late")
		paid, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{OrderID: res.OrderID, PaymentID: "pay_late", Signature: sig, UserID: f.user.ID})
		if err != nil {
			t.Fatalf("expected payment to complete, got %v", err)
		}
		if paid.Status != models.PaymentCompleted {
			t.Fatalf("expected completed, got %s", paid.Status)
		}
		got, _ := f.bookings.Get(ctx, loser.ID)
		if got.Status != models.BookingPending {
			t.Fatalf("expected losing booking to stay pending, got %s", got.Status)
		}
		if f.pub.count(EventBookingConfirmFailed) != 1 {
			t.Fatalf("expected booking.confirm_failed event")
		}
	})

	t.Run("disabled leaves booking alone", func(t *testing.T) {
		f := newPaymentFixture(t, WithAutoConfirm(false))
		b, _ := f.bookings.Create(ctx, CreateBookingInput{ListingID: f.listing.ID, BookingDate: "2025-06-01", BookingTime: strPtr("11:00")})
		res := f.order(t, CreateOrderInput{BookingID: &b.ID})
		sig := payments.PaymentSignature(testKeySecret, res.OrderID, "pay_x")
		if _, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{OrderID: res.OrderID, PaymentID: "pay_x", Signature: sig, UserID: f.user.ID}); err != nil {
			t.Fatalf("verify: %v", err)
		}
		got, _ := f.bookings.Get(ctx, b.ID)
		if got.Status != models.BookingPending {
			t.Fatalf("expected pending, got %s", got.Status)
		}
	})
}

func TestPaymentService_Webhook(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	captured := f.order(t, CreateOrderInput{Amount: 100})
	var ev WebhookEvent
	ev.Event = WebhookPaymentCaptured
	ev.Payload.Payment.Entity.ID = "pay_hook"
	ev.Payload.Payment.Entity.OrderID = captured.OrderID
	ev.Payload.Payment.Entity.Method = "card"
	if err := f.svc.HandleWebhook(ctx, ev); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got := f.reload(t, captured.PaymentID)
	if got.Status != models.PaymentCompleted || got.PaymentMethod == nil || *got.PaymentMethod != "card" {
		t.Fatalf("expected completed card payment, got %+v", got)
	}
	if err := f.svc.HandleWebhook(ctx, ev); err != nil {
		t.Fatalf("expected redelivery to be acknowledged, got %v", err)
	}

	failed := f.order(t, CreateOrderInput{Amount: 100})
	var fev WebhookEvent
	fev.Event = WebhookPaymentFailed
	fev.Payload.Payment.Entity.OrderID = failed.OrderID
	fev.Payload.Payment.Entity.ErrorDescription = "card declined"
	if err := f.svc.HandleWebhook(ctx, fev); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := f.reload(t, failed.PaymentID); got.Status != models.PaymentFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}

	var unknown WebhookEvent
	unknown.Event = WebhookPaymentCaptured
	unknown.Payload.Payment.Entity.OrderID = "order_elsewhere"
	if err := f.svc.HandleWebhook(ctx, unknown); err != nil {
		t.Fatalf("expected unknown order to be ignored, got %v", err)
	}
}

func TestPaymentService_CaptureAfterExpiry(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	hooked := f.order(t, CreateOrderInput{Amount: 700})
	verified := f.order(t, CreateOrderInput{Amount: 800})
	if n, err := f.svc.ExpireStale(ctx, time.Now().Add(time.Minute)); err != nil || n != 2 {
		t.Fatalf("expected 2 expired payments, got %d (%v)", n, err)
	}

	var ev WebhookEvent
	ev.Event = WebhookPaymentCaptured
	ev.Payload.Payment.Entity.ID = "pay_after_sweep"
	ev.Payload.Payment.Entity.OrderID = hooked.OrderID
	if err := f.svc.HandleWebhook(ctx, ev); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got := f.reload(t, hooked.PaymentID)
	if got.Status != models.PaymentCompleted || got.RazorpayPaymentID == nil || *got.RazorpayPaymentID != "pay_after_sweep" {
		t.Fatalf("expected captured payment to complete, got %+v", got)
	}

	sig := payments.PaymentSignature(testKeySecret, verified.OrderID, "pay_verified_late")
	paid, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{OrderID: verified.OrderID, PaymentID: "pay_verified_late", Signature: sig, UserID: f.user.ID})
	if err != nil {
		t.Fatalf("expected late verification to complete, got %v", err)
	}
	if paid.Status != models.PaymentCompleted {
		t.Fatalf("expected completed, got %s", paid.Status)
	}
	if f.pub.count(EventPaymentCompleted) != 2 {
		t.Fatalf("expected two payment.completed events, got %d", f.pub.count(EventPaymentCompleted))
	}
}

func TestPaymentService_ListAndExpire(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	completedPayment(t, f, 100)
	f.order(t, CreateOrderInput{Amount: 200})
	other := testutil.CreateUser(t, f.db, "other@example.com", models.RoleCustomer)
	f.order(t, CreateOrderInput{Amount: 300, UserID: other.ID})

	mine, err := f.svc.List(ctx, PaymentFilter{UserID: &f.user.ID})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 payments for user, got %d", len(mine))
	}
	for _, p := range mine {
		if p.User == nil || p.User.ID != f.user.ID {
			t.Fatalf("expected user relation loaded")
		}
	}

	pending, err := f.svc.List(ctx, PaymentFilter{Status: models.PaymentPending})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending payments, got %d", len(pending))
	}

	if _, err := f.svc.List(ctx, PaymentFilter{Status: "lost"}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}

	n, err := f.svc.ExpireStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 expired payments, got %d", n)
	}
	if _, err := f.svc.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
