package payments

import (
	"context"
	"errors"
	"math"

	"github.com/anjiri1684/estate_portal/logger"
	razorpay "github.com/razorpay/razorpay-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/anjiri1684/estate_portal/payments")

// Provider errors carry no upstream detail; the cause is logged where it happens.
var (
	ErrOrderCreation = errors.New("order creation failed")
	ErrPaymentFetch  = errors.New("failed to fetch payment details")
	ErrCapture       = errors.New("payment capture failed")
	ErrRefund        = errors.New("refund failed")
	ErrRefundFetch   = errors.New("failed to fetch refund details")
)

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type PaymentDetails struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
	Email    string `json:"email"`
	Contact  string `json:"contact"`
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

// Gateway is the provider-agnostic surface the payment workflow depends on.
// Amounts are in major units; implementations convert to minor units.
type Gateway interface {
	CreateOrder(ctx context.Context, amount float64, currency, receipt string, notes map[string]string) (*Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error)
	CapturePayment(ctx context.Context, paymentID string, amount float64, currency string) (*PaymentDetails, error)
	RefundPayment(ctx context.Context, paymentID string, amount float64, notes map[string]string) (*Refund, error)
	FetchRefund(ctx context.Context, refundID string) (*Refund, error)
}

type RazorpayGateway struct {
	client *razorpay.Client
	secret string
}

func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{
		client: razorpay.NewClient(keyID, keySecret),
		secret: keySecret,
	}
}

// ToMinorUnits converts a major-unit amount (rupees) to paise.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, amount float64, currency, receipt string, notes map[string]string) (*Order, error) {
	_, span := tracer.Start(ctx, "razorpay.CreateOrder", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	data := map[string]interface{}{
		"amount":   ToMinorUnits(amount),
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		span.RecordError(err)
		logger.Log.WithError(err).WithField("receipt", receipt).Error("razorpay order creation failed")
		return nil, ErrOrderCreation
	}
	order := parseOrder(body)
	if order.ID == "" {
		logger.Log.WithField("receipt", receipt).Error("razorpay returned an order without id")
		return nil, ErrOrderCreation
	}
	return order, nil
}

func (g *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifyPaymentSignature(g.secret, orderID, paymentID, signature)
}

func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error) {
	_, span := tracer.Start(ctx, "razorpay.FetchPayment", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, err := g.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		span.RecordError(err)
		logger.Log.WithError(err).WithField("razorpay_payment_id", paymentID).Error("razorpay payment fetch failed")
		return nil, ErrPaymentFetch
	}
	return parsePayment(body), nil
}

func (g *RazorpayGateway) CapturePayment(ctx context.Context, paymentID string, amount float64, currency string) (*PaymentDetails, error) {
	_, span := tracer.Start(ctx, "razorpay.CapturePayment", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, err := g.client.Payment.Capture(paymentID, int(ToMinorUnits(amount)), map[string]interface{}{"currency": currency}, nil)
	if err != nil {
		span.RecordError(err)
		logger.Log.WithError(err).WithField("razorpay_payment_id", paymentID).Error("razorpay capture failed")
		return nil, ErrCapture
	}
	return parsePayment(body), nil
}

// RefundPayment always sends an explicit amount: the SDK posts "amount" even
// when it is zero, so a full refund is the full payment amount.
func (g *RazorpayGateway) RefundPayment(ctx context.Context, paymentID string, amount float64, notes map[string]string) (*Refund, error) {
	_, span := tracer.Start(ctx, "razorpay.RefundPayment", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	minor := ToMinorUnits(amount)
	if minor <= 0 {
		logger.Log.WithField("razorpay_payment_id", paymentID).WithField("amount", amount).Error("refusing razorpay refund without a positive amount")
		return nil, ErrRefund
	}
	data := map[string]interface{}{}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	body, err := g.client.Payment.Refund(paymentID, int(minor), data, nil)
	if err != nil {
		span.RecordError(err)
		logger.Log.WithError(err).WithField("razorpay_payment_id", paymentID).Error("razorpay refund failed")
		return nil, ErrRefund
	}
	return parseRefund(body), nil
}

func (g *RazorpayGateway) FetchRefund(ctx context.Context, refundID string) (*Refund, error) {
	_, span := tracer.Start(ctx, "razorpay.FetchRefund", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, err := g.client.Refund.Fetch(refundID, nil, nil)
	if err != nil {
		span.RecordError(err)
		logger.Log.WithError(err).WithField("razorpay_refund_id", refundID).Error("razorpay refund fetch failed")
		return nil, ErrRefundFetch
	}
	return parseRefund(body), nil
}

func parseOrder(m map[string]interface{}) *Order {
	return &Order{
		ID:       str(m, "id"),
		Amount:   num(m, "amount"),
		Currency: str(m, "currency"),
		Receipt:  str(m, "receipt"),
		Status:   str(m, "status"),
	}
}

func parsePayment(m map[string]interface{}) *PaymentDetails {
	return &PaymentDetails{
		ID:       str(m, "id"),
		OrderID:  str(m, "order_id"),
		Amount:   num(m, "amount"),
		Currency: str(m, "currency"),
		Status:   str(m, "status"),
		Method:   str(m, "method"),
		Email:    str(m, "email"),
		Contact:  str(m, "contact"),
	}
}

func parseRefund(m map[string]interface{}) *Refund {
	return &Refund{
		ID:        str(m, "id"),
		PaymentID: str(m, "payment_id"),
		Amount:    num(m, "amount"),
		Currency:  str(m, "currency"),
		Status:    str(m, "status"),
	}
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// num reads a JSON number, which decodes into float64 inside interface{} maps.
func num(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return 0
}
