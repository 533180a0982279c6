package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/anjiri1684/estate_portal/payments"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) PublishJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, ok := v.(Event)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", v, key)
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Event == key {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	mu          sync.Mutex
	secret      string
	method      string
	createErr   error
	refundErr   error
	orderSeq    int
	fetchCalls  int
	refundCalls int
	lastRefund  float64
	// refundStarted and refundRelease, when set, hold RefundPayment open
	// until the test releases it.
	refundStarted chan struct{}
	refundRelease chan struct{}
}

func newFakeGateway(secret string) *fakeGateway {
	return &fakeGateway{secret: secret, method: "upi"}
}

func (g *fakeGateway) CreateOrder(_ context.Context, amount float64, currency, receipt string, _ map[string]string) (*payments.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.orderSeq++
	return &payments.Order{
		ID:       fmt.Sprintf("order_%d", g.orderSeq),
		Amount:   payments.ToMinorUnits(amount),
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return payments.VerifyPaymentSignature(g.secret, orderID, paymentID, signature)
}

func (g *fakeGateway) FetchPayment(_ context.Context, paymentID string) (*payments.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	return &payments.PaymentDetails{ID: paymentID, Method: g.method, Status: "captured"}, nil
}

func (g *fakeGateway) CapturePayment(_ context.Context, paymentID string, amount float64, currency string) (*payments.PaymentDetails, error) {
	return &payments.PaymentDetails{ID: paymentID, Amount: payments.ToMinorUnits(amount), Currency: currency, Status: "captured"}, nil
}

func (g *fakeGateway) RefundPayment(_ context.Context, paymentID string, amount float64, _ map[string]string) (*payments.Refund, error) {
	g.mu.Lock()
	g.refundCalls++
	n := g.refundCalls
	started, release := g.refundStarted, g.refundRelease
	g.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.lastRefund = amount
	return &payments.Refund{
		ID:        fmt.Sprintf("rfnd_%d", n),
		PaymentID: paymentID,
		Amount:    payments.ToMinorUnits(amount),
		Status:    "processed",
	}, nil
}

func (g *fakeGateway) FetchRefund(_ context.Context, refundID string) (*payments.Refund, error) {
	return &payments.Refund{ID: refundID, Status: "processed"}, nil
}
