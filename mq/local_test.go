package mq

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalBus_DeliversToHandlers(t *testing.T) {
	got := make(chan string, 2)
	handler := func(_ context.Context, key string, body []byte) error {
		got <- key + " " + string(body)
		return nil
	}
	failing := func(context.Context, string, []byte) error { return errors.New("boom") }

	bus := NewLocalBus(4, failing, handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	if err := bus.PublishJSON(ctx, "booking.created", map[string]string{"id": "b1"}); err != nil {
		t.Fatalf("expected publish to succeed, got %v", err)
	}

	select {
	case msg := <-got:
		if msg != `booking.created {"id":"b1"}` {
			t.Fatalf("unexpected message %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler was not called")
	}
}

func TestLocalBus_Full(t *testing.T) {
	bus := NewLocalBus(1)
	ctx := context.Background()
	if err := bus.PublishJSON(ctx, "a", 1); err != nil {
		t.Fatalf("expected first publish to succeed, got %v", err)
	}
	if err := bus.PublishJSON(ctx, "b", 2); !errors.Is(err, ErrBusFull) {
		t.Fatalf("expected ErrBusFull, got %v", err)
	}
}
