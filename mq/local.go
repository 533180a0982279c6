package mq

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anjiri1684/estate_portal/logger"
)

// ErrBusFull is returned when the local queue cannot take another message.
var ErrBusFull = errors.New("local event bus is full")

// HandlerFunc receives the routing key and the JSON body of a message.
type HandlerFunc func(ctx context.Context, key string, body []byte) error

type message struct {
	key  string
	body []byte
}

// LocalBus delivers published messages to in-process handlers. It stands in
// for the broker when none is configured.
type LocalBus struct {
	queue    chan message
	handlers []HandlerFunc
}

func NewLocalBus(size int, handlers ...HandlerFunc) *LocalBus {
	if size <= 0 {
		size = 256
	}
	return &LocalBus{queue: make(chan message, size), handlers: handlers}
}

// PublishJSON never blocks the caller.
func (b *LocalBus) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case b.queue <- message{key: key, body: body}:
		return nil
	default:
		return ErrBusFull
	}
}

// Run drains the queue until ctx is done. Handler errors are logged and the
// message is dropped.
func (b *LocalBus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-b.queue:
			for _, h := range b.handlers {
				if err := h(ctx, m.key, m.body); err != nil {
					logger.Log.WithError(err).WithField("event", m.key).Error("local event handler failed")
				}
			}
		}
	}
}
