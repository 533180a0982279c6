package websocket

import (
	"context"

	"github.com/anjiri1684/estate_portal/logger"
	"github.com/google/uuid"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Client struct {
	UserID uuid.UUID
	Conn   Conn
}

// Hub fans domain events out to every connected admin.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan interface{}
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan interface{}, 64),
		done:       make(chan struct{}),
	}
}

// Register adds c to the feed. Once Run has returned, c is closed instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		_ = c.Conn.Close()
	}
}

// Unregister never blocks after Run has returned; the hub closed every client
// on its way out.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues v for delivery. It drops the message when the hub is
// backed up rather than block the publisher.
func (h *Hub) Broadcast(v interface{}) bool {
	select {
	case h.broadcast <- v:
		return true
	default:
		logger.Log.Warn("admin feed backed up, dropping event")
		return false
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				_ = c.Conn.Close()
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			logger.Log.WithField("user_id", c.UserID).Info("admin feed client registered")
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				logger.Log.WithField("user_id", c.UserID).Info("admin feed client unregistered")
				delete(h.clients, c)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if err := c.Conn.WriteJSON(msg); err != nil {
					logger.Log.WithError(err).WithField("user_id", c.UserID).Warn("error sending to admin feed client")
					_ = c.Conn.Close()
					delete(h.clients, c)
				}
			}
		}
	}
}
