package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	// ErrClientClosed is returned by Enqueue after the connection is closed.
	ErrClientClosed = errors.New("ws: client closed")
	// ErrSendBufferFull is returned when a slow client cannot keep up.
	ErrSendBufferFull = errors.New("ws: send buffer full")
)

// Client wraps a websocket connection with a buffered outbound queue.
// A single write pump drains the queue, so events pushed to one client
// are delivered in the order they were enqueued.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  *slog.Logger
}

// NewClient constructs a client and starts its write pump.
func NewClient(conn *websocket.Conn, buffer int, logger *slog.Logger) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	c := &Client{
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		log:  logger,
	}
	go c.writePump()
	return c
}

// Enqueue queues an event for delivery. It never blocks: a full buffer
// drops the event and reports ErrSendBufferFull.
func (c *Client) Enqueue(event string, data any) error {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.log.Warn("websocket send buffer full, dropping event", "event", event)
		return ErrSendBufferFull
	}
}

// Close terminates the connection and stops the write pump. Safe to call
// multiple times; only the first has effect.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) writePump() {
	for {
		select {
		case payload := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Warn("websocket send failed", "error", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
