package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound control messages
	maxMessageSize = 4 * 1024

	// sendBuffer is the per-client queue; a client this far behind is dropped
	sendBuffer = 64
)

var (
	// ErrSlowSubscriber is returned by Send when the client queue is full.
	ErrSlowSubscriber = errors.New("hub: subscriber too slow")

	// ErrSubscriberClosed is returned by Send after Close.
	ErrSubscriberClosed = errors.New("hub: subscriber closed")
)

// Client is a websocket subscriber.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	mu        sync.Mutex
	send      chan []byte
	closed    bool
	writeDone chan struct{}
}

// NewClient wraps a websocket connection as a subscriber with a fresh id.
func NewClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),

		writeDone: make(chan struct{}),
	}
}

// ID returns the client id.
func (c *Client) ID() string {
	return c.id
}

// Send queues msg without blocking.
func (c *Client) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSubscriberClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSlowSubscriber
	}
}

// Close stops the write pump. Called by the hub after removal.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Run registers the client and serves it until the connection closes.
// This should be called in the websocket handler; it returns only after the
// write pump has exited so the connection is not used after the handler ends.
func (c *Client) Run(ctx context.Context) error {
	if err := c.hub.Register(ctx, c); err != nil {
		c.conn.Close()
		return err
	}
	go c.writePump()
	c.readPump(ctx) // Blocks until connection closes
	<-c.writeDone
	return nil
}

// readPump reads control messages and detects disconnection.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.HandleControl(ctx, c.id, data)
	}
}

// writePump writes queued messages to the websocket connection.
// Only this goroutine writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.writeDone)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel - send close frame
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
