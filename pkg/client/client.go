// Package client connects to a focusd websocket as a subscriber.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-focus/internal/httpc"
	"github.com/teslashibe/go-focus/pkg/protocol"
)

// Event is any message broadcast by the server. Fields not carried by a
// given status are zero.
type Event struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`

	// Focus
	Engagement float64                `json:"engagement,omitempty"`
	Focus      float64                `json:"focus,omitempty"`
	Baseline   *protocol.Baseline     `json:"baseline,omitempty"`
	Blinks     *protocol.BlinkSummary `json:"blinks,omitempty"`
	Progress   int                    `json:"progress,omitempty"`
	Total      int                    `json:"total,omitempty"`

	// Blink
	TotalBlinks  *int    `json:"total_blinks,omitempty"`
	BlinkRate    int     `json:"blink_rate,omitempty"`
	EAR          float64 `json:"ear,omitempty"`
	FaceDetected bool    `json:"face_detected,omitempty"`
	ElapsedTime  float64 `json:"elapsed_time,omitempty"`

	fields int
}

// IsBlink reports whether e came from the blink producer.
func (e Event) IsBlink() bool {
	return e.TotalBlinks != nil
}

// IsReply reports whether e is a control reply rather than a broadcast.
func (e Event) IsReply() bool {
	if e.fields != 2 {
		return false
	}
	return protocol.IsReply(protocol.StatusMessage{Status: e.Status, Message: e.Message})
}

// ParseEvent decodes one server message.
func ParseEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	e.fields = len(keys)
	return e, nil
}

// Client is a websocket subscriber.
type Client struct {
	url string
	ws  *websocket.Conn
	wMu sync.Mutex // serialises writes
}

// Dial connects to the server websocket at rawURL (ws:// or http://).
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	wsURL, err := WebSocketURL(rawURL)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	return &Client{url: wsURL, ws: ws}, nil
}

// WebSocketURL normalises a server address to its /ws endpoint.
func WebSocketURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// StatusURL returns the /api/status URL for a server address.
func StatusURL(raw string) (string, error) {
	ws, err := WebSocketURL(raw)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(ws)
	if u.Scheme == "wss" {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Path = "/api/status"
	return u.String(), nil
}

// Next blocks for the next server message. Once ctx ends mid-read the
// connection is unusable and should be closed.
func (c *Client) Next(ctx context.Context) (Event, error) {
	c.ws.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return Event{}, ctx.Err()
		}
		return Event{}, err
	}
	return ParseEvent(data)
}

// Send writes a control request.
func (c *Client) Send(action protocol.Action) error {
	data, err := json.Marshal(protocol.Control{Action: action})
	if err != nil {
		return err
	}
	c.wMu.Lock()
	defer c.wMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ErrControlFailed wraps an error reply from the server.
var ErrControlFailed = errors.New("control request failed")

// Control sends action and waits for its reply, skipping broadcasts.
func (c *Client) Control(ctx context.Context, action protocol.Action) (protocol.StatusMessage, error) {
	if err := c.Send(action); err != nil {
		return protocol.StatusMessage{}, fmt.Errorf("send %s: %w", action, err)
	}
	for {
		e, err := c.Next(ctx)
		if err != nil {
			return protocol.StatusMessage{}, err
		}
		if !e.IsReply() {
			continue
		}
		reply := protocol.StatusMessage{Status: e.Status, Message: e.Message}
		if e.Status == protocol.StatusError {
			return reply, fmt.Errorf("%w: %s", ErrControlFailed, e.Message)
		}
		return reply, nil
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.wMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wMu.Unlock()
	return c.ws.Close()
}

// Status fetches the server's /api/status document into v.
func Status(ctx context.Context, rawURL string, v any) error {
	u, err := StatusURL(rawURL)
	if err != nil {
		return err
	}
	return httpc.GetJSON(ctx, u, v)
}
