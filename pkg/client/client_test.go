package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-focus/pkg/protocol"
)

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"localhost:6969", "ws://localhost:6969/ws", false},
		{"ws://localhost:6969", "ws://localhost:6969/ws", false},
		{"ws://localhost:6969/", "ws://localhost:6969/ws", false},
		{"http://10.0.0.2:6969", "ws://10.0.0.2:6969/ws", false},
		{"https://focus.local", "wss://focus.local/ws", false},
		{"ws://localhost:6969/custom", "ws://localhost:6969/custom", false},
		{"ftp://localhost", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := WebSocketURL(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("WebSocketURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestStatusURL(t *testing.T) {
	got, err := StatusURL("ws://localhost:6969")
	if err != nil || got != "http://localhost:6969/api/status" {
		t.Errorf("StatusURL = %q, %v", got, err)
	}
	got, _ = StatusURL("https://focus.local")
	if got != "https://focus.local/api/status" {
		t.Errorf("StatusURL(https) = %q", got)
	}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		blink   bool
		reply   bool
	}{
		{"reply success", `{"status":"success","message":"Blink tracking started"}`, false, true},
		{"reply error", `{"status":"error","message":"Invalid JSON"}`, false, true},
		{"reply start failed", `{"status":"error","message":"Failed to start blink tracking: open camera: busy"}`, false, true},
		{"reply unknown action", `{"status":"error","message":"Unknown action: fly"}`, false, true},
		{"focus error", `{"status":"error","message":"No EEG data received"}`, false, false},
		{"eeg unavailable", `{"status":"error","message":"EEG unavailable: connect: refused"}`, false, false},
		{"focus read failure", `{"status":"error","message":"read sample: broken pipe"}`, false, false},
		{"focus crash", `{"status":"error","message":"focus producer crashed: boom"}`, false, false},
		{"unknown success text", `{"status":"success","message":"whatever"}`, false, false},
		{"blink error", `{"status":"error","timestamp":1,"total_blinks":0,"blink_rate":0,"ear":0,"face_detected":false,"elapsed_time":0,"message":"No video frame received"}`, true, false},
		{"calibrating", `{"status":"calibrating","progress":3,"total":30}`, false, false},
		{"focus", `{"status":"focus","timestamp":1,"engagement":1.1,"focus":60,"baseline":{"mean":1,"std":0.1}}`, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, err := ParseEvent([]byte(tc.payload))
			if err != nil {
				t.Fatal(err)
			}
			if e.IsBlink() != tc.blink {
				t.Errorf("IsBlink = %v, want %v", e.IsBlink(), tc.blink)
			}
			if e.IsReply() != tc.reply {
				t.Errorf("IsReply = %v, want %v", e.IsReply(), tc.reply)
			}
		})
	}

	if _, err := ParseEvent([]byte("nope")); err == nil {
		t.Error("ParseEvent accepted garbage")
	}
}

// fakeServer broadcasts a calibrating message and a focus error before
// answering each control request.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var c protocol.Control
			json.Unmarshal(data, &c)

			ws.WriteMessage(websocket.TextMessage, []byte(`{"status":"calibrating","progress":1,"total":30}`))
			ws.WriteMessage(websocket.TextMessage, []byte(`{"status":"error","message":"EEG unavailable: connect: refused"}`))
			reply := protocol.Success(protocol.MsgTrackingStarted)
			if c.Action != protocol.ActionStartBlink {
				reply = protocol.UnknownAction(c.Action)
			}
			ws.WriteJSON(reply)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestControl(t *testing.T) {
	srv := fakeServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, strings.Replace(srv.URL, "http://", "ws://", 1)+"/ws")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	reply, err := c.Control(ctx, protocol.ActionStartBlink)
	if err != nil {
		t.Fatalf("Control: %v", err)
	}
	if reply.Message != protocol.MsgTrackingStarted {
		t.Errorf("reply = %+v", reply)
	}

	_, err = c.Control(ctx, protocol.Action("jump"))
	if !errors.Is(err, ErrControlFailed) {
		t.Errorf("err = %v, want ErrControlFailed", err)
	}
}

func TestNextHonoursContext(t *testing.T) {
	srv := fakeServer(t)
	c, err := Dial(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next = %v, want deadline exceeded", err)
	}
}
