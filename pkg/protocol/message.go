// Package protocol defines the JSON messages exchanged with subscribers.
//
// Outbound messages are flat objects keyed by "status"; inbound messages are
// control requests keyed by "action".
package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/teslashibe/go-focus/pkg/snapshot"
)

// Broadcast-only statuses and reply statuses.
const (
	StatusBlinkOnly = "blink_only"
	StatusSuccess   = "success"
	StatusError     = "error"
)

// Action names a subscriber control request.
type Action string

const (
	ActionStartBlink Action = "startBlinkTracking"
	ActionStopBlink  Action = "stopBlinkTracking"
)

// Control reply texts.
const (
	MsgInvalidJSON      = "Invalid JSON"
	MsgTrackingStarted  = "Blink tracking started"
	MsgTrackingRunning  = "Blink tracking already running"
	MsgTrackingStopped  = "Blink tracking stopped"
	MsgTrackingIdle     = "Blink tracking not running"
	MsgTrackingMissing  = "Blink tracking is not available"
	PrefixUnknownAction = "Unknown action: "
	PrefixStartFailed   = "Failed to start blink tracking: "
	PrefixStopFailed    = "Failed to stop blink tracking: "
)

// ErrInvalidJSON is returned when a control payload cannot be decoded.
var ErrInvalidJSON = errors.New("protocol: invalid control JSON")

// =============================================================================
// Outbound messages
// =============================================================================

// BlinkMessage is the standalone blink producer message.
type BlinkMessage struct {
	Status       string  `json:"status"`
	Timestamp    float64 `json:"timestamp"`
	TotalBlinks  int     `json:"total_blinks"`
	BlinkRate    int     `json:"blink_rate"`
	EAR          float64 `json:"ear"`
	FaceDetected bool    `json:"face_detected"`
	ElapsedTime  float64 `json:"elapsed_time"`
	Message      string  `json:"message,omitempty"`
}

// BlinkSummary is the blink block merged into focus and blink_only messages.
type BlinkSummary struct {
	Total        int     `json:"total"`
	Rate         int     `json:"rate"`
	EAR          float64 `json:"ear"`
	FaceDetected bool    `json:"face_detected"`
}

// Baseline is the engagement baseline used for a focus score.
type Baseline struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// FocusMessage carries a calibrated focus score.
type FocusMessage struct {
	Status     string        `json:"status"`
	Timestamp  float64       `json:"timestamp"`
	Engagement float64       `json:"engagement"`
	Focus      float64       `json:"focus"`
	Baseline   Baseline      `json:"baseline"`
	Blinks     *BlinkSummary `json:"blinks,omitempty"`
}

// CalibratingMessage reports baseline collection progress.
type CalibratingMessage struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Total    int    `json:"total"`
}

// BlinkOnlyMessage is sent when blinks arrive with no focus stream running.
type BlinkOnlyMessage struct {
	Status    string       `json:"status"`
	Timestamp float64      `json:"timestamp"`
	Blinks    BlinkSummary `json:"blinks"`
}

// StatusMessage is a bare status/message pair, used for focus errors and
// control replies.
type StatusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Unix converts t to fractional Unix seconds.
func Unix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// NewBlinkMessage renders a blink snapshot.
func NewBlinkMessage(s snapshot.Snapshot) BlinkMessage {
	return BlinkMessage{
		Status:       s.Status,
		Timestamp:    Unix(s.Timestamp),
		TotalBlinks:  s.Blink.Total,
		BlinkRate:    s.Blink.Rate,
		EAR:          round(s.Blink.EAR, 3),
		FaceDetected: s.Blink.FaceDetected,
		ElapsedTime:  round(s.Blink.Elapsed.Seconds(), 1),
		Message:      s.Message,
	}
}

// NewBlinkSummary renders the merged blink block.
func NewBlinkSummary(s snapshot.Snapshot) BlinkSummary {
	return BlinkSummary{
		Total:        s.Blink.Total,
		Rate:         s.Blink.Rate,
		EAR:          round(s.Blink.EAR, 3),
		FaceDetected: s.Blink.FaceDetected,
	}
}

// NewBlinkOnlyMessage renders a blink snapshot for a subscriber set with no
// focus stream.
func NewBlinkOnlyMessage(s snapshot.Snapshot) BlinkOnlyMessage {
	return BlinkOnlyMessage{
		Status:    StatusBlinkOnly,
		Timestamp: Unix(s.Timestamp),
		Blinks:    NewBlinkSummary(s),
	}
}

// NewFocusMessage renders a focus snapshot. blinks may be nil. Calibrating
// and error snapshots have their own shapes.
func NewFocusMessage(s snapshot.Snapshot, blinks *BlinkSummary) any {
	switch s.Status {
	case snapshot.StatusCalibrating:
		return CalibratingMessage{
			Status:   s.Status,
			Progress: s.Focus.Progress,
			Total:    s.Focus.Total,
		}
	case snapshot.StatusFocus:
		return FocusMessage{
			Status:     s.Status,
			Timestamp:  Unix(s.Timestamp),
			Engagement: s.Focus.Engagement,
			Focus:      s.Focus.Score,
			Baseline:   Baseline{Mean: s.Focus.Mean, Std: s.Focus.Std},
			Blinks:     blinks,
		}
	default:
		return StatusMessage{Status: s.Status, Message: s.Message}
	}
}

// =============================================================================
// Inbound control
// =============================================================================

// Control is a subscriber request.
type Control struct {
	Action Action `json:"action"`
}

// ParseControl decodes a control payload. It returns ErrInvalidJSON for
// anything that is not a JSON object.
func ParseControl(data []byte) (Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return Control{}, ErrInvalidJSON
	}
	return c, nil
}

// Success builds a success reply.
func Success(msg string) StatusMessage {
	return StatusMessage{Status: StatusSuccess, Message: msg}
}

// Failure builds an error reply.
func Failure(msg string) StatusMessage {
	return StatusMessage{Status: StatusError, Message: msg}
}

// UnknownAction builds the reply for an unrecognised action.
func UnknownAction(a Action) StatusMessage {
	return Failure(PrefixUnknownAction + string(a))
}

// IsReply reports whether m is one of the replies HandleControl produces.
// Producer error broadcasts share the status/message shape but never these
// texts.
func IsReply(m StatusMessage) bool {
	switch m.Status {
	case StatusSuccess:
		switch m.Message {
		case MsgTrackingStarted, MsgTrackingRunning, MsgTrackingStopped, MsgTrackingIdle:
			return true
		}
	case StatusError:
		switch {
		case m.Message == MsgInvalidJSON, m.Message == MsgTrackingMissing:
			return true
		case strings.HasPrefix(m.Message, PrefixUnknownAction),
			strings.HasPrefix(m.Message, PrefixStartFailed),
			strings.HasPrefix(m.Message, PrefixStopFailed):
			return true
		}
	}
	return false
}
