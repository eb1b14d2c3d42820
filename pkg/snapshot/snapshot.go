// Package snapshot defines the immutable metric values producers hand to the hub.
package snapshot

import "time"

// Kind identifies which producer created a snapshot.
type Kind int

const (
	// KindBlink snapshots come from the camera blink producer.
	KindBlink Kind = iota
	// KindFocus snapshots come from the EEG focus producer.
	KindFocus
)

func (k Kind) String() string {
	switch k {
	case KindBlink:
		return "blink"
	case KindFocus:
		return "focus"
	default:
		return "unknown"
	}
}

// Status values carried by snapshots.
const (
	StatusConnected   = "connected"
	StatusTracking    = "tracking"
	StatusNoFace      = "no_face"
	StatusError       = "error"
	StatusStopped     = "stopped"
	StatusCalibrating = "calibrating"
	StatusFocus       = "focus"
)

// Blink is the blink producer payload.
type Blink struct {
	Total        int
	Rate         int // blinks in the last minute
	EAR          float64
	FaceDetected bool
	Elapsed      time.Duration
}

// Focus is the focus producer payload.
type Focus struct {
	Progress   int // engagement values collected while calibrating
	Total      int // history capacity
	Engagement float64
	Score      float64
	Mean       float64
	Std        float64
}

// Snapshot is one timestamped producer output. It is passed by value and
// never modified after creation.
type Snapshot struct {
	Kind      Kind
	Status    string
	Timestamp time.Time
	Message   string
	Blink     Blink
	Focus     Focus
}

// NewBlink builds a blink snapshot.
func NewBlink(status string, ts time.Time, b Blink) Snapshot {
	return Snapshot{Kind: KindBlink, Status: status, Timestamp: ts, Blink: b}
}

// NewFocus builds a focus snapshot.
func NewFocus(status string, ts time.Time, f Focus) Snapshot {
	return Snapshot{Kind: KindFocus, Status: status, Timestamp: ts, Focus: f}
}

// WithMessage returns a copy of s carrying a human readable message.
func (s Snapshot) WithMessage(msg string) Snapshot {
	s.Message = msg
	return s
}

// Tracking reports whether s is a blink snapshot from an active camera loop
// (face found or not).
func (s Snapshot) Tracking() bool {
	return s.Kind == KindBlink && (s.Status == StatusTracking || s.Status == StatusNoFace)
}

// Streaming reports whether s is a focus snapshot from a working EEG stream.
func (s Snapshot) Streaming() bool {
	return s.Kind == KindFocus && (s.Status == StatusCalibrating || s.Status == StatusFocus)
}
