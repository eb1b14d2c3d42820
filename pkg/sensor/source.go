// Package sensor defines the pull interfaces between the metric producers and
// the hardware adapters (camera, EEG headband), plus the shared error taxonomy.
package sensor

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/teslashibe/go-focus/pkg/ear"
)

var (
	// ErrNoFrame means the camera produced nothing this cycle. Transient.
	ErrNoFrame = errors.New("sensor: no frame")

	// ErrTimeout means no EEG sample arrived in time. Transient.
	ErrTimeout = errors.New("sensor: sample timeout")

	// ErrUnavailable means the device could not be acquired at all.
	ErrUnavailable = errors.New("sensor: unavailable")
)

// Frame is one camera frame reduced to eye landmarks.
type Frame struct {
	// Face is false when the landmark detector found no face. Left and
	// Right are only meaningful when Face is true.
	Face  bool
	Left  ear.Eye
	Right ear.Eye

	// CapturedAt is when the frame was grabbed. Zero means unknown.
	CapturedAt time.Time
}

// FrameSource yields frames from a camera.
type FrameSource interface {
	// NextFrame blocks for the next frame. It returns ErrNoFrame for a
	// transient miss and io.EOF when the stream has ended.
	NextFrame(ctx context.Context) (Frame, error)

	// Close releases the device. It is safe to call more than once.
	io.Closer
}

// FrameOpener acquires a fresh FrameSource. Each call must return an
// independent handle so start/stop cycles never share a device.
type FrameOpener func(ctx context.Context) (FrameSource, error)

// SampleSource yields multi-channel EEG samples.
type SampleSource interface {
	// NextSample blocks for the next sample vector (one value per channel).
	// It returns ErrTimeout when nothing arrived within the source timeout.
	NextSample(ctx context.Context) ([]float64, error)

	// SampleRate returns the nominal sampling rate in Hz.
	SampleRate() float64

	io.Closer
}
