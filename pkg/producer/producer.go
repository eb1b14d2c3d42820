// Package producer runs the sensor loops that turn raw frames and EEG samples
// into snapshots for the hub.
//
// A producer owns its source: Run closes it on every exit path. Producers
// never block on the hub; Sink.Submit must return immediately.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-focus/pkg/blink"
	"github.com/teslashibe/go-focus/pkg/snapshot"
)

// Sink receives snapshots. *hub.Hub implements it.
type Sink interface {
	Submit(s snapshot.Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s snapshot.Snapshot)

// Submit calls f(s).
func (f SinkFunc) Submit(s snapshot.Snapshot) {
	f(s)
}

// Messages carried by lifecycle and error snapshots.
const (
	MsgBlinkStarted = "Blink detection started"
	MsgBlinkStopped = "Blink detection stopped"
	MsgNoFrame      = "No video frame received"
	MsgNoEEG        = "No EEG data received"
)

// BlinkConfig holds blink producer timing.
type BlinkConfig struct {
	Detector blink.Config

	// UpdateEvery is the minimum time between tracking snapshots.
	UpdateEvery time.Duration

	// FrameInterval is the pause after each processed frame. Zero disables
	// pacing (the source paces itself).
	FrameInterval time.Duration

	// RetryDelay is the pause after a missing frame.
	RetryDelay time.Duration
}

// DefaultBlinkConfig returns ~30 fps pacing with one snapshot per second.
func DefaultBlinkConfig() BlinkConfig {
	return BlinkConfig{
		Detector:      blink.DefaultConfig(),
		UpdateEvery:   time.Second,
		FrameInterval: 33 * time.Millisecond,
		RetryDelay:    100 * time.Millisecond,
	}
}

// Validate checks that the config is usable.
func (c BlinkConfig) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	switch {
	case c.UpdateEvery < 0:
		return errors.New("producer: update_every must not be negative")
	case c.FrameInterval < 0:
		return errors.New("producer: frame_interval must not be negative")
	case c.RetryDelay < 0:
		return errors.New("producer: retry_delay must not be negative")
	}
	return nil
}

type options struct {
	log *slog.Logger
	now func() time.Time
}

func defaultOptions() options {
	return options{log: slog.Default(), now: time.Now}
}

// Option configures a producer or controller.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithClock overrides the clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// sleep waits for d or ctx, reporting false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// recovered converts a recovered panic value into an error.
func recovered(name string, r any) error {
	return fmt.Errorf("%s producer crashed: %v", name, r)
}
