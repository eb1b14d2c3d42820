// Package blink counts eye blinks from a per-frame EAR stream.
package blink

import (
	"errors"
	"time"
)

// Config holds blink detection parameters.
type Config struct {
	Threshold    float64       // EAR below this means the eye is closed
	ConsecFrames int           // Closed frames required before a reopen counts as a blink
	RateWindow   time.Duration // Window for the rolling blink rate
	MaxRecent    int           // Cap on remembered blink timestamps
}

// DefaultConfig returns the standard detection settings.
func DefaultConfig() Config {
	return Config{
		Threshold:    0.25,
		ConsecFrames: 4,
		RateWindow:   60 * time.Second,
		MaxRecent:    100,
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	switch {
	case c.Threshold <= 0:
		return errors.New("blink: threshold must be positive")
	case c.ConsecFrames < 1:
		return errors.New("blink: consec_frames must be at least 1")
	case c.RateWindow <= 0:
		return errors.New("blink: rate_window must be positive")
	case c.MaxRecent < 1:
		return errors.New("blink: max_recent must be at least 1")
	}
	return nil
}

// Detector is a two-state (open / closing) blink counter.
// It is not safe for concurrent use; the owning producer is its only caller.
type Detector struct {
	cfg    Config
	closed int
	total  int
	recent []time.Time // oldest first, len <= cfg.MaxRecent
}

// NewDetector creates a detector with the given config.
func NewDetector(cfg Config) *Detector {
	return &Detector{
		cfg:    cfg,
		recent: make([]time.Time, 0, cfg.MaxRecent),
	}
}

// Update feeds one averaged EAR sample observed at now. It reports whether
// this sample completed a blink.
func (d *Detector) Update(ear float64, now time.Time) bool {
	if ear < d.cfg.Threshold {
		d.closed++
		return false
	}

	blinked := d.closed >= d.cfg.ConsecFrames
	d.closed = 0
	if !blinked {
		return false
	}

	d.total++
	if len(d.recent) == d.cfg.MaxRecent {
		copy(d.recent, d.recent[1:])
		d.recent = d.recent[:len(d.recent)-1]
	}
	d.recent = append(d.recent, now)
	return true
}

// Rate returns the number of blinks in (now-RateWindow, now]. With the default
// 60 s window this is blinks per minute.
func (d *Detector) Rate(now time.Time) int {
	cutoff := now.Add(-d.cfg.RateWindow)
	n := 0
	for _, ts := range d.recent {
		if ts.After(cutoff) && !ts.After(now) {
			n++
		}
	}
	return n
}

// Total returns the cumulative blink count.
func (d *Detector) Total() int {
	return d.total
}

// ClosedFrames returns the current run of below-threshold frames.
func (d *Detector) ClosedFrames() int {
	return d.closed
}
