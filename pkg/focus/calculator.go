// Package focus turns EEG windows into a calibrated 1-100 focus score.
//
// Engagement is beta / (alpha + theta), averaged over channels. Each new
// engagement value is z-scored against the rolling history of recent values
// and mapped onto 1-100 with 50 as the baseline. The baseline is recomputed
// from the whole history on every update, so it keeps drifting with the user.
package focus

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-focus/pkg/spectral"
)

// epsilon keeps ratios finite for silent channels or a flat history.
const epsilon = 1e-6

// ErrNonFinite is returned for an engagement value that is NaN or infinite,
// typically from sample values large enough to overflow the PSD.
var ErrNonFinite = errors.New("focus: non-finite engagement")

// Status values emitted by the calculator.
const (
	StatusCalibrating = "calibrating"
	StatusFocus       = "focus"
)

// Config holds focus calculation parameters.
type Config struct {
	Channels    int           // EEG channels used (Muse: TP9, AF7, AF8, TP10)
	SampleRate  float64       // Hz
	WindowLen   time.Duration // Length of the analysis window
	UpdateEvery time.Duration // Minimum time between computations
	HistorySize int           // Engagement values kept for the baseline
	MinHistory  int           // Values required before a focus score is emitted
}

// DefaultConfig returns settings for a Muse headband at 256 Hz.
func DefaultConfig() Config {
	return Config{
		Channels:    4,
		SampleRate:  256,
		WindowLen:   4 * time.Second,
		UpdateEvery: time.Second,
		HistorySize: 30,
		MinHistory:  10,
	}
}

// WindowSamples returns the number of samples per channel in one window.
func (c Config) WindowSamples() int {
	return int(c.WindowLen.Seconds() * c.SampleRate)
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	switch {
	case c.Channels < 1:
		return errors.New("focus: channels must be at least 1")
	case c.SampleRate <= 0:
		return errors.New("focus: sample_rate must be positive")
	case c.WindowSamples() < 2:
		return errors.New("focus: window too short for the sample rate")
	case c.HistorySize < 1:
		return errors.New("focus: history_size must be at least 1")
	case c.MinHistory < 1 || c.MinHistory > c.HistorySize:
		return errors.New("focus: min_history must be in [1, history_size]")
	}
	return nil
}

// Result is the outcome of one calculator update.
type Result struct {
	Status     string
	Progress   int // history length while calibrating
	Total      int // history capacity
	Engagement float64
	Focus      float64
	Mean       float64
	Std        float64
}

// Calibrated reports whether the result carries a focus score.
func (r Result) Calibrated() bool {
	return r.Status == StatusFocus
}

// Calculator keeps the engagement history. Not safe for concurrent use.
type Calculator struct {
	cfg     Config
	history []float64 // oldest first, len <= cfg.HistorySize
}

// NewCalculator creates a calculator with an empty history.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{
		cfg:     cfg,
		history: make([]float64, 0, cfg.HistorySize),
	}
}

// Engagement computes beta / (alpha + theta + epsilon) from a window given as
// one sample slice per channel.
func Engagement(window [][]float64, fs float64) float64 {
	if len(window) == 0 {
		return 0
	}

	var theta, alpha, beta float64
	for _, sig := range window {
		freqs, psd := spectral.Welch(sig, fs, spectral.DefaultSegment)
		theta += spectral.Integrate(freqs, psd, spectral.Theta)
		alpha += spectral.Integrate(freqs, psd, spectral.Alpha)
		beta += spectral.Integrate(freqs, psd, spectral.Beta)
	}
	n := float64(len(window))
	theta /= n
	alpha /= n
	beta /= n

	return beta / (alpha + theta + epsilon)
}

// MapToFocusZ z-scores engagement against the baseline and maps it to
// 50 + 25z, clamped to [1, 100].
func MapToFocusZ(engagement, mean, std float64) float64 {
	z := (engagement - mean) / (std + epsilon)
	focus := 50 + 25*z
	switch {
	case focus < 1:
		return 1
	case focus > 100:
		return 100
	}
	return focus
}

// Update computes engagement for window and folds it into the history.
func (c *Calculator) Update(window [][]float64) (Result, error) {
	return c.Observe(Engagement(window, c.cfg.SampleRate))
}

// Observe folds an already computed engagement value into the history. A
// non-finite value is rejected with ErrNonFinite and leaves the history as
// it was.
func (c *Calculator) Observe(engagement float64) (Result, error) {
	if math.IsNaN(engagement) || math.IsInf(engagement, 0) {
		return Result{}, fmt.Errorf("%w: %v", ErrNonFinite, engagement)
	}
	if len(c.history) == c.cfg.HistorySize {
		copy(c.history, c.history[1:])
		c.history = c.history[:len(c.history)-1]
	}
	c.history = append(c.history, engagement)

	if len(c.history) < c.cfg.MinHistory {
		return Result{
			Status:   StatusCalibrating,
			Progress: len(c.history),
			Total:    c.cfg.HistorySize,
		}, nil
	}

	mean, std := stat.PopMeanStdDev(c.history, nil)
	return Result{
		Status:     StatusFocus,
		Total:      c.cfg.HistorySize,
		Progress:   len(c.history),
		Engagement: engagement,
		Focus:      MapToFocusZ(engagement, mean, std),
		Mean:       mean,
		Std:        std,
	}, nil
}

// History returns a copy of the engagement history, oldest first.
func (c *Calculator) History() []float64 {
	out := make([]float64, len(c.history))
	copy(out, c.history)
	return out
}
