package sensor

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// FrameStep is one scripted NextFrame result.
type FrameStep struct {
	Frame Frame
	Err   error
}

// ScriptedFrames replays a fixed sequence of frames.
type ScriptedFrames struct {
	mu     sync.Mutex
	steps  []FrameStep
	pos    int
	loop   bool
	closed atomic.Bool
	reads  atomic.Int64
}

// NewScriptedFrames creates a replay source. With loop set the script
// repeats forever; otherwise io.EOF follows the last step.
func NewScriptedFrames(steps []FrameStep, loop bool) *ScriptedFrames {
	return &ScriptedFrames{steps: steps, loop: loop}
}

// NextFrame returns the next scripted step.
func (s *ScriptedFrames) NextFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.closed.Load() {
		return Frame{}, io.ErrClosedPipe
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.steps) {
		if !s.loop || len(s.steps) == 0 {
			return Frame{}, io.EOF
		}
		s.pos = 0
	}
	step := s.steps[s.pos]
	s.pos++
	s.reads.Add(1)
	return step.Frame, step.Err
}

// Close marks the source closed.
func (s *ScriptedFrames) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (s *ScriptedFrames) Closed() bool {
	return s.closed.Load()
}

// Reads returns how many frames were served.
func (s *ScriptedFrames) Reads() int64 {
	return s.reads.Load()
}

// SampleStep is one scripted NextSample result.
type SampleStep struct {
	Sample []float64
	Err    error
}

// ScriptedSamples replays a fixed sequence of EEG samples, then returns
// io.EOF.
type ScriptedSamples struct {
	mu     sync.Mutex
	steps  []SampleStep
	pos    int
	rate   float64
	closed atomic.Bool
}

// NewScriptedSamples creates a replay sample source.
func NewScriptedSamples(rate float64, steps []SampleStep) *ScriptedSamples {
	return &ScriptedSamples{steps: steps, rate: rate}
}

// NextSample returns the next scripted step.
func (s *ScriptedSamples) NextSample(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.steps) {
		return nil, io.EOF
	}
	step := s.steps[s.pos]
	s.pos++
	return step.Sample, step.Err
}

// SampleRate returns the configured rate.
func (s *ScriptedSamples) SampleRate() float64 {
	return s.rate
}

// Close marks the source closed.
func (s *ScriptedSamples) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (s *ScriptedSamples) Closed() bool {
	return s.closed.Load()
}
