package sensor

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// SyntheticEEG generates a 4-channel signal built from theta, alpha and beta
// sine components plus gaussian noise. The beta amplitude drifts slowly so the
// focus score moves around after calibration.
type SyntheticEEG struct {
	rate     float64
	channels int
	theta    float64
	alpha    float64
	beta     float64
	noise    float64
	drift    time.Duration
	realtime bool

	rng   *rand.Rand
	n     int64
	start time.Time
}

// SyntheticOption configures a SyntheticEEG.
type SyntheticOption func(*SyntheticEEG)

// WithBandAmplitudes sets the peak amplitude (µV) of the 6, 10 and 20 Hz
// components.
func WithBandAmplitudes(theta, alpha, beta float64) SyntheticOption {
	return func(s *SyntheticEEG) {
		s.theta, s.alpha, s.beta = theta, alpha, beta
	}
}

// WithNoise sets the noise standard deviation and seed.
func WithNoise(std float64, seed int64) SyntheticOption {
	return func(s *SyntheticEEG) {
		s.noise = std
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithDrift sets the period of the beta amplitude modulation. Zero disables it.
func WithDrift(period time.Duration) SyntheticOption {
	return func(s *SyntheticEEG) {
		s.drift = period
	}
}

// WithRealtime paces samples at the nominal rate instead of returning them
// as fast as they are requested.
func WithRealtime(on bool) SyntheticOption {
	return func(s *SyntheticEEG) {
		s.realtime = on
	}
}

// NewSyntheticEEG creates a synthetic headband at rate Hz.
func NewSyntheticEEG(rate float64, opts ...SyntheticOption) *SyntheticEEG {
	s := &SyntheticEEG{
		rate:     rate,
		channels: 4,
		theta:    6,
		alpha:    8,
		beta:     5,
		noise:    2,
		drift:    90 * time.Second,
		realtime: true,
		rng:      rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextSample returns the next generated sample.
func (s *SyntheticEEG) NextSample(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.realtime {
		if s.start.IsZero() {
			s.start = time.Now()
		}
		due := s.start.Add(time.Duration(float64(s.n) / s.rate * float64(time.Second)))
		if wait := time.Until(due); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}

	tsec := float64(s.n) / s.rate
	s.n++

	beta := s.beta
	if s.drift > 0 {
		beta *= 1 + 0.6*math.Sin(2*math.Pi*tsec/s.drift.Seconds())
	}

	sample := make([]float64, s.channels)
	for ch := range sample {
		phase := float64(ch) * 0.3
		sample[ch] = s.theta*math.Sin(2*math.Pi*6*tsec+phase) +
			s.alpha*math.Sin(2*math.Pi*10*tsec+phase) +
			beta*math.Sin(2*math.Pi*20*tsec+phase) +
			s.noise*s.rng.NormFloat64()
	}
	return sample, nil
}

// SampleRate returns the nominal rate.
func (s *SyntheticEEG) SampleRate() float64 {
	return s.rate
}

// Close is a no-op.
func (s *SyntheticEEG) Close() error {
	return nil
}
