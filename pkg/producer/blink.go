package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/teslashibe/go-focus/pkg/blink"
	"github.com/teslashibe/go-focus/pkg/ear"
	"github.com/teslashibe/go-focus/pkg/sensor"
	"github.com/teslashibe/go-focus/pkg/snapshot"
)

// BlinkProducer reads camera frames, feeds the blink detector and submits
// blink snapshots.
type BlinkProducer struct {
	cfg  BlinkConfig
	src  sensor.FrameSource
	sink Sink
	det  *blink.Detector
	log  *slog.Logger
	now  func() time.Time

	start time.Time
}

// NewBlinkProducer creates a producer over an open frame source.
func NewBlinkProducer(cfg BlinkConfig, src sensor.FrameSource, sink Sink, opts ...Option) (*BlinkProducer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &BlinkProducer{
		cfg:  cfg,
		src:  src,
		sink: sink,
		det:  blink.NewDetector(cfg.Detector),
		log:  o.log.With("producer", "blink"),
		now:  o.now,
	}, nil
}

// Run processes frames until ctx is cancelled or the source ends. It always
// closes the source and submits a final stopped or error snapshot. A nil
// return means a clean stop.
func (p *BlinkProducer) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := p.src.Close(); cerr != nil {
			p.log.Warn("close frame source", "error", cerr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = recovered("blink", r)
			p.log.Error("producer panic", "panic", r)
			p.submit(snapshot.StatusError, false, 0, err.Error())
		}
	}()

	p.start = p.now()
	p.submit(snapshot.StatusConnected, false, 0, MsgBlinkStarted)
	p.log.Info("blink detection started")

	var last time.Time
	for {
		if ctx.Err() != nil {
			p.stop()
			return nil
		}

		frame, ferr := p.src.NextFrame(ctx)
		switch {
		case ferr == nil:
		case errors.Is(ferr, sensor.ErrNoFrame):
			p.submit(snapshot.StatusError, false, 0, MsgNoFrame)
			if !sleep(ctx, p.cfg.RetryDelay) {
				p.stop()
				return nil
			}
			continue
		case errors.Is(ferr, io.EOF), ctx.Err() != nil:
			p.stop()
			return nil
		default:
			p.submit(snapshot.StatusError, false, 0, ferr.Error())
			p.log.Error("frame source failed", "error", ferr)
			return fmt.Errorf("read frame: %w", ferr)
		}

		now := p.now()
		value, face := p.observe(frame, now)

		if last.IsZero() || now.Sub(last) >= p.cfg.UpdateEvery {
			status := snapshot.StatusNoFace
			if face {
				status = snapshot.StatusTracking
			}
			p.submit(status, face, value, "")
			last = now
		}

		if !sleep(ctx, p.cfg.FrameInterval) {
			p.stop()
			return nil
		}
	}
}

// observe feeds one frame to the detector and returns the averaged EAR and
// whether a usable face was seen.
func (p *BlinkProducer) observe(f sensor.Frame, now time.Time) (float64, bool) {
	if !f.Face {
		return 0, false
	}
	value, err := ear.Average(f.Left, f.Right)
	if err != nil {
		p.log.Debug("skipping frame", "error", err)
		return 0, false
	}
	if p.det.Update(value, now) {
		p.log.Debug("blink", "total", p.det.Total())
	}
	return value, true
}

func (p *BlinkProducer) stop() {
	p.submit(snapshot.StatusStopped, false, 0, MsgBlinkStopped)
	p.log.Info("blink detection stopped", "total", p.det.Total())
}

func (p *BlinkProducer) submit(status string, face bool, value float64, msg string) {
	now := p.now()
	s := snapshot.NewBlink(status, now, snapshot.Blink{
		Total:        p.det.Total(),
		Rate:         p.det.Rate(now),
		EAR:          value,
		FaceDetected: face,
		Elapsed:      now.Sub(p.start),
	})
	if msg != "" {
		s = s.WithMessage(msg)
	}
	p.sink.Submit(s)
}

