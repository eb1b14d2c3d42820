package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/sensor"
	"github.com/teslashibe/go-focus/pkg/snapshot"
)

// FocusProducer reads EEG samples into a sliding window and submits focus
// snapshots at most once per UpdateEvery.
type FocusProducer struct {
	cfg  focus.Config
	src  sensor.SampleSource
	sink Sink
	win  *focus.Window
	calc *focus.Calculator
	log  *slog.Logger
	now  func() time.Time
}

// NewFocusProducer creates a producer over an open sample source. A positive
// source rate overrides cfg.SampleRate.
func NewFocusProducer(cfg focus.Config, src sensor.SampleSource, sink Sink, opts ...Option) (*FocusProducer, error) {
	if r := src.SampleRate(); r > 0 {
		cfg.SampleRate = r
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &FocusProducer{
		cfg:  cfg,
		src:  src,
		sink: sink,
		win:  focus.NewWindow(cfg.Channels, cfg.WindowSamples()),
		calc: focus.NewCalculator(cfg),
		log:  o.log.With("producer", "focus"),
		now:  o.now,
	}, nil
}

// Run processes samples until ctx is cancelled or the source ends. Sample
// timeouts are reported and skipped. The source is closed on return.
func (p *FocusProducer) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := p.src.Close(); cerr != nil {
			p.log.Warn("close sample source", "error", cerr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = recovered("focus", r)
			p.log.Error("producer panic", "panic", r)
			p.fail(err.Error())
		}
	}()

	p.log.Info("focus stream started",
		"rate", p.cfg.SampleRate,
		"window", p.cfg.WindowLen,
		"channels", p.cfg.Channels)

	var last time.Time
	for {
		sample, serr := p.src.NextSample(ctx)
		switch {
		case serr == nil:
		case errors.Is(serr, sensor.ErrTimeout):
			p.log.Warn("eeg sample timeout")
			p.fail(MsgNoEEG)
			continue
		case ctx.Err() != nil:
			return nil
		case errors.Is(serr, io.EOF):
			p.log.Info("eeg stream ended")
			return nil
		default:
			p.fail(serr.Error())
			return fmt.Errorf("read sample: %w", serr)
		}

		p.win.Push(sample)
		if !p.win.Full() {
			continue
		}
		now := p.now()
		if !last.IsZero() && now.Sub(last) <= p.cfg.UpdateEvery {
			continue
		}
		last = now

		res, cerr := p.calc.Update(p.win.Channels())
		if cerr != nil {
			p.log.Warn("skipping window", "error", cerr)
			continue
		}
		p.sink.Submit(snapshot.NewFocus(res.Status, now, snapshot.Focus{
			Progress:   res.Progress,
			Total:      res.Total,
			Engagement: res.Engagement,
			Score:      res.Focus,
			Mean:       res.Mean,
			Std:        res.Std,
		}))
		if res.Calibrated() {
			p.log.Debug("focus", "engagement", res.Engagement, "score", res.Focus)
		} else {
			p.log.Debug("calibrating", "progress", res.Progress, "total", res.Total)
		}
	}
}

func (p *FocusProducer) fail(msg string) {
	p.sink.Submit(snapshot.NewFocus(snapshot.StatusError, p.now(), snapshot.Focus{}).WithMessage(msg))
}
