package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-focus/pkg/sensor"
)

// ErrNoCamera is returned by Start when no frame opener is configured.
var ErrNoCamera = errors.New("producer: no camera configured")

// BlinkController starts and stops the blink producer on request. Each Start
// opens a fresh frame source; Stop cancels the producer and waits for it to
// release the source. A Start that arrives while a Stop is draining waits for
// the old source to close before opening a new one.
type BlinkController struct {
	base context.Context
	cfg  BlinkConfig
	open sensor.FrameOpener
	sink Sink
	opts []Option
	log  *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{} // non-nil until the producer goroutine exits
	stopping bool
	lastErr  error
	started  time.Time
	runs     int
}

// ControllerStatus is a point-in-time view of the controller.
type ControllerStatus struct {
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	Runs      int       `json:"runs"`
	LastError string    `json:"last_error,omitempty"`
}

// NewBlinkController creates a controller. Producers started by it live at
// most as long as base.
func NewBlinkController(base context.Context, cfg BlinkConfig, open sensor.FrameOpener, sink Sink, opts ...Option) *BlinkController {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &BlinkController{
		base: base,
		cfg:  cfg,
		open: open,
		sink: sink,
		opts: opts,
		log:  o.log.With("component", "blink-controller"),
	}
}

// Start opens the camera and spawns the producer. It reports false without
// error if a producer is already running.
func (c *BlinkController) Start(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.stopping {
		done := c.done
		c.mu.Unlock()
		err := wait(ctx, done)
		c.mu.Lock()
		if err != nil {
			return false, err
		}
	}
	if c.done != nil {
		return false, nil
	}
	if c.open == nil {
		return false, ErrNoCamera
	}

	src, err := c.open(ctx)
	if err != nil {
		c.lastErr = err
		return false, fmt.Errorf("open camera: %w", err)
	}
	p, err := NewBlinkProducer(c.cfg, src, c.sink, c.opts...)
	if err != nil {
		src.Close()
		c.lastErr = err
		return false, err
	}

	runCtx, cancel := context.WithCancel(c.base)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.started = time.Now()
	c.runs++
	c.lastErr = nil

	go func() {
		err := p.Run(runCtx)
		cancel()

		c.mu.Lock()
		if err != nil {
			c.log.Error("blink producer exited", "error", err)
			c.lastErr = err
		}
		c.cancel, c.done, c.stopping = nil, nil, false
		c.mu.Unlock()
		close(done)
	}()

	c.log.Info("blink tracking started", "run", c.runs)
	return true, nil
}

// Stop cancels the running producer and waits for it to exit and close its
// source. It reports false if nothing was running or another Stop got there
// first; in that case it still waits for the producer to finish.
func (c *BlinkController) Stop(ctx context.Context) (bool, error) {
	c.mu.Lock()
	done := c.done
	if done == nil || c.stopping {
		c.mu.Unlock()
		if done == nil {
			return false, nil
		}
		return false, wait(ctx, done)
	}
	c.stopping = true
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	if err := wait(ctx, done); err != nil {
		return true, err
	}
	c.log.Info("blink tracking stopped")
	return true, nil
}

// Status returns the controller state. A producer being stopped is no longer
// reported as running.
func (c *BlinkController) Status() ControllerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := ControllerStatus{Runs: c.runs, Running: c.done != nil && !c.stopping}
	if st.Running {
		st.StartedAt = c.started
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Wait blocks until the current producer, if any, exits.
func (c *BlinkController) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for blink producer: %w", ctx.Err())
	}
}
