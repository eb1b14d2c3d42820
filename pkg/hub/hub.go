package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/teslashibe/go-focus/pkg/protocol"
	"github.com/teslashibe/go-focus/pkg/snapshot"
)

// ErrClosed is returned by entry points once Run has exited.
var ErrClosed = errors.New("hub: closed")

// Subscriber receives serialized broadcast messages.
type Subscriber interface {
	// ID uniquely identifies the subscriber within the hub.
	ID() string

	// Send queues msg for delivery. It must not block; a full queue or a
	// dead connection is reported as an error and gets the subscriber removed.
	Send(msg []byte) error

	// Close is called once by the hub after the subscriber is removed.
	Close()
}

// BlinkController starts and stops the blink producer. Both calls are
// idempotent and report whether they changed anything.
type BlinkController interface {
	Start(ctx context.Context) (bool, error)
	Stop(ctx context.Context) (bool, error)
}

// Config holds hub tuning.
type Config struct {
	// QueueSize bounds the producer hand-off queue.
	QueueSize int

	// FocusStaleAfter is how long a focus stream counts as active after its
	// last snapshot. Blink snapshots are broadcast standalone when no focus
	// stream is active.
	FocusStaleAfter time.Duration

	// BlinkStaleAfter is how long the latest tracking blink snapshot may be
	// carried on focus messages. A camera loop stuck in a device read stops
	// producing snapshots, and its figures drop off after this.
	BlinkStaleAfter time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:       256,
		FocusStaleAfter: 5 * time.Second,
		BlinkStaleAfter: 3 * time.Second,
	}
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		h.log = l
	}
}

// WithClock overrides the hub clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		h.now = now
	}
}

// WithController attaches the blink producer controller.
func WithController(c BlinkController) Option {
	return func(h *Hub) {
		h.ctrl = c
	}
}

type directMsg struct {
	id   string
	data []byte
}

// Latest is a copy of the hub's most recent snapshots.
type Latest struct {
	Blink *snapshot.Snapshot
	Focus *snapshot.Snapshot
}

// Hub is the single owner of the latest snapshots and the subscriber set.
// All state lives in the Run goroutine; the exported methods only pass
// messages to it.
type Hub struct {
	name string
	cfg  Config
	log  *slog.Logger
	now  func() time.Time
	ctrl BlinkController

	register   chan Subscriber
	unregister chan string
	submit     chan snapshot.Snapshot
	direct     chan directMsg
	query      chan chan Latest
	done       chan struct{}

	// Owned by Run.
	subs        map[string]Subscriber
	latestBlink *snapshot.Snapshot
	latestFocus *snapshot.Snapshot

	// Stats, readable from any goroutine.
	running   atomic.Bool
	subCount  atomic.Int64
	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	perSub    *xsync.MapOf[string, *subscriberStats]
}

// New creates a hub. Call Run to start it.
func New(name string, cfg Config, opts ...Option) *Hub {
	if cfg.BlinkStaleAfter <= 0 {
		cfg.BlinkStaleAfter = DefaultConfig().BlinkStaleAfter
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	h := &Hub{
		name:       name,
		cfg:        cfg,
		log:        slog.Default(),
		now:        time.Now,
		register:   make(chan Subscriber),
		unregister: make(chan string, 16),
		submit:     make(chan snapshot.Snapshot, cfg.QueueSize),
		direct:     make(chan directMsg, cfg.QueueSize),
		query:      make(chan chan Latest),
		done:       make(chan struct{}),
		subs:       make(map[string]Subscriber),
		perSub:     xsync.NewMapOf[string, *subscriberStats](),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With("hub", name)
	return h
}

// Run processes hub events until ctx is cancelled. All subscribers are
// closed on exit.
func (h *Hub) Run(ctx context.Context) error {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
		for id := range h.subs {
			h.remove(id, "hub stopped")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case sub := <-h.register:
			if old, ok := h.subs[sub.ID()]; ok {
				old.Close()
			}
			h.subs[sub.ID()] = sub
			h.perSub.Store(sub.ID(), &subscriberStats{})
			h.subCount.Store(int64(len(h.subs)))
			h.log.Info("subscriber connected", "id", sub.ID(), "total", len(h.subs))

		case id := <-h.unregister:
			h.remove(id, "unsubscribed")

		case s := <-h.submit:
			h.merge(s)

		case d := <-h.direct:
			h.deliver(d.id, d.data)

		case reply := <-h.query:
			h.drain()
			var l Latest
			if h.latestBlink != nil {
				b := *h.latestBlink
				l.Blink = &b
			}
			if h.latestFocus != nil {
				f := *h.latestFocus
				l.Focus = &f
			}
			reply <- l
		}
	}
}

// drain merges every snapshot already queued, so a query observes all
// submissions that happened before it.
func (h *Hub) drain() {
	for {
		select {
		case s := <-h.submit:
			h.merge(s)
		default:
			return
		}
	}
}

// Submit hands a snapshot to the hub without blocking. If the queue is full
// the snapshot is dropped and counted.
func (h *Hub) Submit(s snapshot.Snapshot) {
	select {
	case h.submit <- s:
	default:
		h.rejected.Add(1)
		h.log.Warn("submit queue full, dropping snapshot", "kind", s.Kind, "status", s.Status)
	}
}

// Register adds a subscriber. It blocks until the hub accepts it or ctx ends.
func (h *Hub) Register(ctx context.Context, sub Subscriber) error {
	select {
	case h.register <- sub:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes a subscriber by id. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// SendTo delivers v to a single subscriber. Used for control replies.
func (h *Hub) SendTo(id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.direct <- directMsg{id: id, data: data}:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

// Latest returns copies of the most recent blink and focus snapshots,
// including every snapshot submitted before the call.
func (h *Hub) Latest(ctx context.Context) (Latest, error) {
	reply := make(chan Latest, 1)
	select {
	case h.query <- reply:
	case <-h.done:
		return Latest{}, ErrClosed
	case <-ctx.Done():
		return Latest{}, ctx.Err()
	}
	select {
	case l := <-reply:
		return l, nil
	case <-ctx.Done():
		return Latest{}, ctx.Err()
	}
}

// HandleControl executes a subscriber control request and sends the reply
// to that subscriber only. The reply is also returned.
func (h *Hub) HandleControl(ctx context.Context, id string, payload []byte) protocol.StatusMessage {
	reply := h.control(ctx, payload)
	if err := h.SendTo(id, reply); err != nil {
		h.log.Debug("control reply not delivered", "id", id, "error", err)
	}
	return reply
}

func (h *Hub) control(ctx context.Context, payload []byte) protocol.StatusMessage {
	c, err := protocol.ParseControl(payload)
	if err != nil {
		return protocol.Failure(protocol.MsgInvalidJSON)
	}

	switch c.Action {
	case protocol.ActionStartBlink, protocol.ActionStopBlink:
	default:
		return protocol.UnknownAction(c.Action)
	}

	if h.ctrl == nil {
		return protocol.Failure(protocol.MsgTrackingMissing)
	}

	if c.Action == protocol.ActionStartBlink {
		started, err := h.ctrl.Start(ctx)
		if err != nil {
			h.log.Warn("start blink tracking failed", "error", err)
			return protocol.Failure(protocol.PrefixStartFailed + err.Error())
		}
		if !started {
			return protocol.Success(protocol.MsgTrackingRunning)
		}
		return protocol.Success(protocol.MsgTrackingStarted)
	}

	stopped, err := h.ctrl.Stop(ctx)
	if err != nil {
		h.log.Warn("stop blink tracking failed", "error", err)
		return protocol.Failure(protocol.PrefixStopFailed + err.Error())
	}
	if !stopped {
		return protocol.Success(protocol.MsgTrackingIdle)
	}
	return protocol.Success(protocol.MsgTrackingStopped)
}

// merge records s and broadcasts the resulting message.
func (h *Hub) merge(s snapshot.Snapshot) {
	switch s.Kind {
	case snapshot.KindBlink:
		h.latestBlink = &s
		if !s.Tracking() {
			h.broadcast(protocol.NewBlinkMessage(s))
			return
		}
		if h.focusActive() {
			// Carried by the next focus message.
			return
		}
		h.broadcast(protocol.NewBlinkOnlyMessage(s))

	case snapshot.KindFocus:
		h.latestFocus = &s
		var blinks *protocol.BlinkSummary
		if s.Status == snapshot.StatusFocus && h.blinkLive() {
			b := protocol.NewBlinkSummary(*h.latestBlink)
			blinks = &b
		}
		h.broadcast(protocol.NewFocusMessage(s, blinks))
	}
}

func (h *Hub) focusActive() bool {
	f := h.latestFocus
	if f == nil || !f.Streaming() {
		return false
	}
	return h.now().Sub(f.Timestamp) <= h.cfg.FocusStaleAfter
}

// blinkLive reports whether the latest blink snapshot is a recent tracking
// update.
func (h *Hub) blinkLive() bool {
	b := h.latestBlink
	if b == nil || !b.Tracking() {
		return false
	}
	return h.now().Sub(b.Timestamp) <= h.cfg.BlinkStaleAfter
}

// broadcast marshals v once and offers it to every subscriber.
func (h *Hub) broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("marshal broadcast", "error", err)
		return
	}
	h.published.Add(1)
	for id := range h.subs {
		h.deliver(id, data)
	}
}

func (h *Hub) deliver(id string, data []byte) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	st, _ := h.perSub.Load(id)
	if err := sub.Send(data); err != nil {
		h.dropped.Add(1)
		if st != nil {
			st.dropped.Add(1)
		}
		h.log.Warn("dropping subscriber", "id", id, "error", err)
		h.remove(id, err.Error())
		return
	}
	h.delivered.Add(1)
	if st != nil {
		st.sent.Add(1)
	}
}

func (h *Hub) remove(id, reason string) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	h.perSub.Delete(id)
	h.subCount.Store(int64(len(h.subs)))
	sub.Close()
	h.log.Info("subscriber disconnected", "id", id, "reason", reason, "remaining", len(h.subs))
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}

// IsRunning returns whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// SubscriberCount returns the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	return int(h.subCount.Load())
}
