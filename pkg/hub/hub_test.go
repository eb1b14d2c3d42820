package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/snapshot"
)

// fakeSub records messages; fail makes every Send error.
type fakeSub struct {
	id   string
	fail bool

	mu     sync.Mutex
	msgs   [][]byte
	closed bool
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return ErrSlowSubscriber
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSub) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func (f *fakeSub) last(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		t.Fatalf("%s received nothing", f.id)
	}
	var m map[string]any
	if err := json.Unmarshal(f.msgs[len(f.msgs)-1], &m); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	return m
}

func (f *fakeSub) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeCtrl counts producer starts.
type fakeCtrl struct {
	mu       sync.Mutex
	running  bool
	starts   int
	startErr error
}

func (c *fakeCtrl) Start(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return false, c.startErr
	}
	if c.running {
		return false, nil
	}
	c.running = true
	c.starts++
	return true, nil
}

func (c *fakeCtrl) Stop(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false, nil
	}
	c.running = false
	return true, nil
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func startHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard()), WithClock(func() time.Time { return base })}, opts...)
	h := New("test", DefaultConfig(), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func register(t *testing.T, h *Hub, subs ...*fakeSub) {
	t.Helper()
	for _, s := range subs {
		if err := h.Register(context.Background(), s); err != nil {
			t.Fatalf("Register(%s): %v", s.id, err)
		}
	}
}

// settle waits until the hub has processed everything queued so far.
func settle(t *testing.T, h *Hub) {
	t.Helper()
	if _, err := h.Latest(context.Background()); err != nil {
		t.Fatalf("Latest: %v", err)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func tracking(total int) snapshot.Snapshot {
	return snapshot.NewBlink(snapshot.StatusTracking, base, snapshot.Blink{
		Total: total, Rate: total, EAR: 0.31, FaceDetected: true,
	})
}

func focusSnap() snapshot.Snapshot {
	return snapshot.NewFocus(snapshot.StatusFocus, base, snapshot.Focus{
		Engagement: 1.2, Score: 64, Mean: 1, Std: 0.2, Total: 30, Progress: 30,
	})
}

func TestNew(t *testing.T) {
	h := New("status", DefaultConfig())
	if h.Name() != "status" {
		t.Errorf("Name = %q", h.Name())
	}
	if h.IsRunning() {
		t.Error("hub should not be running before Run")
	}
	if h.SubscriberCount() != 0 {
		t.Error("SubscriberCount should be 0 initially")
	}
}

func TestFanOut_FailingSubscriberRemoved(t *testing.T) {
	h := startHub(t)
	s1 := &fakeSub{id: "one"}
	s2 := &fakeSub{id: "two", fail: true}
	s3 := &fakeSub{id: "three"}
	register(t, h, s1, s2, s3)

	h.Submit(tracking(1))
	settle(t, h)

	if s1.count() != 1 || s3.count() != 1 {
		t.Fatalf("healthy subscribers got %d and %d messages, want 1 each", s1.count(), s3.count())
	}
	if !s2.isClosed() {
		t.Error("failing subscriber should be closed")
	}
	if h.SubscriberCount() != 2 {
		t.Errorf("SubscriberCount = %d, want 2", h.SubscriberCount())
	}

	h.Submit(tracking(2))
	settle(t, h)

	if s1.count() != 2 || s3.count() != 2 {
		t.Errorf("second fan-out: %d and %d, want 2 each", s1.count(), s3.count())
	}
	if s2.count() != 0 {
		t.Errorf("removed subscriber received %d messages", s2.count())
	}

	st := h.Stats()
	if st.Published != 2 || st.Delivered != 4 || st.Dropped != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.PerClient["one"].Sent != 2 {
		t.Errorf("per-client sent = %+v", st.PerClient["one"])
	}
}

func TestMerge_BlinkOnlyWithoutFocus(t *testing.T) {
	h := startHub(t)
	s := &fakeSub{id: "a"}
	register(t, h, s)

	h.Submit(tracking(3))
	settle(t, h)

	m := s.last(t)
	if m["status"] != "blink_only" {
		t.Fatalf("status = %v, want blink_only", m["status"])
	}
	blinks := m["blinks"].(map[string]any)
	if blinks["total"].(float64) != 3 || blinks["face_detected"] != true {
		t.Errorf("blinks = %v", blinks)
	}
}

func TestMerge_FocusCarriesBlinks(t *testing.T) {
	h := startHub(t)
	s := &fakeSub{id: "a"}
	register(t, h, s)

	h.Submit(tracking(5))
	h.Submit(focusSnap())
	settle(t, h)

	m := s.last(t)
	if m["status"] != "focus" {
		t.Fatalf("status = %v, want focus", m["status"])
	}
	blinks, ok := m["blinks"].(map[string]any)
	if !ok {
		t.Fatalf("focus message missing blinks: %v", m)
	}
	if blinks["total"].(float64) != 5 || blinks["ear"].(float64) != 0.31 {
		t.Errorf("blinks = %v", blinks)
	}

	// With a live focus stream, tracking blinks are merged, not sent alone.
	before := s.count()
	h.Submit(tracking(6))
	settle(t, h)
	if s.count() != before {
		t.Errorf("blink snapshot broadcast standalone while focus active")
	}
}

func TestMerge_StaleFocusFallsBackToBlinkOnly(t *testing.T) {
	now := base.Add(time.Minute)
	h := startHub(t, WithClock(func() time.Time { return now }))
	s := &fakeSub{id: "a"}
	register(t, h, s)

	h.Submit(focusSnap()) // stamped at base, a minute old
	h.Submit(tracking(1))
	settle(t, h)

	if m := s.last(t); m["status"] != "blink_only" {
		t.Errorf("status = %v, want blink_only for stale focus", m["status"])
	}
}

func TestMerge_StaleBlinkNotCarried(t *testing.T) {
	now := base.Add(10 * time.Second)
	h := startHub(t, WithClock(func() time.Time { return now }))
	s := &fakeSub{id: "a"}
	register(t, h, s)

	h.Submit(tracking(7)) // stamped at base, ten seconds old
	f := focusSnap()
	f.Timestamp = now
	h.Submit(f)
	settle(t, h)

	m := s.last(t)
	if m["status"] != "focus" {
		t.Fatalf("status = %v, want focus", m["status"])
	}
	if _, ok := m["blinks"]; ok {
		t.Errorf("focus carried stale blinks: %v", m["blinks"])
	}

	fresh := tracking(8)
	fresh.Timestamp = now
	h.Submit(fresh)
	h.Submit(f)
	settle(t, h)
	if blinks, ok := s.last(t)["blinks"].(map[string]any); !ok || blinks["total"].(float64) != 8 {
		t.Errorf("fresh blinks not carried: %v", s.last(t))
	}
}

func TestMerge_StoppedBlinkNotMerged(t *testing.T) {
	h := startHub(t)
	s := &fakeSub{id: "a"}
	register(t, h, s)

	h.Submit(tracking(4))
	h.Submit(snapshot.NewBlink(snapshot.StatusStopped, base, snapshot.Blink{Total: 4}).WithMessage("Blink detection stopped"))
	settle(t, h)

	m := s.last(t)
	if m["status"] != "stopped" || m["total_blinks"].(float64) != 4 {
		t.Fatalf("stopped message = %v", m)
	}

	h.Submit(focusSnap())
	settle(t, h)
	if _, ok := s.last(t)["blinks"]; ok {
		t.Error("focus should not carry blinks after the blink producer stopped")
	}
}

func TestMerge_CalibratingPassThrough(t *testing.T) {
	h := startHub(t)
	s := &fakeSub{id: "a"}
	register(t, h, s)

	h.Submit(tracking(1))
	h.Submit(snapshot.NewFocus(snapshot.StatusCalibrating, base, snapshot.Focus{Progress: 4, Total: 30}))
	settle(t, h)

	m := s.last(t)
	if m["status"] != "calibrating" || m["progress"].(float64) != 4 || m["total"].(float64) != 30 {
		t.Errorf("calibrating message = %v", m)
	}
	if _, ok := m["blinks"]; ok {
		t.Error("calibrating message should not carry blinks")
	}
}

func TestHandleControl_ReplyOnlyToRequester(t *testing.T) {
	ctrl := &fakeCtrl{}
	h := startHub(t, WithController(ctrl))
	asker := &fakeSub{id: "asker"}
	other := &fakeSub{id: "other"}
	register(t, h, asker, other)

	reply := h.HandleControl(context.Background(), "asker", []byte(`{"action":"startBlinkTracking"}`))
	if reply.Status != "success" {
		t.Fatalf("reply = %+v", reply)
	}
	settle(t, h)

	if m := asker.last(t); m["status"] != "success" {
		t.Errorf("asker got %v", m)
	}
	if other.count() != 0 {
		t.Errorf("other subscriber received %d messages", other.count())
	}
}

func TestHandleControl_Idempotent(t *testing.T) {
	ctrl := &fakeCtrl{}
	h := startHub(t, WithController(ctrl))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r := h.HandleControl(ctx, "nobody", []byte(`{"action":"startBlinkTracking"}`))
		if r.Status != "success" {
			t.Fatalf("start %d: %+v", i, r)
		}
	}
	if ctrl.starts != 1 {
		t.Errorf("producer started %d times, want 1", ctrl.starts)
	}

	for i := 0; i < 2; i++ {
		r := h.HandleControl(ctx, "nobody", []byte(`{"action":"stopBlinkTracking"}`))
		if r.Status != "success" {
			t.Fatalf("stop %d: %+v", i, r)
		}
	}
}

func TestHandleControl_Errors(t *testing.T) {
	tests := []struct {
		name    string
		ctrl    BlinkController
		payload string
		message string
	}{
		{"invalid json", &fakeCtrl{}, `{nope`, "Invalid JSON"},
		{"unknown action", &fakeCtrl{}, `{"action":"fly"}`, "Unknown action: fly"},
		{"start failure", &fakeCtrl{startErr: errors.New("no camera")}, `{"action":"startBlinkTracking"}`, "Failed to start blink tracking: no camera"},
		{"no controller", nil, `{"action":"stopBlinkTracking"}`, "Blink tracking is not available"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var opts []Option
			if tc.ctrl != nil {
				opts = append(opts, WithController(tc.ctrl))
			}
			h := startHub(t, opts...)
			r := h.HandleControl(context.Background(), "x", []byte(tc.payload))
			if r.Status != "error" || r.Message != tc.message {
				t.Errorf("reply = %+v, want error %q", r, tc.message)
			}
		})
	}
}

func TestSubmit_NeverBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 2
	h := New("idle", cfg, WithLogger(log.Discard()))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Submit(tracking(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a hub that is not running")
	}
	if got := h.Stats().Rejected; got != 8 {
		t.Errorf("Rejected = %d, want 8", got)
	}
}

func TestRun_ClosesSubscribersOnExit(t *testing.T) {
	h := New("exit", DefaultConfig(), WithLogger(log.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	s := &fakeSub{id: "a"}
	register(t, h, s)
	eventually(t, func() bool { return h.SubscriberCount() == 1 })

	cancel()
	<-done

	if !s.isClosed() {
		t.Error("subscriber not closed on hub exit")
	}
	if err := h.Register(context.Background(), &fakeSub{id: "late"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Register after exit = %v, want ErrClosed", err)
	}
}

func TestUnregister(t *testing.T) {
	h := startHub(t)
	s := &fakeSub{id: "a"}
	register(t, h, s)

	h.Unregister("a")
	h.Unregister("missing")
	settle(t, h)

	if h.SubscriberCount() != 0 || !s.isClosed() {
		t.Errorf("count=%d closed=%v", h.SubscriberCount(), s.isClosed())
	}
}

func TestLatest(t *testing.T) {
	h := startHub(t)
	h.Submit(tracking(2))
	settle(t, h)

	l, err := h.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if l.Blink == nil || l.Blink.Blink.Total != 2 {
		t.Errorf("Latest.Blink = %+v", l.Blink)
	}
	if l.Focus != nil {
		t.Errorf("Latest.Focus = %+v, want nil", l.Focus)
	}
}
