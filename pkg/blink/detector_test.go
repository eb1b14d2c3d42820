package blink

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func feed(d *Detector, ears []float64, start time.Time, step time.Duration) []int {
	var at []int
	for i, e := range ears {
		if d.Update(e, start.Add(time.Duration(i)*step)) {
			at = append(at, i)
		}
	}
	return at
}

func TestDetector_SingleBlink(t *testing.T) {
	d := NewDetector(DefaultConfig())

	at := feed(d, []float64{0.3, 0.2, 0.2, 0.2, 0.2, 0.3}, t0, 33*time.Millisecond)

	if len(at) != 1 || at[0] != 5 {
		t.Fatalf("blinks at %v, want exactly [5]", at)
	}
	if d.Total() != 1 {
		t.Errorf("Total = %d, want 1", d.Total())
	}
	if d.ClosedFrames() != 0 {
		t.Errorf("ClosedFrames = %d, want 0 after reopen", d.ClosedFrames())
	}
}

func TestDetector_RunLengths(t *testing.T) {
	tests := []struct {
		name  string
		ears  []float64
		wants []int
	}{
		{"too short run", []float64{0.3, 0.2, 0.2, 0.2, 0.3}, nil},
		{"long run counts once", []float64{0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.3, 0.3}, []int{7}},
		{"no recovery no blink", []float64{0.2, 0.2, 0.2, 0.2, 0.2}, nil},
		{"threshold counts as open", []float64{0.1, 0.1, 0.1, 0.1, 0.25}, []int{4}},
		{"two runs", []float64{0.1, 0.1, 0.1, 0.1, 0.3, 0.1, 0.1, 0.1, 0.1, 0.1, 0.4}, []int{4, 10}},
		{"interrupted run resets", []float64{0.1, 0.1, 0.3, 0.1, 0.1, 0.3}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDetector(DefaultConfig())
			at := feed(d, tc.ears, t0, 33*time.Millisecond)
			if len(at) != len(tc.wants) {
				t.Fatalf("blinks at %v, want %v", at, tc.wants)
			}
			for i := range at {
				if at[i] != tc.wants[i] {
					t.Errorf("blink %d at %d, want %d", i, at[i], tc.wants[i])
				}
			}
			if d.Total() != len(tc.wants) {
				t.Errorf("Total = %d, want %d", d.Total(), len(tc.wants))
			}
		})
	}
}

func blinkAt(d *Detector, ts time.Time) {
	for i := 0; i < d.cfg.ConsecFrames; i++ {
		d.Update(0.1, ts)
	}
	d.Update(0.3, ts)
}

func TestDetector_RateWindow(t *testing.T) {
	d := NewDetector(DefaultConfig())

	blinkAt(d, t0)
	blinkAt(d, t0.Add(20*time.Second))
	blinkAt(d, t0.Add(40*time.Second))

	tests := []struct {
		at   time.Duration
		want int
	}{
		{40 * time.Second, 3},
		{59 * time.Second, 3},
		{60 * time.Second, 2}, // t0 is no longer inside (T-60s, T]
		{80 * time.Second, 1},
		{100 * time.Second, 0},
	}

	prev := d.Rate(t0.Add(40 * time.Second))
	for _, tc := range tests {
		got := d.Rate(t0.Add(tc.at))
		if got != tc.want {
			t.Errorf("Rate(+%v) = %d, want %d", tc.at, got, tc.want)
		}
		if got > prev {
			t.Errorf("Rate increased from %d to %d without new blinks", prev, got)
		}
		prev = got
	}

	if d.Total() != 3 {
		t.Errorf("Total = %d, want 3", d.Total())
	}
}

func TestDetector_RecentCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRecent = 5
	d := NewDetector(cfg)

	for i := 0; i < 8; i++ {
		blinkAt(d, t0.Add(time.Duration(i)*time.Second))
	}

	if d.Total() != 8 {
		t.Errorf("Total = %d, want 8", d.Total())
	}
	if got := d.Rate(t0.Add(10 * time.Second)); got != 5 {
		t.Errorf("Rate = %d, want 5 (capped)", got)
	}
	if d.recent[0] != t0.Add(3*time.Second) {
		t.Errorf("oldest kept = %v, want t0+3s", d.recent[0])
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	bad := DefaultConfig()
	bad.ConsecFrames = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for consec_frames=0")
	}
}
