package spectral

import (
	"math"
	"math/rand"
	"testing"
)

func sine(freq, amp, fs float64, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return x
}

func TestWelch_Frequencies(t *testing.T) {
	freqs, psd := Welch(make([]float64, 1024), 256, 0)

	if len(freqs) != 129 || len(psd) != 129 {
		t.Fatalf("got %d freqs / %d psd bins, want 129", len(freqs), len(psd))
	}
	if freqs[1] != 1 || freqs[128] != 128 {
		t.Errorf("freq axis = [%v ... %v], want 1 Hz spacing up to 128 Hz", freqs[1], freqs[128])
	}
}

func TestWelch_FixedVector(t *testing.T) {
	// Reference from scipy.signal.welch(x, fs=4, nperseg=8): periodic Hann,
	// 4-sample overlap, constant detrend, density scaling, three segments.
	x := []float64{
		0.8, -1.3, 2.1, 0.4, -0.7, 1.9, -2.2, 0.3,
		1.1, -0.5, 0.6, -1.8, 2.4, 0.0, -0.9, 1.5,
	}
	wantFreqs := []float64{0, 0.5, 1, 1.5, 2}
	wantPSD := []float64{
		0.025543265107872516,
		0.22272385697729066,
		0.7330736736012765,
		2.1606934111071534,
		0.5568142182641839,
	}

	freqs, psd := Welch(x, 4, 8)
	if len(freqs) != len(wantFreqs) || len(psd) != len(wantPSD) {
		t.Fatalf("got %d freqs / %d bins, want %d", len(freqs), len(psd), len(wantPSD))
	}
	for k := range wantPSD {
		if freqs[k] != wantFreqs[k] {
			t.Errorf("freqs[%d] = %v, want %v", k, freqs[k], wantFreqs[k])
		}
		if math.Abs(psd[k]-wantPSD[k]) > 1e-12 {
			t.Errorf("psd[%d] = %.17g, want %.17g", k, psd[k], wantPSD[k])
		}
	}
}

func TestWelch_ShortInput(t *testing.T) {
	freqs, _ := Welch(make([]float64, 100), 256, 256)
	if len(freqs) != 51 {
		t.Errorf("len(freqs) = %d, want 51 for a 100-sample segment", len(freqs))
	}
}

func TestBandPower_Sine(t *testing.T) {
	// A unit sine centred on a bin spreads over the Hann main lobe; the
	// integral over the band recovers its power A^2/2.
	x := sine(10, 1, 256, 1024)

	alpha := BandPower(x, 256, Alpha)
	if math.Abs(alpha-0.5) > 1e-6 {
		t.Errorf("alpha power = %.8f, want 0.5", alpha)
	}

	beta := BandPower(x, 256, Beta)
	if beta > 1e-6 {
		t.Errorf("beta power = %.8f, want ~0", beta)
	}

	x2 := sine(20, 2, 256, 1024)
	if got := BandPower(x2, 256, Beta); math.Abs(got-2) > 1e-6 {
		t.Errorf("beta power of amplitude-2 sine = %.8f, want 2", got)
	}
}

func TestBandPower_ConstantSignal(t *testing.T) {
	x := make([]float64, 1024)
	for i := range x {
		x[i] = 42
	}
	if got := BandPower(x, 256, Theta); got > 1e-12 {
		t.Errorf("constant signal theta power = %v, want 0 after detrend", got)
	}
}

func TestBandPower_NonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	bands := []Band{Theta, Alpha, Beta, {Lo: 0, Hi: 128}, {Lo: 10, Hi: 10}, {Lo: 0.5, Hi: 1.5}}

	for trial := 0; trial < 20; trial++ {
		n := 64 + rng.Intn(1024)
		x := make([]float64, n)
		for i := range x {
			x[i] = rng.NormFloat64() * 50
		}
		for _, b := range bands {
			if p := BandPower(x, 256, b); p < 0 || math.IsNaN(p) {
				t.Fatalf("trial %d band %+v: power %v", trial, b, p)
			}
		}
	}
}

func TestIntegrate(t *testing.T) {
	freqs := []float64{0, 1, 2, 3, 4}
	psd := []float64{1, 1, 3, 3, 0}

	tests := []struct {
		name string
		band Band
		want float64
	}{
		{"full range", Band{0, 4}, 1 + 2 + 3 + 1.5},
		{"inner", Band{1, 3}, 2 + 3},
		{"single bin", Band{2, 2}, 0},
		{"between bins", Band{1.2, 1.8}, 0},
		{"inverted", Band{3, 1}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Integrate(freqs, psd, tc.band); math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("Integrate = %v, want %v", got, tc.want)
			}
		})
	}
}
