// Package spectral estimates signal power with Welch's averaged periodogram.
//
// The estimator matches the defaults of scipy.signal.welch (periodic Hann
// window, 50% overlap, constant detrend, one-sided density scaling) so that
// thresholds tuned against that implementation carry over.
package spectral

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DefaultSegment is the default Welch segment length in samples.
const DefaultSegment = 256

// Band is a closed frequency interval in Hz.
type Band struct {
	Lo, Hi float64
}

// EEG bands used by the focus calculator.
var (
	Theta = Band{Lo: 4, Hi: 8}
	Alpha = Band{Lo: 8, Hi: 13}
	Beta  = Band{Lo: 13, Hi: 30}
)

// Contains reports whether f lies in [Lo, Hi].
func (b Band) Contains(f float64) bool {
	return f >= b.Lo && f <= b.Hi
}

// hann returns a periodic Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Welch returns the one-sided power spectral density of x sampled at fs Hz.
// nperseg <= 0 selects DefaultSegment; it is clipped to len(x). The returned
// frequencies are k*fs/nperseg for k in [0, nperseg/2].
func Welch(x []float64, fs float64, nperseg int) (freqs, psd []float64) {
	if len(x) == 0 || fs <= 0 {
		return nil, nil
	}
	if nperseg <= 0 {
		nperseg = DefaultSegment
	}
	if nperseg > len(x) {
		nperseg = len(x)
	}

	noverlap := nperseg / 2
	step := nperseg - noverlap
	nseg := (len(x) - noverlap) / step
	if nseg < 1 {
		nseg = 1
	}

	win := hann(nperseg)
	var wss float64
	for _, w := range win {
		wss += w * w
	}
	scale := 1 / (fs * wss)

	nfreq := nperseg/2 + 1
	psd = make([]float64, nfreq)
	fft := fourier.NewFFT(nperseg)
	seg := make([]float64, nperseg)
	coeff := make([]complex128, nfreq)

	for s := 0; s < nseg; s++ {
		chunk := x[s*step : s*step+nperseg]

		var mean float64
		for _, v := range chunk {
			mean += v
		}
		mean /= float64(nperseg)

		for i, v := range chunk {
			seg[i] = (v - mean) * win[i]
		}

		coeff = fft.Coefficients(coeff, seg)
		for k, c := range coeff {
			p := cmplx.Abs(c)
			psd[k] += p * p * scale
		}
	}

	for k := range psd {
		psd[k] /= float64(nseg)
		// One-sided: fold negative frequencies, except DC and an even-length Nyquist bin.
		if k == 0 || (nperseg%2 == 0 && k == nfreq-1) {
			continue
		}
		psd[k] *= 2
	}

	freqs = make([]float64, nfreq)
	for k := range freqs {
		freqs[k] = float64(k) * fs / float64(nperseg)
	}
	return freqs, psd
}

// BandPower integrates the Welch PSD of x over band with the trapezoid rule,
// using only bins whose frequency lies inside the band. Fewer than two such
// bins yield 0.
func BandPower(x []float64, fs float64, band Band) float64 {
	return BandPowerSeg(x, fs, band, DefaultSegment)
}

// BandPowerSeg is BandPower with an explicit segment length.
func BandPowerSeg(x []float64, fs float64, band Band, nperseg int) float64 {
	freqs, psd := Welch(x, fs, nperseg)
	return Integrate(freqs, psd, band)
}

// Integrate applies the trapezoid rule to the (freqs, psd) points inside band.
func Integrate(freqs, psd []float64, band Band) float64 {
	var (
		total  float64
		prevF  float64
		prevP  float64
		inside bool
	)
	for k, f := range freqs {
		if !band.Contains(f) {
			continue
		}
		if inside {
			total += (f - prevF) * (psd[k] + prevP) / 2
		}
		prevF, prevP, inside = f, psd[k], true
	}
	return total
}
