package focus

// Window is a fixed-length multi-channel sliding buffer of EEG samples.
// New samples overwrite the oldest once the buffer is full.
type Window struct {
	data  [][]float64 // [channel][slot]
	next  int         // slot the next sample is written to
	count int
}

// NewWindow allocates a window of length samples per channel.
func NewWindow(channels, length int) *Window {
	data := make([][]float64, channels)
	for ch := range data {
		data[ch] = make([]float64, length)
	}
	return &Window{data: data}
}

// Push appends one sample vector. Extra channels are ignored and missing
// channels are recorded as zero.
func (w *Window) Push(sample []float64) {
	for ch := range w.data {
		var v float64
		if ch < len(sample) {
			v = sample[ch]
		}
		w.data[ch][w.next] = v
	}
	w.next = (w.next + 1) % w.Len()
	if w.count < w.Len() {
		w.count++
	}
}

// Len returns the capacity per channel.
func (w *Window) Len() int {
	if len(w.data) == 0 {
		return 0
	}
	return len(w.data[0])
}

// Count returns how many samples are buffered per channel.
func (w *Window) Count() int {
	return w.count
}

// Full reports whether the window holds Len samples.
func (w *Window) Full() bool {
	return w.count == w.Len()
}

// Channels returns a chronological copy of the buffered samples, one slice
// per channel.
func (w *Window) Channels() [][]float64 {
	out := make([][]float64, len(w.data))
	start := 0
	if w.Full() {
		start = w.next
	}
	for ch, ring := range w.data {
		dst := make([]float64, 0, w.count)
		if w.Full() {
			dst = append(dst, ring[start:]...)
			dst = append(dst, ring[:start]...)
		} else {
			dst = append(dst, ring[:w.count]...)
		}
		out[ch] = dst
	}
	return out
}
