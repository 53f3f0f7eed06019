package indicator

import "math"

// Window is a fixed-capacity rolling window of float64 samples.
// Uses a preallocated circular buffer for zero-allocation hot path;
// when full, appending evicts the oldest sample (strict FIFO).
type Window struct {
	buf   []float64
	head  int // next write position
	count int
}

// NewWindow creates a window holding at most capacity samples.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Append adds a sample, evicting the oldest if the window is full.
func (w *Window) Append(v float64) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return w.count }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// At returns the i-th sample, 0 = oldest. i must be in [0, Len).
func (w *Window) At(i int) float64 {
	start := w.head - w.count
	if start < 0 {
		start += len(w.buf)
	}
	return w.buf[(start+i)%len(w.buf)]
}

// MeanLast returns the mean of the newest min(n, Len) samples.
// Returns 0 for an empty window.
func (w *Window) MeanLast(n int) float64 {
	if w.count == 0 {
		return 0
	}
	if n > w.count {
		n = w.count
	}
	sum := 0.0
	for i := w.count - n; i < w.count; i++ {
		sum += w.At(i)
	}
	return sum / float64(n)
}

// Mean returns the mean over all held samples. Returns 0 when empty.
func (w *Window) Mean() float64 { return w.MeanLast(w.count) }

// Std returns the population standard deviation over all held samples.
// Returns 0 when empty.
func (w *Window) Std() float64 {
	if w.count == 0 {
		return 0
	}
	mean := w.Mean()
	sumSq := 0.0
	for i := 0; i < w.count; i++ {
		d := w.At(i) - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(w.count))
}

// Min returns the smallest held sample. Returns 0 when empty.
func (w *Window) Min() float64 {
	if w.count == 0 {
		return 0
	}
	min := w.At(0)
	for i := 1; i < w.count; i++ {
		if v := w.At(i); v < min {
			min = v
		}
	}
	return min
}

// Max returns the largest held sample. Returns 0 when empty.
func (w *Window) Max() float64 {
	if w.count == 0 {
		return 0
	}
	max := w.At(0)
	for i := 1; i < w.count; i++ {
		if v := w.At(i); v > max {
			max = v
		}
	}
	return max
}

// IntWindow is Window for int64 samples (volumes, timestamps).
type IntWindow struct {
	buf   []int64
	head  int
	count int
}

// NewIntWindow creates an int window holding at most capacity samples.
func NewIntWindow(capacity int) *IntWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &IntWindow{buf: make([]int64, capacity)}
}

// Append adds a sample, evicting the oldest if the window is full.
func (w *IntWindow) Append(v int64) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Len returns the number of samples currently held.
func (w *IntWindow) Len() int { return w.count }

// Cap returns the window capacity.
func (w *IntWindow) Cap() int { return len(w.buf) }

// At returns the i-th sample, 0 = oldest.
func (w *IntWindow) At(i int) int64 {
	start := w.head - w.count
	if start < 0 {
		start += len(w.buf)
	}
	return w.buf[(start+i)%len(w.buf)]
}

// MeanLast returns the mean of the newest min(n, Len) samples as float64.
func (w *IntWindow) MeanLast(n int) float64 {
	if w.count == 0 {
		return 0
	}
	if n > w.count {
		n = w.count
	}
	var sum int64
	for i := w.count - n; i < w.count; i++ {
		sum += w.At(i)
	}
	return float64(sum) / float64(n)
}

// Mean returns the mean over all held samples.
func (w *IntWindow) Mean() float64 { return w.MeanLast(w.count) }

// Std returns the population standard deviation over all held samples.
func (w *IntWindow) Std() float64 {
	if w.count == 0 {
		return 0
	}
	mean := w.Mean()
	sumSq := 0.0
	for i := 0; i < w.count; i++ {
		d := float64(w.At(i)) - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(w.count))
}
