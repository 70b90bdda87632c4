package charts

import "github.com/iafilius/Chip8Dashboard/src/metrics"

// window is a FIFO of samples. With capacity > 0 it keeps only the most
// recent capacity samples; otherwise it grows without bound.
type window struct {
	capacity int
	buf      []metrics.Sample
	start    int // index of the oldest sample once the ring is full
}

func newWindow(capacity int) *window {
	w := &window{capacity: capacity}
	if capacity > 0 {
		w.buf = make([]metrics.Sample, 0, capacity)
	}
	return w
}

func (w *window) push(s metrics.Sample) {
	if w.capacity <= 0 || len(w.buf) < w.capacity {
		w.buf = append(w.buf, s)
		return
	}
	w.buf[w.start] = s
	w.start = (w.start + 1) % w.capacity
}

func (w *window) len() int { return len(w.buf) }

// samples returns a copy, oldest first.
func (w *window) samples() []metrics.Sample {
	out := make([]metrics.Sample, 0, len(w.buf))
	out = append(out, w.buf[w.start:]...)
	out = append(out, w.buf[:w.start]...)
	return out
}

func (w *window) reset() {
	w.buf = w.buf[:0]
	w.start = 0
}
