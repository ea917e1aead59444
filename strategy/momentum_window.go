package strategy

import "math"

// MomentumWindow keeps a bounded ring of recent candle returns and maintains
// mean / M2 (Welford) incrementally over the most recent statWindow entries,
// so each push costs O(1) instead of a rescan.
type MomentumWindow struct {
	buf   []float64
	head  int // index of the oldest entry
	size  int
	stat  int
	mean  float64
	m2    float64
	count int // entries currently inside the stat window

	pushes int
}

// NewMomentumWindow builds a window holding at most capacity returns with
// statistics over the newest statWindow of them (statWindow <= capacity).
func NewMomentumWindow(capacity, statWindow int) *MomentumWindow {
	if capacity <= 0 {
		capacity = 16
	}
	if statWindow <= 0 || statWindow > capacity {
		statWindow = capacity
	}
	return &MomentumWindow{buf: make([]float64, capacity), stat: statWindow}
}

// Push appends v, evicting the oldest entry once the ring is full.
func (w *MomentumWindow) Push(v float64) {
	// The entry that slides out of the stat window must be read before the
	// ring overwrites it.
	if w.count == w.stat {
		w.remove(w.at(w.size - w.stat))
	}
	if w.size == len(w.buf) {
		w.buf[w.head] = v
		w.head = (w.head + 1) % len(w.buf)
	} else {
		w.buf[(w.head+w.size)%len(w.buf)] = v
		w.size++
	}
	w.add(v)

	// Re-derive from scratch once per full turn to stop rounding drift.
	w.pushes++
	if w.pushes%len(w.buf) == 0 {
		w.recompute()
	}
}

func (w *MomentumWindow) add(v float64) {
	w.count++
	delta := v - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (v - w.mean)
}

func (w *MomentumWindow) remove(v float64) {
	if w.count <= 1 {
		w.count, w.mean, w.m2 = 0, 0, 0
		return
	}
	w.count--
	delta := v - w.mean
	w.mean -= delta / float64(w.count)
	w.m2 -= delta * (v - w.mean)
	if w.m2 < 0 {
		w.m2 = 0
	}
}

func (w *MomentumWindow) recompute() {
	w.count, w.mean, w.m2 = 0, 0, 0
	start := w.size - w.stat
	if start < 0 {
		start = 0
	}
	for i := start; i < w.size; i++ {
		w.add(w.at(i))
	}
}

// at returns the i-th entry counting from the oldest.
func (w *MomentumWindow) at(i int) float64 {
	return w.buf[(w.head+i)%len(w.buf)]
}

func (w *MomentumWindow) Len() int { return w.size }

func (w *MomentumWindow) Cap() int { return len(w.buf) }

// Ready reports whether a full stat window of returns is available.
func (w *MomentumWindow) Ready() bool { return w.count >= w.stat }

// Values returns the retained returns, oldest first.
func (w *MomentumWindow) Values() []float64 {
	out := make([]float64, w.size)
	for i := range out {
		out[i] = w.at(i)
	}
	return out
}

func (w *MomentumWindow) Last() float64 {
	if w.size == 0 {
		return 0
	}
	return w.at(w.size - 1)
}

// Stats returns the mean and sample standard deviation over the stat window.
func (w *MomentumWindow) Stats() (mean, std float64, n int) {
	if w.count < 2 {
		return w.mean, 0, w.count
	}
	return w.mean, math.Sqrt(w.m2 / float64(w.count-1)), w.count
}
