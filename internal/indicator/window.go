package indicator

import "slices"

// window is a fixed-capacity rolling window over float64 samples.
type window struct {
	size int
	vals []float64
}

func newWindow(size int) *window {
	return &window{size: size, vals: make([]float64, 0, size)}
}

func (w *window) push(v float64) {
	if len(w.vals) == w.size {
		copy(w.vals, w.vals[1:])
		w.vals[len(w.vals)-1] = v

		return
	}

	w.vals = append(w.vals, v)
}

func (w *window) full() bool {
	return len(w.vals) == w.size
}

func (w *window) mean() float64 {
	var sum float64
	for _, v := range w.vals {
		sum += v
	}

	return sum / float64(len(w.vals))
}

func (w *window) max() float64 {
	return slices.Max(w.vals)
}

func (w *window) min() float64 {
	return slices.Min(w.vals)
}
