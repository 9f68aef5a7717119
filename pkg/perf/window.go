package perf

// window is a bounded FIFO ring of samples: once full, every add overwrites
// the oldest sample. Reads never reorder it, so rolling statistics always
// reflect the most recent records rather than the most frequently read ones.
type window[T any] struct {
	data []T
	pos  int
	full bool
}

func newWindow[T any](size int) window[T] {
	return window[T]{data: make([]T, size)}
}

func (w *window[T]) add(v T) {
	w.data[w.pos] = v
	w.pos++
	if w.pos >= len(w.data) {
		w.pos = 0
		w.full = true
	}
}

func (w *window[T]) len() int {
	if w.full {
		return len(w.data)
	}
	return w.pos
}

// last returns up to n of the most recent samples, oldest first.
func (w *window[T]) last(n int) []T {
	size := w.len()
	if n > size || n <= 0 {
		n = size
	}
	out := make([]T, n)
	for i := range n {
		// Index of the i-th sample counting back n from the write position.
		idx := (w.pos - n + i + len(w.data)) % len(w.data)
		out[i] = w.data[idx]
	}
	return out
}

func (w *window[T]) reset() {
	clear(w.data)
	w.pos = 0
	w.full = false
}
