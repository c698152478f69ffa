package market

// RingWindow is a fixed-capacity overwrite buffer addressed by a circular cursor.
// It never deletes; a slot is only replaced by a later append.
type RingWindow struct {
	buf    []float64
	filled int
	cursor int
}

// NewRingWindow creates a window holding at most capacity values.
func NewRingWindow(capacity int) (*RingWindow, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &RingWindow{
		buf:    make([]float64, capacity),
		cursor: -1,
	}, nil
}

// Append writes value at the cursor. Unless replaceTop is set the cursor is
// advanced first. ok reports whether the slot already held a value, in which
// case evicted is that value.
func (w *RingWindow) Append(value float64, replaceTop bool) (evicted float64, ok bool) {
	if !replaceTop || w.cursor < 0 {
		w.cursor = (w.cursor + 1) % len(w.buf)
	}
	if w.cursor < w.filled {
		evicted, ok = w.buf[w.cursor], true
	} else {
		w.filled = w.cursor + 1
	}
	w.buf[w.cursor] = value
	return evicted, ok
}

// Len returns the number of slots ever written.
func (w *RingWindow) Len() int { return w.filled }

// Cap returns the window capacity.
func (w *RingWindow) Cap() int { return len(w.buf) }

// Full reports whether every slot has been written.
func (w *RingWindow) Full() bool { return w.filled == len(w.buf) }

// Values returns a copy of the written slots in slot order.
func (w *RingWindow) Values() []float64 {
	out := make([]float64, w.filled)
	copy(out, w.buf[:w.filled])
	return out
}

func (w *RingWindow) clone() *RingWindow {
	buf := make([]float64, len(w.buf))
	copy(buf, w.buf)
	return &RingWindow{buf: buf, filled: w.filled, cursor: w.cursor}
}
