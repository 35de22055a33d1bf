package ranking

import "sync/atomic"

// Holder publishes the current default weights to concurrent readers.
type Holder struct {
	w atomic.Pointer[Weights]
}

// NewHolder creates a Holder with w, clamped.
func NewHolder(w Weights) *Holder {
	h := &Holder{}
	h.Store(w)
	return h
}

// Load returns a copy of the current weights.
func (h *Holder) Load() Weights {
	return *h.w.Load()
}

// Store replaces the weights.
func (h *Holder) Store(w Weights) {
	w = w.Clamp()
	h.w.Store(&w)
}
