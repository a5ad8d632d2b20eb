package sampler

import (
	"sync"

	"solana-signal-trader/internal/domain"
)

// History is a fixed-capacity, time-ordered ring buffer of price samples.
// When full, the oldest sample is evicted first.
type History struct {
	mu    sync.RWMutex
	buf   []domain.PriceSample
	start int
	size  int
}

// NewHistory creates a History holding at most capacity samples.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultRetention
	}
	return &History{buf: make([]domain.PriceSample, capacity)}
}

// Append adds a sample. Samples older than the newest one are dropped.
func (h *History) Append(s domain.PriceSample) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size > 0 && s.Timestamp.Before(h.at(h.size-1).Timestamp) {
		return false
	}

	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = s
		h.size++
		return true
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
	return true
}

// Samples returns the samples oldest first.
func (h *History) Samples() []domain.PriceSample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.PriceSample, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.at(i)
	}
	return out
}

// Last returns the newest sample.
func (h *History) Last() (domain.PriceSample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.size == 0 {
		return domain.PriceSample{}, false
	}
	return h.at(h.size - 1), true
}

// Len returns the number of samples held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap returns the capacity.
func (h *History) Cap() int {
	return len(h.buf)
}

// Reset drops all samples.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start = 0
	h.size = 0
}

func (h *History) at(i int) domain.PriceSample {
	return h.buf[(h.start+i)%len(h.buf)]
}
