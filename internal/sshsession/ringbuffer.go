package sshsession

import "sync"

// RingBuffer is a bounded FIFO: once full, appending evicts the oldest
// entry. Safe for concurrent use.
type RingBuffer[T any] struct {
	mu       sync.Mutex
	entries  []T
	capacity int
}

// NewRingBuffer creates a RingBuffer with the given capacity.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	return &RingBuffer[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Append adds entry, evicting the oldest entry if the buffer is at capacity.
func (r *RingBuffer[T]) Append(entry T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.entries = append(r.entries, entry)
}

// Snapshot returns a copy of the current contents, oldest first.
func (r *RingBuffer[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the current number of entries.
func (r *RingBuffer[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset discards the entries currently held, for use when a session it
// belongs to is destroyed.
func (r *RingBuffer[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}
