package sshsession

// ReplayBuffer is a per-session bounded ring buffer of normalized output
// entries, fed to late-joining observers as a snapshot.
type ReplayBuffer struct {
	ring *RingBuffer[OutputEntry]
}

// NewReplayBuffer creates a ReplayBuffer capped at MaxOutputBuffer entries.
func NewReplayBuffer() *ReplayBuffer {
	return &ReplayBuffer{ring: NewRingBuffer[OutputEntry](MaxOutputBuffer)}
}

// Append adds entry, evicting the oldest entry on overflow.
func (r *ReplayBuffer) Append(entry OutputEntry) {
	r.ring.Append(entry)
}

// Snapshot returns a copy of the buffer's current contents, oldest first, so
// callers cannot mutate internal state.
func (r *ReplayBuffer) Snapshot() []OutputEntry {
	return r.ring.Snapshot()
}

// Len reports the current number of retained entries.
func (r *ReplayBuffer) Len() int {
	return r.ring.Len()
}
