package sshsession

import (
	"log/slog"
	"sync"
)

// CommandHistory is a per-session bounded record of executed commands, with
// live subscribers notified of each new CommandRecord as it is appended.
// Subscriber errors are logged and swallowed — a misbehaving subscriber must
// never fail a command or take down a session.
type CommandHistory struct {
	ring *RingBuffer[CommandRecord]

	mu          sync.Mutex
	subscribers map[string]chan CommandRecord
}

// NewCommandHistory creates a CommandHistory capped at MaxHistory records.
func NewCommandHistory() *CommandHistory {
	return &CommandHistory{
		ring:        NewRingBuffer[CommandRecord](MaxHistory),
		subscribers: make(map[string]chan CommandRecord),
	}
}

// Record appends rec to the bounded history and notifies every subscriber.
func (h *CommandHistory) Record(rec CommandRecord) {
	h.ring.Append(rec)

	h.mu.Lock()
	subs := make([]chan CommandRecord, 0, len(h.subscribers))
	for _, ch := range h.subscribers {
		subs = append(subs, ch)
	}
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- rec:
		default:
			slog.Warn("command history: dropping record for slow subscriber")
		}
	}
}

// Snapshot returns a copy of the recorded history, oldest first.
func (h *CommandHistory) Snapshot() []CommandRecord {
	return h.ring.Snapshot()
}

// Subscribe registers a live subscriber under the caller-chosen handle id and
// returns its channel.
func (h *CommandHistory) Subscribe(id string) chan CommandRecord {
	ch := make(chan CommandRecord, MaxHistory)
	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber by handle; a no-op if id is unknown.
func (h *CommandHistory) Unsubscribe(id string) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}
