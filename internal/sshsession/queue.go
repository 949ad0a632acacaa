package sshsession

import "strings"

// CommandQueue is a bounded FIFO of pending commands belonging to one
// ShellSession. It is manipulated only by that session's owning actor
// goroutine (see session.go), so it needs no internal locking of its own —
// the "atomic decision step" the design calls for falls out of being single-
// goroutine-owned rather than out of a mutex.
type CommandQueue struct {
	entries []*QueuedCommand
}

// NewCommandQueue creates an empty CommandQueue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{entries: make([]*QueuedCommand, 0, MaxQueueSize)}
}

// ValidateCommandText rejects shell-terminating commands before anything
// else is attempted.
func ValidateCommandText(commandText string) error {
	trimmed := strings.TrimSpace(commandText)
	if trimmed == "exit" || strings.HasPrefix(trimmed, "exit ") {
		return newError(ShellTerminatingCommandRejected, "command '%s' would terminate the shell", trimmed)
	}
	return nil
}

// ValidateSource rejects an options.Source that is present but not one of
// the two recognized values. An empty Source is valid (defaults to
// SourceProgramClient by the caller).
func ValidateSource(source Source) error {
	if source == "" || validSource(source) {
		return nil
	}
	return newError(InvalidSource, "source '%s' is not one of user, programClient", source)
}

// Push appends a new command to the tail of the queue. Returns QueueFull if
// the queue is already at MaxQueueSize.
func (q *CommandQueue) Push(cmd *QueuedCommand) error {
	if len(q.entries) >= MaxQueueSize {
		return newError(QueueFull, "queue is full (max %d pending commands)", MaxQueueSize)
	}
	q.entries = append(q.entries, cmd)
	return nil
}

// EvictStale removes and returns every entry at the head of the queue whose
// age exceeds MaxCommandAge, in order. Callers fail each returned entry's
// waiter with a staleness error before continuing to select the next head.
func (q *CommandQueue) EvictStale(nowMs int64) []*QueuedCommand {
	var stale []*QueuedCommand
	kept := q.entries[:0:0]
	for _, cmd := range q.entries {
		age := nowMs - cmd.EnqueuedAtMs
		if age > MaxCommandAge.Milliseconds() {
			stale = append(stale, cmd)
			continue
		}
		kept = append(kept, cmd)
	}
	q.entries = kept
	return stale
}

// Pop removes and returns the head of the queue, or nil if empty.
func (q *CommandQueue) Pop() *QueuedCommand {
	if len(q.entries) == 0 {
		return nil
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head
}

// Len returns the current queue length.
func (q *CommandQueue) Len() int {
	return len(q.entries)
}

// DrainAll removes and returns every queued entry, used when a session is
// disconnected and every pending waiter must be failed.
func (q *CommandQueue) DrainAll() []*QueuedCommand {
	all := q.entries
	q.entries = nil
	return all
}
