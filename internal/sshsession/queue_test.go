package sshsession

import "testing"

func TestValidateCommandText_RejectsExit(t *testing.T) {
	cases := []string{"exit", "exit 0", "  exit  ", "exit 1"}
	for _, c := range cases {
		if err := ValidateCommandText(c); err == nil {
			t.Errorf("expected %q to be rejected", c)
		} else if KindOf(err) != ShellTerminatingCommandRejected {
			t.Errorf("expected ShellTerminatingCommandRejected for %q, got %v", c, KindOf(err))
		}
	}
}

func TestValidateCommandText_AllowsOrdinaryCommands(t *testing.T) {
	cases := []string{"ls -la", "echo exit", "exitcode", "exiting"}
	for _, c := range cases {
		if err := ValidateCommandText(c); err != nil {
			t.Errorf("expected %q to be allowed, got %v", c, err)
		}
	}
}

func TestValidateSource(t *testing.T) {
	if err := ValidateSource(""); err != nil {
		t.Errorf("empty source should be valid, got %v", err)
	}
	if err := ValidateSource(SourceUser); err != nil {
		t.Errorf("user source should be valid, got %v", err)
	}
	if err := ValidateSource(SourceProgramClient); err != nil {
		t.Errorf("programClient source should be valid, got %v", err)
	}
	if err := ValidateSource(Source("bogus")); err == nil {
		t.Error("expected bogus source to be rejected")
	} else if KindOf(err) != InvalidSource {
		t.Errorf("expected InvalidSource, got %v", KindOf(err))
	}
}

func TestCommandQueue_PushAndPop(t *testing.T) {
	q := NewCommandQueue()
	a := &QueuedCommand{CommandText: "a"}
	b := &QueuedCommand{CommandText: "b"}

	if err := q.Push(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Push(b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}

	if got := q.Pop(); got != a {
		t.Fatalf("expected FIFO order, got %v", got)
	}
	if got := q.Pop(); got != b {
		t.Fatalf("expected FIFO order, got %v", got)
	}
	if got := q.Pop(); got != nil {
		t.Fatalf("expected nil on empty queue, got %v", got)
	}
}

func TestCommandQueue_PushRejectsWhenFull(t *testing.T) {
	q := NewCommandQueue()
	for i := 0; i < MaxQueueSize; i++ {
		if err := q.Push(&QueuedCommand{}); err != nil {
			t.Fatalf("unexpected error filling queue: %v", err)
		}
	}

	err := q.Push(&QueuedCommand{})
	if err == nil {
		t.Fatal("expected QueueFull error")
	}
	if KindOf(err) != QueueFull {
		t.Fatalf("expected QueueFull, got %v", KindOf(err))
	}
}

func TestCommandQueue_EvictStale(t *testing.T) {
	q := NewCommandQueue()
	now := int64(1_000_000)
	fresh := &QueuedCommand{CommandText: "fresh", EnqueuedAtMs: now}
	stale := &QueuedCommand{CommandText: "stale", EnqueuedAtMs: now - MaxCommandAge.Milliseconds() - 1}
	q.Push(stale)
	q.Push(fresh)

	evicted := q.EvictStale(now)
	if len(evicted) != 1 || evicted[0] != stale {
		t.Fatalf("expected only the stale entry evicted, got %v", evicted)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", q.Len())
	}
	if q.Pop() != fresh {
		t.Fatal("expected fresh entry to remain in queue")
	}
}

func TestCommandQueue_DrainAll(t *testing.T) {
	q := NewCommandQueue()
	q.Push(&QueuedCommand{CommandText: "a"})
	q.Push(&QueuedCommand{CommandText: "b"})

	drained := q.DrainAll()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained entries, got %d", len(drained))
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue empty after drain, got len %d", q.Len())
	}
}
