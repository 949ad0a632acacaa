package sshsession

import "testing"

func TestRingBuffer_AppendWithinCapacity(t *testing.T) {
	r := NewRingBuffer[int](3)
	r.Append(1)
	r.Append(2)

	if got := r.Snapshot(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected snapshot: %v", got)
	}
	if r.Len() != 2 {
		t.Fatalf("expected len 2, got %d", r.Len())
	}
}

func TestRingBuffer_EvictsOldestWhenFull(t *testing.T) {
	r := NewRingBuffer[int](3)
	r.Append(1)
	r.Append(2)
	r.Append(3)
	r.Append(4)

	got := r.Snapshot()
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	r := NewRingBuffer[string](2)
	r.Append("a")
	r.Append("b")
	r.Reset()

	if r.Len() != 0 {
		t.Fatalf("expected empty buffer after reset, got len %d", r.Len())
	}
	if got := r.Snapshot(); len(got) != 0 {
		t.Fatalf("expected empty snapshot after reset, got %v", got)
	}
}

func TestRingBuffer_SnapshotIsCopy(t *testing.T) {
	r := NewRingBuffer[int](2)
	r.Append(1)

	got := r.Snapshot()
	got[0] = 99

	if r.Snapshot()[0] != 1 {
		t.Fatalf("mutating snapshot must not affect buffer contents")
	}
}
