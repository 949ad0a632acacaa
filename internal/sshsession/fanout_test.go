package sshsession

import "testing"

func TestObserverFanout_SubscribeAndBroadcast(t *testing.T) {
	f := NewObserverFanout()
	obs := f.Subscribe()

	if f.Count() != 1 {
		t.Fatalf("expected 1 observer, got %d", f.Count())
	}

	entry := OutputEntry{NormalizedText: "hello"}
	f.Broadcast(entry)

	select {
	case got := <-obs.Entries():
		if got.NormalizedText != "hello" {
			t.Fatalf("unexpected entry: %v", got)
		}
	default:
		t.Fatal("expected entry to be delivered")
	}
}

func TestObserverFanout_Unsubscribe_ClosesChannel(t *testing.T) {
	f := NewObserverFanout()
	obs := f.Subscribe()
	f.Unsubscribe(obs.ID())

	if f.Count() != 0 {
		t.Fatalf("expected 0 observers, got %d", f.Count())
	}

	_, ok := <-obs.Entries()
	if ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestObserverFanout_Unsubscribe_UnknownIDIsNoOp(t *testing.T) {
	f := NewObserverFanout()
	f.Subscribe()
	f.Unsubscribe("does-not-exist")
	if f.Count() != 1 {
		t.Fatalf("expected the real observer to remain, got count %d", f.Count())
	}
}

func TestObserverFanout_BroadcastDoesNotBlockOnFullBuffer(t *testing.T) {
	f := NewObserverFanout()
	obs := f.Subscribe()

	for i := 0; i < observerBufferSize+10; i++ {
		f.Broadcast(OutputEntry{NormalizedText: "x"})
	}

	if len(obs.Entries()) != observerBufferSize {
		t.Fatalf("expected buffer capped at %d, got %d", observerBufferSize, len(obs.Entries()))
	}
}

func TestObserverFanout_IndependentObservers(t *testing.T) {
	f := NewObserverFanout()
	a := f.Subscribe()
	b := f.Subscribe()

	f.Broadcast(OutputEntry{NormalizedText: "shared"})

	if e := <-a.Entries(); e.NormalizedText != "shared" {
		t.Fatalf("observer a: unexpected entry %v", e)
	}
	if e := <-b.Entries(); e.NormalizedText != "shared" {
		t.Fatalf("observer b: unexpected entry %v", e)
	}
}

func TestObserverFanout_CloseAll(t *testing.T) {
	f := NewObserverFanout()
	a := f.Subscribe()
	b := f.Subscribe()

	f.CloseAll()

	if f.Count() != 0 {
		t.Fatalf("expected 0 observers after CloseAll, got %d", f.Count())
	}
	if _, ok := <-a.Entries(); ok {
		t.Fatal("expected observer a's channel closed")
	}
	if _, ok := <-b.Entries(); ok {
		t.Fatal("expected observer b's channel closed")
	}
}
