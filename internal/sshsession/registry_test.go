package sshsession

import "testing"

func TestSessionRegistry_Create_RejectsInvalidName(t *testing.T) {
	r := NewSessionRegistry(nil)
	_, err := r.Create(SessionConfig{Name: "bad name"})
	if err == nil {
		t.Fatal("expected error for invalid name")
	}
	if KindOf(err) != InvalidName {
		t.Fatalf("expected InvalidName, got %v", KindOf(err))
	}
}

func TestSessionRegistry_Create_RejectsDuplicateName(t *testing.T) {
	r := NewSessionRegistry(nil)
	r.sessions["taken"] = &ShellSession{}

	_, err := r.Create(SessionConfig{Name: "taken", Host: "example.com"})
	if err == nil {
		t.Fatal("expected error for duplicate name")
	}
	if KindOf(err) != NameTaken {
		t.Fatalf("expected NameTaken, got %v", KindOf(err))
	}
}

func TestSessionRegistry_GetUnknown(t *testing.T) {
	r := NewSessionRegistry(nil)
	_, err := r.Get("ghost")
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
	if KindOf(err) != SessionNotFound {
		t.Fatalf("expected SessionNotFound, got %v", KindOf(err))
	}
}

func TestSessionRegistry_HasAndList(t *testing.T) {
	r := NewSessionRegistry(nil)
	if r.Has("anything") {
		t.Fatal("expected empty registry to report Has() == false")
	}
	if got := r.List(); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}

	r.sessions["box"] = &ShellSession{name: "box"}
	if !r.Has("box") {
		t.Fatal("expected Has(\"box\") to be true")
	}
	if got := r.List(); len(got) != 1 || got[0] != "box" {
		t.Fatalf("expected [box], got %v", got)
	}
}

func TestSessionRegistry_Disconnect_UnknownIsNoOp(t *testing.T) {
	r := NewSessionRegistry(nil)
	r.Disconnect("ghost") // must not panic
}

func TestSessionRegistry_ExecCommand_ValidatesSourceBeforeLookup(t *testing.T) {
	r := NewSessionRegistry(nil)
	_, err := r.ExecCommand("ghost", "ls", CommandOptions{Source: "bogus"})
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != InvalidSource {
		t.Fatalf("expected InvalidSource (validated before session lookup), got %v", KindOf(err))
	}
}

func TestSessionRegistry_ExecCommand_UnknownSessionAfterValidSource(t *testing.T) {
	r := NewSessionRegistry(nil)
	_, err := r.ExecCommand("ghost", "ls", CommandOptions{Source: SourceUser})
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != SessionNotFound {
		t.Fatalf("expected SessionNotFound, got %v", KindOf(err))
	}
}

func TestUrlResolver_ObserverUrl(t *testing.T) {
	u := NewUrlResolver(8723)
	got := u.ObserverUrl("build-box")
	want := "http://localhost:8723/session/build-box"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
