package sshsession

import "testing"

func TestHasPrompt_GenericForms(t *testing.T) {
	cases := []string{
		"user@host:~$ ",
		"root@box:/tmp# ",
		"some output\n$ ",
	}
	for _, c := range cases {
		if !HasPrompt(c) {
			t.Errorf("expected HasPrompt(%q) to be true", c)
		}
	}
}

func TestHasPrompt_NoPrompt(t *testing.T) {
	if HasPrompt("just some output\nwith no prompt at all") {
		t.Error("expected HasPrompt to be false for plain output")
	}
}

func TestHasBracketPrompt(t *testing.T) {
	if !HasBracketPrompt("output line\n[deploy@web01 /srv]$ ") {
		t.Error("expected bracket prompt to be detected")
	}
	if HasBracketPrompt("deploy@web01:~$ ") {
		t.Error("classic-form prompt must not match HasBracketPrompt")
	}
}

func TestLastBracketPrompt(t *testing.T) {
	buf := "[a@b ~]$ ls\r\n[a@b /tmp]$ "
	got := LastBracketPrompt(buf)
	want := "[a@b /tmp]$ "
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestLastBracketPrompt_NoneFound(t *testing.T) {
	if got := LastBracketPrompt("no prompt here"); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestIsPurePromptLine(t *testing.T) {
	cases := map[string]bool{
		"user@host:~$":     true,
		"[a@b ~]$":         true,
		"$":                true,
		"#":                true,
		"ls -la":           false,
		"user@host:~$ ls":  false,
	}
	for line, want := range cases {
		if got := isPurePromptLine(line); got != want {
			t.Errorf("isPurePromptLine(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestStripPromptAffixes_BracketPrefix(t *testing.T) {
	got := stripPromptAffixes("[a@b ~]$ ls -la")
	if got != "ls -la" {
		t.Fatalf("got %q, want %q", got, "ls -la")
	}
}
