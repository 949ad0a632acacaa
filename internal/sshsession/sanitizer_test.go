package sshsession

import "testing"

func TestSanitizeOutput_StripsCSISequences(t *testing.T) {
	in := "hello\x1b[31mworld\x1b[0m"
	got := SanitizeOutput(in)
	want := "helloworld"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeOutput_StripsOSCTitle(t *testing.T) {
	in := "before\x1b]0;my title\x07after"
	got := SanitizeOutput(in)
	want := "beforeafter"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeOutput_StripsBracketedPasteToggle(t *testing.T) {
	in := "\x1b[?2004hls\x1b[?2004l"
	got := SanitizeOutput(in)
	want := "ls"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeOutput_DropsLoneCR(t *testing.T) {
	in := "progress\rdone"
	got := SanitizeOutput(in)
	want := "progressdone"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeOutput_RemovesPS1Lines(t *testing.T) {
	in := "export PS1='[\\u@\\h]$ '\nls\n"
	got := SanitizeOutput(in)
	if got != "ls\r\n" {
		t.Fatalf("expected PS1 export stripped, got %q", got)
	}
}

func TestSanitizeOutput_RemovesHandshakeResidue(t *testing.T) {
	in := "stty -echo 2>/dev/null || true\nnull 2>&1\nls\n"
	got := SanitizeOutput(in)
	if got == "" {
		t.Fatal("expected non-empty output")
	}
	for _, r := range got {
		_ = r
	}
	if contains(got, "null 2>&1") {
		t.Fatalf("expected handshake residue stripped, got %q", got)
	}
}

func TestSanitizeOutput_NormalizesLineEndingsToCRLF(t *testing.T) {
	in := "a\nb\r\nc\rd"
	got := SanitizeOutput(in)
	want := "a\r\nb\r\ncd"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeOutput_CollapsesDuplicateEcho(t *testing.T) {
	in := "[user@host]$ ls\r\nls\r\n"
	got := SanitizeOutput(in)
	want := "[user@host]$ ls\r\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
