package sshsession

import (
	"regexp"
	"strings"
)

// Byte-pattern regexes for the sequences OutputSanitizer strips. These are
// deliberately narrow (stdlib regexp over a raw byte chunk) rather than a
// full terminal-emulation pass: the sanitizer throws sequences away, it does
// not render them.
var (
	reCSI          = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)
	reOSC          = regexp.MustCompile(`\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)
	reBracketPaste = regexp.MustCompile(`\x1b\[\?2004[hl]`)
	reBareEsc      = regexp.MustCompile(`\x1b(?:[=>cM78]|\[[0-9;]*[A-Za-z])`)
	reLoneCR       = regexp.MustCompile(`\r(?:[^\n]|$)`)
	rePS1Export    = regexp.MustCompile(`(?m)^export PS1=.*$\n?`)
	rePS1Residual  = regexp.MustCompile(`(?m)^PS1='[^\n]*'\s*$\n?`)
	reHandshakeRes = regexp.MustCompile(`null 2>&1`)
	reEchoCollapse = regexp.MustCompile(`(\[[^\]\r\n]*\]\$ [^\r\n]*)\r\n([^\r\n]*)\r\n`)
	reBracketDup   = regexp.MustCompile(`\[[^\]\r\n]*\]\$ (?:\[[^\]\r\n]*\]\$ )+`)
)

// sanitizeStep1 strips control sequences that have no replay value: BEL,
// bracketed-paste toggles, cursor motion/erase/positioning, alternate-screen
// and application-cursor-key toggles, private-mode CSI sequences, and OSC
// sequences (including title-setting).
func sanitizeStep1(s string) string {
	s = reOSC.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\x07", "")
	s = reBracketPaste.ReplaceAllString(s, "")
	s = reCSI.ReplaceAllString(s, "")
	s = reBareEsc.ReplaceAllString(s, "")
	return s
}

// SanitizeOutput applies the full deterministic, order-sensitive pipeline
// described for observer-safe normalization. It must never be applied to the
// raw copy retained for diagnostics.
func SanitizeOutput(raw string) string {
	s := sanitizeStep1(raw)

	// Drop isolated CR not followed by LF.
	s = reLoneCR.ReplaceAllStringFunc(s, func(m string) string {
		if len(m) > 1 {
			return m[1:]
		}
		return ""
	})

	// Remove PS1 configuration lines and residual fragments.
	s = rePS1Export.ReplaceAllString(s, "")
	s = rePS1Residual.ReplaceAllString(s, "")

	// Remove handshake residue.
	s = reHandshakeRes.ReplaceAllString(s, "")

	// Collapse [prompt]$ <cmd>\r\n<cmd>\r\n into [prompt]$ <cmd>\r\n.
	s = reEchoCollapse.ReplaceAllStringFunc(s, func(m string) string {
		sub := reEchoCollapse.FindStringSubmatch(m)
		promptLine := sub[1]
		echoed := sub[2]
		if strings.TrimSpace(echoed) == strings.TrimSpace(afterPrompt(promptLine)) {
			return promptLine + "\r\n"
		}
		return m
	})

	// Collapse two adjacent bracket prompts into the second.
	s = reBracketDup.ReplaceAllStringFunc(s, func(m string) string {
		matches := regexp.MustCompile(`\[[^\]\r\n]*\]\$ `).FindAllString(m, -1)
		if len(matches) == 0 {
			return m
		}
		return matches[len(matches)-1]
	})

	// Normalize all line endings to CRLF exactly once: first collapse any
	// existing CRLF/CR to LF, then expand every LF to CRLF.
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")

	return s
}

// afterPrompt returns the text following the first "]$ " in a bracket-prompt
// line, used to compare a shell echo against the command the prompt carries.
func afterPrompt(line string) string {
	idx := strings.Index(line, "]$ ")
	if idx == -1 {
		return line
	}
	return line[idx+len("]$ "):]
}
