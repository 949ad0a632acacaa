package sshsession

import (
	"regexp"
	"strings"
)

// Detection is byte-pattern based; no shell-state tracking. It is the sole
// signal used to declare "command complete" and "init handshake complete".
var (
	reGenericPromptTail = regexp.MustCompile(`(?:^|[^\s])(?:[\w.@-]+@[\w.-]+[:~]?[^\s]*)?[$#>]\s*$`)
	rePromptFallback    = regexp.MustCompile(`[$#>] `)
	reBracketPromptTail = regexp.MustCompile(`\[[\w.-]+@[\w.-]+ [^\]]*\]\$\s*$`)
)

func lastTwoLines(buf string) []string {
	lines := strings.Split(buf, "\n")
	if len(lines) == 0 {
		return nil
	}
	if len(lines) == 1 {
		return lines
	}
	return lines[len(lines)-2:]
}

// HasPrompt reports whether either of the last two lines of buf ends with a
// generic shell prompt ($, #, > optionally preceded by user@host…), or
// contains "$ ", "# ", or "> " anywhere as a fallback.
func HasPrompt(buf string) bool {
	for _, line := range lastTwoLines(buf) {
		trimmed := strings.TrimRight(line, "\r")
		if reGenericPromptTail.MatchString(trimmed) {
			return true
		}
		if rePromptFallback.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// HasBracketPrompt reports whether either of the last two lines of buf ends
// with the specific bracket-form prompt [user@host dir]$.
func HasBracketPrompt(buf string) bool {
	for _, line := range lastTwoLines(buf) {
		trimmed := strings.TrimRight(line, "\r")
		if reBracketPromptTail.MatchString(trimmed) {
			return true
		}
	}
	return false
}

var reBracketPromptLine = regexp.MustCompile(`\[[\w.-]+@[\w.-]+ [^\]]*\]\$\s*`)

// LastBracketPrompt extracts the last bracket-prompt match from buf, or ""
// if none is present.
func LastBracketPrompt(buf string) string {
	matches := reBracketPromptLine.FindAllString(buf, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}

// classicPromptLine matches the teacher's-shell "user@host:dir$" form used
// when stripping a prompt prefix/suffix off a completed command's output.
var reClassicPromptLine = regexp.MustCompile(`^[\w.-]+@[\w.-]+:[^\s$#>]*[$#>]\s*$`)
var reBarePromptLine = regexp.MustCompile(`^[$#>]\s*$`)

// isPurePromptLine reports whether line (already trimmed of CR) is nothing
// but a prompt: classic form, bracket form, or a bare $/#/>.
func isPurePromptLine(line string) bool {
	if reClassicPromptLine.MatchString(line) {
		return true
	}
	if reBracketPromptTail.MatchString(line) {
		return true
	}
	if reBarePromptLine.MatchString(line) {
		return true
	}
	return false
}

// stripPromptAffixes removes a leading prompt prefix or trailing prompt
// suffix (either classic or bracket form) from line, returning the residue.
func stripPromptAffixes(line string) string {
	if m := reBracketPromptLine.FindStringIndex(line); m != nil {
		if m[0] == 0 {
			return line[m[1]:]
		}
	}
	if idx := strings.IndexAny(line, "$#>"); idx != -1 {
		prefix := line[:idx+1]
		if reClassicPromptLine.MatchString(prefix + " ") || reBarePromptLine.MatchString(strings.TrimSpace(prefix)) {
			return strings.TrimPrefix(line[idx+1:], " ")
		}
	}
	return line
}
