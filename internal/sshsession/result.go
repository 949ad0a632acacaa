package sshsession

import "strings"

// postProcessOutput turns the raw bytes accumulated while a command owned
// the PTY into the program-client-facing stdout string: strip control
// sequences, drop the shell's echo of the command and any bare prompt
// lines, then join what remains.
func postProcessOutput(raw string, commandText string) string {
	stripped := sanitizeStep1(raw)
	stripped = strings.ReplaceAll(stripped, "\r", "")

	issued := strings.TrimSpace(commandText)

	lines := strings.Split(stripped, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed == issued {
			continue
		}
		if isPurePromptLine(trimmed) {
			continue
		}
		kept = append(kept, stripPromptAffixes(line))
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}
