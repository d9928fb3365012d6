package aggregate

import "strings"

// Outcome is the validation result announced by terminal narration.
type Outcome int

const (
	OutcomePassed Outcome = iota
	OutcomeFailed
)

// completionMarker is the text the pipeline appends when a task finishes,
// e.g. "Task 3 investigation complete. Validation passed: True".
const completionMarker = "investigation complete. validation passed:"

// DetectTerminalNarration looks for the completion marker in free-text
// narration. Matching is case-insensitive and best-effort; messages that
// do not carry the marker followed by a boolean literal report ok=false.
func DetectTerminalNarration(message string) (outcome Outcome, ok bool) {
	lower := strings.ToLower(message)
	idx := strings.Index(lower, completionMarker)
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(lower[idx+len(completionMarker):])
	switch {
	case strings.HasPrefix(rest, "true"):
		return OutcomePassed, true
	case strings.HasPrefix(rest, "false"):
		return OutcomeFailed, true
	}
	return 0, false
}

func (o Outcome) status() TaskStatus {
	if o == OutcomePassed {
		return Completed
	}
	return Failed
}
