package aggregate

import "encoding/json"

// TaskStatus is the lifecycle position of one task. The zero value is
// Pending.
type TaskStatus int

const (
	Pending TaskStatus = iota
	InProgress
	Completed
	Failed
)

var taskStatusNames = map[TaskStatus]string{
	Pending:    "pending",
	InProgress: "in_progress",
	Completed:  "completed",
	Failed:     "failed",
}

var taskStatusFromName = map[string]TaskStatus{
	"pending":     Pending,
	"in_progress": InProgress,
	"completed":   Completed,
	"failed":      Failed,
}

func (s TaskStatus) String() string {
	if n, ok := taskStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s TaskStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := taskStatusFromName[n]; ok {
		*s = v
	}
	return nil
}

// IsTerminal reports whether the status can no longer change through
// per-event derivation.
func (s TaskStatus) IsTerminal() bool {
	return s == Completed || s == Failed
}

// rank orders statuses along pending < in_progress < {completed, failed}.
func (s TaskStatus) rank() int {
	switch s {
	case Pending:
		return 0
	case InProgress:
		return 1
	default:
		return 2
	}
}

// advance returns the status after applying next to cur without ever
// moving backwards or leaving a terminal status.
func advance(cur, next TaskStatus) TaskStatus {
	if cur.IsTerminal() {
		return cur
	}
	if next.rank() > cur.rank() {
		return next
	}
	return cur
}

// SessionStatus is the overall state of an investigation run.
type SessionStatus int

const (
	Running SessionStatus = iota
	SessionCompleted
	SessionFailed
)

var sessionStatusNames = map[SessionStatus]string{
	Running:          "running",
	SessionCompleted: "completed",
	SessionFailed:    "failed",
}

var sessionStatusFromName = map[string]SessionStatus{
	"running":   Running,
	"completed": SessionCompleted,
	"failed":    SessionFailed,
}

func (s SessionStatus) String() string {
	if n, ok := sessionStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s SessionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := sessionStatusFromName[n]; ok {
		*s = v
	}
	return nil
}

func (s SessionStatus) IsTerminal() bool {
	return s != Running
}
