package aggregate

import "time"

// Counts tallies tasks per status.
type Counts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

func (c *Counts) add(s TaskStatus) {
	switch s {
	case Pending:
		c.Pending++
	case InProgress:
		c.InProgress++
	case Completed:
		c.Completed++
	case Failed:
		c.Failed++
	}
}

// Total is the number of known tasks.
func (c Counts) Total() int {
	return c.Pending + c.InProgress + c.Completed + c.Failed
}

// Done is the number of tasks in a terminal status.
func (c Counts) Done() int {
	return c.Completed + c.Failed
}

// Snapshot is a point-in-time copy of a session, safe to retain.
type Snapshot struct {
	SessionID       string        `json:"session_id"`
	Status          SessionStatus `json:"status"`
	Tasks           []Task        `json:"tasks"`
	Counts          Counts        `json:"counts"`
	EventCount      int           `json:"event_count"`
	WorkflowSummary string        `json:"workflow_summary,omitempty"`
	LastEventAt     time.Time     `json:"last_event_at"`
}

// Progress is the fraction of known tasks that reached a terminal status.
func (s Snapshot) Progress() float64 {
	total := s.Counts.Total()
	if total == 0 {
		return 0
	}
	return float64(s.Counts.Done()) / float64(total)
}
