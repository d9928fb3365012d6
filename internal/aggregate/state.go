// Package aggregate folds the observation stream of one investigation into
// per-task and per-session state.
//
// Apply is the only mutator. It performs no I/O and never blocks; callers
// serialise Apply calls for a given State.
package aggregate

import (
	"time"

	"github.com/procurewatch/investigator/internal/event"
)

// State is the aggregated view of one session.
type State struct {
	ID              string
	Status          SessionStatus
	WorkflowSummary string
	LastEventAt     time.Time

	log      []event.Event
	registry *Registry
}

// NewState returns an empty running session state.
func NewState(id string) *State {
	return &State{
		ID:       id,
		Status:   Running,
		registry: NewRegistry(),
	}
}

// TaskChange records one task status assignment made by Apply.
type TaskChange struct {
	Code    string
	From    TaskStatus
	To      TaskStatus
	Created bool
}

// Changes summarises the effect of one Apply call.
type Changes struct {
	Tasks         []TaskChange
	SessionFrom   SessionStatus
	SessionTo     SessionStatus
	SessionChange bool
}

// Empty reports whether Apply only recorded the event.
func (c Changes) Empty() bool {
	return len(c.Tasks) == 0 && !c.SessionChange
}

// Apply folds ev into the state.
func (s *State) Apply(ev event.Event) Changes {
	var ch Changes
	ev = ev.Clone()

	s.log = append(s.log, ev)
	if ev.Timestamp.After(s.LastEventAt) {
		s.LastEventAt = ev.Timestamp
	}

	if ev.Scoped() {
		ch.Tasks = append(ch.Tasks, s.applyScoped(ev))
	}

	if ev.HasBatch() {
		for _, r := range ev.Tasks {
			ch.Tasks = append(ch.Tasks, s.applyResult(r))
		}
	}

	if ev.Kind == event.KindResult && ev.WorkflowSummary != "" {
		s.WorkflowSummary = ev.WorkflowSummary
	}

	if !ev.Scoped() && s.Status == Running {
		switch ev.Kind {
		case event.KindResult:
			ch.SessionFrom, ch.SessionTo, ch.SessionChange = Running, SessionCompleted, true
			s.Status = SessionCompleted
		case event.KindError:
			ch.SessionFrom, ch.SessionTo, ch.SessionChange = Running, SessionFailed, true
			s.Status = SessionFailed
		}
	}

	return ch
}

// applyScoped handles an event carrying a task code. Status only moves
// forward here; terminal tasks still record the event.
func (s *State) applyScoped(ev event.Event) TaskChange {
	i, created := s.registry.ensure(ev.TaskCode)
	t := s.registry.at(i)
	t.Events = append(t.Events, ev)

	from := t.Status
	if outcome, ok := DetectTerminalNarration(ev.Message); ok {
		t.Status = advance(t.Status, outcome.status())
	} else {
		t.Status = advance(t.Status, statusFor(ev.Kind))
	}
	return TaskChange{Code: t.Code, From: from, To: t.Status, Created: created}
}

// applyResult installs one entry of a session-level result batch. The
// batch is authoritative: it overrides any earlier status, terminal or
// not, so the last applied signal wins.
func (s *State) applyResult(r event.TaskResult) TaskChange {
	i, created := s.registry.ensure(r.TaskCode)
	t := s.registry.at(i)

	t.ID = r.TaskID
	if r.TaskName != "" {
		t.Name = r.TaskName
	}
	if r.Severity != "" {
		t.Severity = r.Severity
	}
	res := r
	t.Result = &res

	from := t.Status
	if r.ValidationPassed {
		t.Status = Completed
	} else {
		t.Status = Failed
	}
	return TaskChange{Code: t.Code, From: from, To: t.Status, Created: created}
}

func statusFor(k event.Kind) TaskStatus {
	switch k {
	case event.KindResult:
		return Completed
	case event.KindError:
		return Failed
	default:
		return InProgress
	}
}

// EventLog returns a copy of every event applied so far, in arrival order.
func (s *State) EventLog() []event.Event {
	out := make([]event.Event, len(s.log))
	for i, ev := range s.log {
		out[i] = ev.Clone()
	}
	return out
}

// EventCount is the length of the event log.
func (s *State) EventCount() int {
	return len(s.log)
}

// Task returns a copy of the task for code.
func (s *State) Task(code string) (Task, bool) {
	return s.registry.Get(code)
}

// Tasks returns copies of all tasks in display order.
func (s *State) Tasks() []Task {
	return s.registry.Sorted()
}

// RecentEvents returns the newest n events of a task.
func (s *State) RecentEvents(code string, n int) []event.Event {
	return s.registry.RecentEvents(code, n)
}

// Snapshot returns a detached copy of the state for rendering.
func (s *State) Snapshot() Snapshot {
	tasks := s.registry.Sorted()
	snap := Snapshot{
		SessionID:       s.ID,
		Status:          s.Status,
		Tasks:           tasks,
		EventCount:      len(s.log),
		WorkflowSummary: s.WorkflowSummary,
		LastEventAt:     s.LastEventAt,
	}
	for i := range tasks {
		snap.Counts.add(tasks[i].Status)
	}
	return snap
}
