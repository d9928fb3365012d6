package aggregate

import (
	"sort"

	"github.com/procurewatch/investigator/internal/event"
)

// Task is the reconstructed state of one investigation sub-task.
type Task struct {
	Code     string            `json:"code"`
	ID       int               `json:"id"`
	Name     string            `json:"name,omitempty"`
	Severity string            `json:"severity,omitempty"`
	Status   TaskStatus        `json:"status"`
	Events   []event.Event     `json:"events"`
	Result   *event.TaskResult `json:"result,omitempty"`
}

// Clone returns a deep copy of the Task so the copy can be handed to
// readers while the original keeps receiving events.
func (t *Task) Clone() Task {
	c := *t
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	if len(t.Events) > 0 {
		c.Events = make([]event.Event, len(t.Events))
		for i, ev := range t.Events {
			c.Events[i] = ev.Clone()
		}
	}
	return c
}

// DisplayName falls back to the code while the name is still unknown.
func (t *Task) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Code
}

// Registry stores tasks in an arena in first-seen order, with a code
// index for lookups. Tasks are never removed.
type Registry struct {
	tasks []Task
	index map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// ensure returns the arena index for code, creating a pending placeholder
// when the code is unseen. The returned index stays valid for the life of
// the registry; pointers into the arena do not survive the next ensure.
func (r *Registry) ensure(code string) (idx int, created bool) {
	if i, ok := r.index[code]; ok {
		return i, false
	}
	r.tasks = append(r.tasks, Task{Code: code, Status: Pending})
	i := len(r.tasks) - 1
	r.index[code] = i
	return i, true
}

func (r *Registry) at(i int) *Task {
	return &r.tasks[i]
}

// Get returns a copy of the task for code.
func (r *Registry) Get(code string) (Task, bool) {
	i, ok := r.index[code]
	if !ok {
		return Task{}, false
	}
	return r.tasks[i].Clone(), true
}

func (r *Registry) Len() int {
	return len(r.tasks)
}

// Codes returns task codes in first-seen order.
func (r *Registry) Codes() []string {
	out := make([]string, len(r.tasks))
	for i := range r.tasks {
		out[i] = r.tasks[i].Code
	}
	return out
}

// Sorted returns copies of all tasks in display order: terminal tasks
// first, then by code. The order is computed on every call.
func (r *Registry) Sorted() []Task {
	out := make([]Task, len(r.tasks))
	for i := range r.tasks {
		out[i] = r.tasks[i].Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].Status.IsTerminal(), out[j].Status.IsTerminal()
		if ti != tj {
			return ti
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// RecentEvents returns at most n of the task's events, newest timestamp
// first. Events sharing a timestamp keep reverse arrival order. The
// stored history is not modified.
func (r *Registry) RecentEvents(code string, n int) []event.Event {
	i, ok := r.index[code]
	if !ok || n <= 0 {
		return nil
	}
	events := r.tasks[i].Events
	out := make([]event.Event, len(events))
	for j, ev := range events {
		out[len(events)-1-j] = ev.Clone()
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Timestamp.After(out[b].Timestamp)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
