package aggregate

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/procurewatch/investigator/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func mustTask(t *testing.T, s *State, code string) Task {
	t.Helper()
	task, ok := s.Task(code)
	require.True(t, ok, "task %s not found", code)
	return task
}

func TestLogCreatesTaskInProgress(t *testing.T) {
	s := NewState("sess-1")
	ch := s.Apply(event.Log(at(0), "starting", "T1"))

	task := mustTask(t, s, "T1")
	assert.Equal(t, InProgress, task.Status)
	assert.Equal(t, 0, task.ID)
	assert.Len(t, task.Events, 1)

	require.Len(t, ch.Tasks, 1)
	assert.Equal(t, TaskChange{Code: "T1", From: Pending, To: InProgress, Created: true}, ch.Tasks[0])
	assert.Equal(t, Running, s.Status)
}

func TestTerminalNarrationCompletesTask(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Log(at(0), "Task 1 investigation complete. Validation passed: True", "T1"))

	assert.Equal(t, Completed, mustTask(t, s, "T1").Status)
}

func TestTerminalNarrationFailsTask(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Log(at(0), "starting", "T1"))
	s.Apply(event.Log(at(1), "Task 1 investigation complete. Validation passed: False", "T1"))

	assert.Equal(t, Failed, mustTask(t, s, "T1").Status)
}

func TestBatchResultCreatesTaskDirectly(t *testing.T) {
	s := NewState("sess-1")
	ev := event.Result(at(0), "Investigation completed", "")
	ev.Tasks = []event.TaskResult{{TaskCode: "T2", TaskID: 7, TaskName: "Check", ValidationPassed: false, FindingsCount: 3}}
	s.Apply(ev)

	task := mustTask(t, s, "T2")
	assert.Equal(t, Failed, task.Status)
	assert.Equal(t, 7, task.ID)
	assert.Equal(t, "Check", task.Name)
	require.NotNil(t, task.Result)
	assert.Equal(t, 3, task.Result.FindingsCount)
	assert.Empty(t, task.Events)
	assert.Equal(t, SessionCompleted, s.Status)
}

func TestSessionErrorLeavesTasksAsObserved(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Log(at(0), "starting", "T1"))
	ch := s.Apply(event.Error(at(1), "pipeline crashed", ""))

	assert.Equal(t, SessionFailed, s.Status)
	assert.True(t, ch.SessionChange)
	assert.Equal(t, InProgress, mustTask(t, s, "T1").Status)
}

func TestDuplicateNarrationIsIdempotent(t *testing.T) {
	s := NewState("sess-1")
	ev := event.Log(at(0), "Task 1 investigation complete. Validation passed: True", "T1")

	first := s.Apply(ev)
	second := s.Apply(ev)

	task := mustTask(t, s, "T1")
	assert.Equal(t, Completed, task.Status)
	assert.Len(t, task.Events, 2)
	assert.Equal(t, Completed, first.Tasks[0].To)
	assert.Equal(t, Completed, second.Tasks[0].From)
	assert.Equal(t, Completed, second.Tasks[0].To)
}

func TestTerminalTaskIsFrozenForScopedEvents(t *testing.T) {
	tests := []struct {
		name  string
		first event.Event
		later event.Event
		want  TaskStatus
	}{
		{"completed ignores error", event.Result(at(0), "done", "T1"), event.Error(at(1), "boom", "T1"), Completed},
		{"failed ignores result", event.Error(at(0), "boom", "T1"), event.Result(at(1), "done", "T1"), Failed},
		{"failed ignores log", event.Error(at(0), "boom", "T1"), event.Log(at(1), "retrying", "T1"), Failed},
		{"completed ignores failing narration", event.Log(at(0), "investigation complete. Validation passed: True", "T1"),
			event.Log(at(1), "investigation complete. Validation passed: False", "T1"), Completed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState("sess-1")
			s.Apply(tt.first)
			s.Apply(tt.later)

			task := mustTask(t, s, "T1")
			assert.Equal(t, tt.want, task.Status)
			assert.Len(t, task.Events, 2)
		})
	}
}

func TestBatchIsLastAppliedWins(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Log(at(0), "Task 4 investigation complete. Validation passed: False", "H-04"))
	require.Equal(t, Failed, mustTask(t, s, "H-04").Status)

	batch := event.Result(at(1), "Investigation completed", "")
	batch.Tasks = []event.TaskResult{{TaskID: 4, TaskCode: "H-04", TaskName: "Plazos", ValidationPassed: true}}
	ch := s.Apply(batch)

	assert.Equal(t, Completed, mustTask(t, s, "H-04").Status)
	assert.Equal(t, TaskChange{Code: "H-04", From: Failed, To: Completed}, ch.Tasks[0])
}

func TestBatchUpgradesInProgressTask(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Log(at(0), "starting", "H-02"))

	batch := event.Result(at(1), "Investigation completed", "")
	batch.Tasks = []event.TaskResult{{TaskID: 2, TaskCode: "H-02", TaskName: "Bases Técnicas", Severity: "Alto", ValidationPassed: true, Summary: "ok"}}
	s.Apply(batch)

	task := mustTask(t, s, "H-02")
	assert.Equal(t, Completed, task.Status)
	assert.Equal(t, "Alto", task.Severity)
	assert.Equal(t, "ok", task.Result.Summary)
	assert.Len(t, task.Events, 1)
}

func TestSessionStatusIsTerminal(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Error(at(0), "Investigation failed: timeout", ""))
	ch := s.Apply(event.Result(at(1), "Investigation completed", ""))

	assert.Equal(t, SessionFailed, s.Status)
	assert.False(t, ch.SessionChange)
}

func TestSessionLogDoesNotEndSession(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Log(at(0), "Fetching tender data for 1234-56-LR22...", ""))

	assert.Equal(t, Running, s.Status)
	assert.Empty(t, s.Tasks())
	assert.Equal(t, 1, s.EventCount())
}

func TestScopedResultDoesNotEndSession(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Result(at(0), "done", "T1"))

	assert.Equal(t, Running, s.Status)
	assert.Equal(t, Completed, mustTask(t, s, "T1").Status)
}

func TestWorkflowSummaryCaptured(t *testing.T) {
	s := NewState("sess-1")
	ev := event.Result(at(0), "Investigation completed", "")
	ev.WorkflowSummary = "## Riesgo: ALTO"
	s.Apply(ev)

	assert.Equal(t, "## Riesgo: ALTO", s.Snapshot().WorkflowSummary)
}

func TestEventLogKeepsArrivalOrder(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Log(at(5), "b", "T1"))
	s.Apply(event.Log(at(1), "a", ""))
	s.Apply(event.Log(at(3), "c", "T2"))

	log := s.EventLog()
	require.Len(t, log, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{log[0].Message, log[1].Message, log[2].Message})
	assert.Equal(t, at(5), s.LastEventAt)
}

func TestApplyDetachesCallerBatch(t *testing.T) {
	s := NewState("sess-1")
	ev := event.Result(at(0), "done", "")
	ev.Tasks = []event.TaskResult{{TaskCode: "T1", ValidationPassed: true}}
	s.Apply(ev)

	ev.Tasks[0].TaskCode = "mutated"
	assert.Equal(t, "T1", s.EventLog()[0].Tasks[0].TaskCode)
}

func TestRecentEvents(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Log(at(2), "second", "T1"))
	s.Apply(event.Log(at(1), "first", "T1"))
	s.Apply(event.Log(at(3), "third-a", "T1"))
	s.Apply(event.Log(at(3), "third-b", "T1"))
	s.Apply(event.Log(at(9), "other task", "T2"))

	recent := s.RecentEvents("T1", 3)
	require.Len(t, recent, 3)
	assert.Equal(t, "third-b", recent[0].Message)
	assert.Equal(t, "third-a", recent[1].Message)
	assert.Equal(t, "second", recent[2].Message)

	// The stored history keeps arrival order.
	task := mustTask(t, s, "T1")
	assert.Equal(t, "second", task.Events[0].Message)

	assert.Len(t, s.RecentEvents("T1", 10), 4)
	assert.Nil(t, s.RecentEvents("T1", 0))
	assert.Nil(t, s.RecentEvents("missing", 5))
}

func TestTasksDisplayOrder(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Log(at(0), "starting", "H-03"))
	s.Apply(event.Log(at(0), "starting", "H-01"))
	s.Apply(event.Error(at(1), "crashed", "H-05"))
	s.Apply(event.Log(at(1), "starting", "H-02"))
	s.Apply(event.Result(at(2), "done", "H-04"))

	var codes []string
	for _, task := range s.Tasks() {
		codes = append(codes, task.Code)
	}
	assert.Equal(t, []string{"H-04", "H-05", "H-01", "H-02", "H-03"}, codes)

	// Ordering is recomputed once H-01 finishes.
	s.Apply(event.Log(at(3), "Task 1 investigation complete. Validation passed: True", "H-01"))
	codes = codes[:0]
	for _, task := range s.Tasks() {
		codes = append(codes, task.Code)
	}
	assert.Equal(t, []string{"H-01", "H-04", "H-05", "H-02", "H-03"}, codes)
}

func TestSnapshotIsDetached(t *testing.T) {
	s := NewState("sess-1")
	s.Apply(event.Log(at(0), "starting", "T1"))

	snap := s.Snapshot()
	snap.Tasks[0].Events[0].Message = "mutated"
	snap.Tasks[0].Status = Failed

	task := mustTask(t, s, "T1")
	assert.Equal(t, "starting", task.Events[0].Message)
	assert.Equal(t, InProgress, task.Status)
}

func TestSnapshotCountsAndProgress(t *testing.T) {
	s := NewState("sess-1")
	assert.Zero(t, s.Snapshot().Progress())

	s.Apply(event.Log(at(0), "starting", "T1"))
	s.Apply(event.Result(at(0), "done", "T2"))
	s.Apply(event.Error(at(0), "boom", "T3"))
	s.Apply(event.Log(at(0), "starting", "T4"))

	snap := s.Snapshot()
	assert.Equal(t, Counts{InProgress: 2, Completed: 1, Failed: 1}, snap.Counts)
	assert.Equal(t, 4, snap.EventCount)
	assert.InDelta(t, 0.5, snap.Progress(), 1e-9)
}

// randomEvent draws from a small alphabet so codes repeat and terminal
// signals collide.
func randomEvent(r *rand.Rand, sec int) event.Event {
	codes := []string{"", "A", "B", "C"}
	code := codes[r.Intn(len(codes))]
	switch r.Intn(6) {
	case 0:
		return event.Result(at(sec), "done", code)
	case 1:
		return event.Error(at(sec), "boom", code)
	case 2:
		return event.Log(at(sec), "investigation complete. Validation passed: True", code)
	case 3:
		return event.Log(at(sec), "investigation complete. Validation passed: False", code)
	default:
		return event.Log(at(r.Intn(50)), "working", code)
	}
}

func TestScopedEventsNeverRegressStatus(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		r := rand.New(rand.NewSource(seed))
		s := NewState("prop")
		sessionSeen := false

		for i := 0; i < 60; i++ {
			ev := randomEvent(r, i)
			before := map[string]TaskStatus{}
			for _, task := range s.Tasks() {
				before[task.Code] = task.Status
			}
			prevSession := s.Status

			s.Apply(ev)

			if ev.Scoped() {
				task := mustTask(t, s, ev.TaskCode)
				if prev, ok := before[ev.TaskCode]; ok {
					if prev.IsTerminal() && task.Status != prev {
						t.Fatalf("seed %d step %d: task %s left terminal %s for %s", seed, i, ev.TaskCode, prev, task.Status)
					}
					if task.Status.rank() < prev.rank() {
						t.Fatalf("seed %d step %d: task %s regressed %s -> %s", seed, i, ev.TaskCode, prev, task.Status)
					}
				}
			}

			if !ev.Scoped() && ev.Kind != event.KindLog {
				sessionSeen = true
			}
			if prevSession.IsTerminal() && s.Status != prevSession {
				t.Fatalf("seed %d step %d: session left terminal status", seed, i)
			}
			if s.Status.IsTerminal() != sessionSeen {
				t.Fatalf("seed %d step %d: session status %s, terminal event seen=%v", seed, i, s.Status, sessionSeen)
			}
		}

		for _, task := range s.Tasks() {
			recent := s.RecentEvents(task.Code, 3)
			if len(recent) > 3 {
				t.Fatalf("seed %d: recent events for %s exceed bound", seed, task.Code)
			}
			if !sort.SliceIsSorted(recent, func(a, b int) bool { return recent[a].Timestamp.After(recent[b].Timestamp) }) {
				t.Fatalf("seed %d: recent events for %s not newest first", seed, task.Code)
			}
		}
		assertDisplayOrder(t, fmt.Sprintf("seed %d", seed), s.Tasks())
	}
}

func assertDisplayOrder(t *testing.T, label string, tasks []Task) {
	t.Helper()
	seenActive := false
	for i, task := range tasks {
		if !task.Status.IsTerminal() {
			seenActive = true
		} else if seenActive {
			t.Fatalf("%s: terminal task %s listed after a non-terminal task", label, task.Code)
		}
		if i > 0 && tasks[i-1].Status.IsTerminal() == task.Status.IsTerminal() && tasks[i-1].Code > task.Code {
			t.Fatalf("%s: %s listed before %s", label, tasks[i-1].Code, task.Code)
		}
	}
}
