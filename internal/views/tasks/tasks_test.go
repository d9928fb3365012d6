package tasks

import (
	"strings"
	"testing"

	"github.com/procurewatch/investigator/internal/aggregate"
	"github.com/procurewatch/investigator/internal/event"
)

func sample(n int) []aggregate.Task {
	out := make([]aggregate.Task, n)
	for i := range out {
		out[i] = aggregate.Task{Code: string(rune('A' + i)), Name: "task " + string(rune('a'+i))}
	}
	return out
}

func TestViewEmpty(t *testing.T) {
	if v := View(nil, 0, 80, 10); !strings.Contains(v, "Waiting") {
		t.Errorf("empty view = %q", v)
	}
}

func TestViewMarksSelection(t *testing.T) {
	v := View(sample(3), 1, 120, 10)
	lines := strings.Split(v, "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if !strings.Contains(lines[1], "▸") {
		t.Errorf("selected row not marked: %q", lines[1])
	}
	if strings.Contains(lines[0], "▸") || strings.Contains(lines[2], "▸") {
		t.Error("only the selected row should be marked")
	}
}

func TestViewScrollsToSelection(t *testing.T) {
	v := View(sample(10), 8, 120, 4)
	lines := strings.Split(v, "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4", len(lines))
	}
	if !strings.Contains(lines[3], "task i") {
		t.Errorf("last visible row = %q, want the selected task", lines[3])
	}
}

func TestRowShowsFindings(t *testing.T) {
	task := aggregate.Task{
		Code:   "H-01",
		Name:   "Pricing",
		Status: aggregate.Failed,
		Result: &event.TaskResult{FindingsCount: 4},
	}
	r := row(task, false, 0)
	for _, want := range []string{"H-01", "Pricing", "failed", "4 findings"} {
		if !strings.Contains(r, want) {
			t.Errorf("row missing %q: %q", want, r)
		}
	}
}
