package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/procurewatch/investigator/internal/aggregate"
	"github.com/procurewatch/investigator/internal/event"
)

// ErrDisconnected is returned by RunPlain when the channel closes before
// the session reaches a terminal status.
var ErrDisconnected = errors.New("channel closed before the investigation finished")

// RunPlain streams events as text lines to w until the session is
// terminal, the channel closes, or ctx is cancelled. It ends with a task
// table and the workflow summary.
func RunPlain(ctx context.Context, src Source, w io.Writer) error {
	printed := 0
	for {
		log := src.EventLog()
		for _, ev := range log[printed:] {
			fmt.Fprintln(w, formatEvent(ev))
		}
		printed = len(log)

		snap := src.Snapshot()
		if snap.Status.IsTerminal() {
			writeReport(w, snap)
			return nil
		}
		if !src.Connected() {
			writeReport(w, snap)
			return ErrDisconnected
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-src.Updates():
		}
	}
}

func formatEvent(ev event.Event) string {
	ts := "--:--:--"
	if !ev.Timestamp.IsZero() {
		ts = ev.Timestamp.Local().Format("15:04:05")
	}
	code := ev.TaskCode
	if code == "" {
		code = "-"
	}
	return fmt.Sprintf("%s %-6s %-8s %s", ts, ev.Kind, code, ev.Message)
}

func writeReport(w io.Writer, snap aggregate.Snapshot) {
	fmt.Fprintf(w, "\nsession %s %s: %d/%d tasks done (%d completed, %d failed)\n",
		snap.SessionID, snap.Status, snap.Counts.Done(), snap.Counts.Total(),
		snap.Counts.Completed, snap.Counts.Failed)
	for _, t := range snap.Tasks {
		findings := ""
		if t.Result != nil {
			findings = fmt.Sprintf("%d findings", t.Result.FindingsCount)
		}
		fmt.Fprintf(w, "  %-8s %-11s %-40s %s\n", t.Code, t.Status, t.DisplayName(), findings)
	}
	if s := strings.TrimSpace(snap.WorkflowSummary); s != "" {
		fmt.Fprintf(w, "\n%s\n", s)
	}
}
