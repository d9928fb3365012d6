package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDecode marks a frame that could not be turned into an Event.
var ErrDecode = errors.New("decode observation")

// Python's isoformat() omits the zone, so several layouts are accepted.
// Zone-less timestamps are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// wireMessage mirrors one JSON frame. Pointer fields distinguish absent
// from empty.
type wireMessage struct {
	Type            *string      `json:"type"`
	Message         *string      `json:"message"`
	Timestamp       *string      `json:"timestamp"`
	TaskCode        string       `json:"task_code,omitempty"`
	TasksByID       []TaskResult `json:"tasks_by_id,omitempty"`
	WorkflowSummary string       `json:"workflow_summary,omitempty"`
	Status          string       `json:"status,omitempty"`
}

// Decode parses one frame. Any error wraps ErrDecode; the frame must then
// be dropped.
func Decode(data []byte) (Event, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if w.Type == nil {
		return Event{}, fmt.Errorf("%w: missing type", ErrDecode)
	}
	kind, ok := ParseKind(*w.Type)
	if !ok {
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrDecode, *w.Type)
	}
	if w.Timestamp == nil {
		return Event{}, fmt.Errorf("%w: missing timestamp", ErrDecode)
	}
	ts, err := ParseTimestamp(*w.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	for i, r := range w.TasksByID {
		if r.TaskCode == "" {
			return Event{}, fmt.Errorf("%w: tasks_by_id[%d] missing task_code", ErrDecode, i)
		}
		if r.FindingsCount < 0 {
			return Event{}, fmt.Errorf("%w: tasks_by_id[%d] negative findings_count", ErrDecode, i)
		}
	}

	ev := Event{
		Kind:            kind,
		Timestamp:       ts,
		TaskCode:        w.TaskCode,
		WorkflowSummary: w.WorkflowSummary,
		Status:          w.Status,
	}
	if w.Message != nil {
		ev.Message = *w.Message
	}
	if kind == KindResult {
		ev.Tasks = w.TasksByID
	}
	return ev, nil
}

// Encode renders an event as a wire frame.
func Encode(ev Event) ([]byte, error) {
	typ := ev.Kind.String()
	msg := ev.Message
	ts := ev.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(wireMessage{
		Type:            &typ,
		Message:         &msg,
		Timestamp:       &ts,
		TaskCode:        ev.TaskCode,
		TasksByID:       ev.Tasks,
		WorkflowSummary: ev.WorkflowSummary,
		Status:          ev.Status,
	})
}

// ParseTimestamp reads an ISO-8601 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
