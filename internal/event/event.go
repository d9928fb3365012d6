// Package event defines the typed observations pushed by the investigation
// pipeline and the wire codec that turns JSON frames into them.
package event

import (
	"encoding/json"
	"time"
)

// Kind classifies an observation.
type Kind int

const (
	KindLog Kind = iota
	KindResult
	KindError
)

var kindNames = map[Kind]string{
	KindLog:    "log",
	KindResult: "result",
	KindError:  "error",
}

var kindFromName = map[string]Kind{
	"log":    KindLog,
	"result": KindResult,
	"error":  KindError,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps a wire type name to a Kind.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindFromName[name]
	return k, ok
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := kindFromName[s]; ok {
		*k = v
	}
	return nil
}

// TaskResult is the structured outcome of one investigated task.
type TaskResult struct {
	TaskID           int    `json:"task_id"`
	TaskCode         string `json:"task_code"`
	TaskName         string `json:"task_name"`
	Severity         string `json:"severity,omitempty"`
	ValidationPassed bool   `json:"validation_passed"`
	FindingsCount    int    `json:"findings_count"`
	Summary          string `json:"investigation_summary,omitempty"`
}

// Event is one decoded observation. Events are values; the slices they
// carry must not be modified after construction.
type Event struct {
	Kind            Kind         `json:"type"`
	Timestamp       time.Time    `json:"timestamp"`
	Message         string       `json:"message"`
	TaskCode        string       `json:"task_code,omitempty"`
	Tasks           []TaskResult `json:"tasks_by_id,omitempty"`
	WorkflowSummary string       `json:"workflow_summary,omitempty"`
	Status          string       `json:"status,omitempty"`
}

// Scoped reports whether the event concerns a specific task.
func (e Event) Scoped() bool {
	return e.TaskCode != ""
}

// HasBatch reports whether the event carries the session-level batch of
// task results.
func (e Event) HasBatch() bool {
	return e.Kind == KindResult && len(e.Tasks) > 0
}

// Log builds a narration event stamped with ts.
func Log(ts time.Time, message, taskCode string) Event {
	return Event{Kind: KindLog, Timestamp: ts, Message: message, TaskCode: taskCode}
}

// Result builds a result event. An empty taskCode makes it session scoped.
func Result(ts time.Time, message, taskCode string) Event {
	return Event{Kind: KindResult, Timestamp: ts, Message: message, TaskCode: taskCode}
}

// Error builds an error event. An empty taskCode makes it session scoped.
func Error(ts time.Time, message, taskCode string) Event {
	return Event{Kind: KindError, Timestamp: ts, Message: message, TaskCode: taskCode}
}

// Clone returns a copy whose task batch can be retained independently.
func (e Event) Clone() Event {
	if len(e.Tasks) > 0 {
		tasks := make([]TaskResult, len(e.Tasks))
		copy(tasks, e.Tasks)
		e.Tasks = tasks
	}
	return e
}
