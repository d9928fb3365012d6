package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLog(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"log","message":"starting","timestamp":"2025-03-01T10:00:00Z","task_code":"H-01"}`))
	require.NoError(t, err)

	assert.Equal(t, KindLog, ev.Kind)
	assert.Equal(t, "starting", ev.Message)
	assert.Equal(t, "H-01", ev.TaskCode)
	assert.True(t, ev.Scoped())
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), ev.Timestamp)
}

func TestDecodeSessionResultBatch(t *testing.T) {
	frame := `{
		"type": "result",
		"message": "Investigation completed",
		"timestamp": "2025-03-01T10:05:00.123456",
		"tasks_by_id": [
			{"task_id": 7, "task_code": "T2", "task_name": "Check", "validation_passed": false, "findings_count": 3, "investigation_summary": "two bidders share an address"}
		],
		"workflow_summary": "# Summary",
		"status": "completed"
	}`
	ev, err := Decode([]byte(frame))
	require.NoError(t, err)

	assert.Equal(t, KindResult, ev.Kind)
	assert.False(t, ev.Scoped())
	assert.True(t, ev.HasBatch())
	require.Len(t, ev.Tasks, 1)
	assert.Equal(t, TaskResult{
		TaskID: 7, TaskCode: "T2", TaskName: "Check",
		ValidationPassed: false, FindingsCount: 3, Summary: "two bidders share an address",
	}, ev.Tasks[0])
	assert.Equal(t, "# Summary", ev.WorkflowSummary)
	assert.Equal(t, "completed", ev.Status)
	assert.Equal(t, 123456000, ev.Timestamp.Nanosecond())
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"invalid json", `{"type":`},
		{"not an object", `"log"`},
		{"missing type", `{"message":"x","timestamp":"2025-03-01T10:00:00Z"}`},
		{"unknown type", `{"type":"progress","message":"x","timestamp":"2025-03-01T10:00:00Z"}`},
		{"missing timestamp", `{"type":"log","message":"x"}`},
		{"bad timestamp", `{"type":"log","message":"x","timestamp":"yesterday"}`},
		{"batch entry without code", `{"type":"result","message":"x","timestamp":"2025-03-01T10:00:00Z","tasks_by_id":[{"task_id":1}]}`},
		{"negative findings", `{"type":"result","message":"x","timestamp":"2025-03-01T10:00:00Z","tasks_by_id":[{"task_code":"H-01","findings_count":-1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode), "error %v should wrap ErrDecode", err)
		})
	}
}

func TestDecodeMissingMessageIsEmpty(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"error","timestamp":"2025-03-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, KindError, ev.Kind)
	assert.Empty(t, ev.Message)
}

func TestDecodeIgnoresBatchOnNonResult(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"log","message":"x","timestamp":"2025-03-01T10:00:00Z","tasks_by_id":[{"task_code":"H-01"}]}`))
	require.NoError(t, err)
	assert.Empty(t, ev.Tasks)
	assert.False(t, ev.HasBatch())
}

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 5000, time.UTC)
	in := Result(ts, "Investigation completed", "")
	in.Tasks = []TaskResult{{TaskID: 1, TaskCode: "H-01", TaskName: "Bases", Severity: "Crítico", ValidationPassed: true}}
	in.Status = "completed"

	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestKindJSON(t *testing.T) {
	for _, k := range []Kind{KindLog, KindResult, KindError} {
		data, err := k.MarshalJSON()
		require.NoError(t, err)

		var got Kind
		require.NoError(t, got.UnmarshalJSON(data))
		assert.Equal(t, k, got)
	}
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestCloneDetachesBatch(t *testing.T) {
	ev := Result(time.Now(), "done", "")
	ev.Tasks = []TaskResult{{TaskCode: "H-01"}}

	c := ev.Clone()
	c.Tasks[0].TaskCode = "H-99"
	assert.Equal(t, "H-01", ev.Tasks[0].TaskCode)
}
