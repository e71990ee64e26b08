package task

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_Validate(t *testing.T) {
	t.Parallel()

	extension := Task{
		ID:         "ext-1",
		Kind:       KindSingleShotExtension,
		Prompt:     "continue the shot",
		Duration:   5,
		InputVideo: "https://cdn.example.com/in.mp4",
	}

	tests := []struct {
		name    string
		mutate  func(t *Task)
		base    Task
		wantErr string
	}{
		{name: "valid reference task", base: newTestTask("ok")},
		{name: "valid extension task", base: extension},
		{
			name:    "missing id",
			base:    newTestTask(""),
			wantErr: "task id is required",
		},
		{
			name:    "id with path separator",
			base:    newTestTask("../etc/passwd"),
			wantErr: "not a valid file name",
		},
		{
			name:    "id with backslash",
			base:    newTestTask(`a\b`),
			wantErr: "not a valid file name",
		},
		{
			name:    "unknown kind",
			base:    newTestTask("k"),
			mutate:  func(t *Task) { t.Kind = "text_to_video" },
			wantErr: "unknown kind",
		},
		{
			name:    "zero duration",
			base:    newTestTask("d"),
			mutate:  func(t *Task) { t.Duration = 0 },
			wantErr: "duration must be positive",
		},
		{
			name:    "reference without images",
			base:    newTestTask("r"),
			mutate:  func(t *Task) { t.Images = nil },
			wantErr: "requires at least one image",
		},
		{
			name:    "reference with video",
			base:    newTestTask("r"),
			mutate:  func(t *Task) { t.InputVideo = "file:///x.mp4" },
			wantErr: "does not accept an input video",
		},
		{
			name:    "extension without video",
			base:    extension,
			mutate:  func(t *Task) { t.InputVideo = "" },
			wantErr: "requires an input video",
		},
		{
			name:    "extension with images",
			base:    extension,
			mutate:  func(t *Task) { t.Images = []string{"a.png"} },
			wantErr: "does not accept images",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := tt.base
			if tt.mutate != nil {
				tt.mutate(&task)
			}

			err := task.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTask)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRecord_Format(t *testing.T) {
	t.Parallel()

	task := newTestTask("abc123")
	task.ModelID = "/models/r2v"

	rec, err := NewRecord(task)
	require.NoError(t, err)

	line, err := rec.MarshalLine()
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(line, &raw))
	assert.JSONEq(t, `"abc123"`, string(raw["task_id"]))

	var kwargs map[string]any
	require.NoError(t, json.Unmarshal(raw["kwargs"], &kwargs))
	assert.Equal(t, "reference_to_video", kwargs["task_type"])
	assert.Equal(t, "a cat walking on the beach", kwargs["prompt"])
	assert.Equal(t, float64(5), kwargs["duration"])
	assert.Equal(t, "/models/r2v", kwargs["model_id"])
	assert.NotContains(t, kwargs, "input_video")

	parsed, err := ParseRecord(line)
	require.NoError(t, err)
	decoded, err := parsed.Task()
	require.NoError(t, err)
	assert.Equal(t, task, decoded)
}

func TestParseRecord_Rejects(t *testing.T) {
	t.Parallel()

	_, err := ParseRecord([]byte(`{"kwargs":{}}`))
	assert.Error(t, err)

	_, err = ParseRecord([]byte(`{"task_id":"x","kwargs":`))
	assert.Error(t, err)
}
