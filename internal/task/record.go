package task

import (
	"encoding/json"
	"fmt"
)

// Record is the persisted form of a queued task, one JSON object per line:
//
//	{"task_id": "...", "kwargs": {"task_type": "...", "prompt": "...", ...}}
type Record struct {
	TaskID string          `json:"task_id"`
	Kwargs json.RawMessage `json:"kwargs"`
}

// NewRecord encodes a task into its durable record form.
func NewRecord(t Task) (Record, error) {
	kwargs, err := json.Marshal(t)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode task kwargs: %w", err)
	}

	return Record{TaskID: t.ID, Kwargs: kwargs}, nil
}

// Task decodes the record back into a Task.
func (r Record) Task() (Task, error) {
	var t Task
	if len(r.Kwargs) > 0 {
		if err := json.Unmarshal(r.Kwargs, &t); err != nil {
			return Task{}, fmt.Errorf("failed to decode kwargs for task %s: %w", r.TaskID, err)
		}
	}
	t.ID = r.TaskID

	return t, nil
}

// MarshalLine renders the record as a single JSON line without the trailing newline.
func (r Record) MarshalLine() ([]byte, error) {
	return json.Marshal(r)
}

// ParseRecord decodes a single JSON line into a Record.
func ParseRecord(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, err
	}
	if r.TaskID == "" {
		return Record{}, fmt.Errorf("record has no task_id")
	}

	return r, nil
}
