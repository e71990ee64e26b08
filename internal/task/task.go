package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which generation mode the external program runs in.
type Kind string

// Supported generation kinds
const (
	// KindReferenceToVideo generates a clip from one or more reference images
	KindReferenceToVideo Kind = "reference_to_video"

	// KindSingleShotExtension extends a single existing video
	KindSingleShotExtension Kind = "single_shot_extension"
)

// Valid reports whether k is a known generation kind.
func (k Kind) Valid() bool {
	return k == KindReferenceToVideo || k == KindSingleShotExtension
}

// Common validation errors
var (
	ErrInvalidTask   = errors.New("invalid task")
	ErrDuplicateTask = errors.New("task is already outstanding")
)

// Task is a single generation request. It is never mutated after Submit;
// outcomes are recorded out-of-band (failure records, URL log, notifications).
type Task struct {
	ID         string   `json:"-"`
	Kind       Kind     `json:"task_type"`
	Prompt     string   `json:"prompt"`
	Duration   int      `json:"duration"`
	ModelID    string   `json:"model_id,omitempty"`
	Images     []string `json:"images,omitempty"`
	InputVideo string   `json:"input_video,omitempty"`
	Offload    bool     `json:"offload"`
}

// Validate checks the task invariants: a known kind, a positive duration and
// exactly the one source locator type that matches the kind.
func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidTask)
	}
	// The id names the output video and the per-task log file.
	if strings.ContainsAny(t.ID, `/\`) || strings.Contains(t.ID, "..") {
		return fmt.Errorf("%w: task id %q is not a valid file name", ErrInvalidTask, t.ID)
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTask, t.Kind)
	}
	if t.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidTask, t.Duration)
	}

	switch t.Kind {
	case KindReferenceToVideo:
		if len(t.Images) == 0 {
			return fmt.Errorf("%w: %s requires at least one image", ErrInvalidTask, t.Kind)
		}
		if t.InputVideo != "" {
			return fmt.Errorf("%w: %s does not accept an input video", ErrInvalidTask, t.Kind)
		}
	case KindSingleShotExtension:
		if t.InputVideo == "" {
			return fmt.Errorf("%w: %s requires an input video", ErrInvalidTask, t.Kind)
		}
		if len(t.Images) > 0 {
			return fmt.Errorf("%w: %s does not accept images", ErrInvalidTask, t.Kind)
		}
	}

	return nil
}

// TaskLog is the durable record of outstanding generation tasks.
// Implementations must serialize Append and Remove so the persisted record
// set is never observed half-written.
type TaskLog interface {
	// Append persists a record. It is called before the task becomes visible
	// to the in-memory queue.
	Append(ctx context.Context, rec Record) error

	// Remove deletes the record for taskID. Removing an unknown id is a no-op.
	Remove(ctx context.Context, taskID string) error

	// LoadAll returns every persisted record in insertion order.
	LoadAll(ctx context.Context) ([]Record, error)
}

// Processor runs one task to completion: execution, result handling and
// delivery. Returned errors are logged by the Runner; the processor owns
// failure records for the failure classes it recognizes.
type Processor interface {
	Process(ctx context.Context, t Task) error
}

// FailureRecorder writes a human-readable failure record for a task.
type FailureRecorder interface {
	RecordFailure(taskID, reason, output string) error
}
