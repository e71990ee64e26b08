package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Pipeline names the pipeline a task went through.
type Pipeline string

// Known pipelines
const (
	PipelineGenerate Pipeline = "generate"
	PipelineMerge    Pipeline = "merge"
)

// Status is the terminal state reported to callers.
type Status string

// Terminal states
const (
	StatusSuccess Status = "SUCCESS"
	StatusFail    Status = "FAIL"
)

// OutcomeEvent reports how a task ended.
type OutcomeEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	TaskID   string   `json:"task_id"`
	Pipeline Pipeline `json:"pipeline"`
	Status   Status   `json:"status"`

	// VideoURL is empty unless the artifact was uploaded
	VideoURL string `json:"video_url"`

	// Reason explains a failure
	Reason string `json:"reason,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewSuccessEvent creates an event for a delivered task.
func NewSuccessEvent(pipeline Pipeline, taskID, videoURL string) *OutcomeEvent {
	return &OutcomeEvent{
		ID:         uuid.New(),
		TaskID:     taskID,
		Pipeline:   pipeline,
		Status:     StatusSuccess,
		VideoURL:   videoURL,
		OccurredAt: time.Now(),
	}
}

// NewFailEvent creates an event for a task that produced no deliverable.
func NewFailEvent(pipeline Pipeline, taskID, reason string) *OutcomeEvent {
	return &OutcomeEvent{
		ID:         uuid.New(),
		TaskID:     taskID,
		Pipeline:   pipeline,
		Status:     StatusFail,
		Reason:     reason,
		OccurredAt: time.Now(),
	}
}

// EventHandler processes outcome events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *OutcomeEvent) error
}

// EventEmitter publishes outcome events to handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *OutcomeEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *OutcomeEvent) error

// HandleEvent implements EventHandler
func (f HandlerFunc) HandleEvent(ctx context.Context, event *OutcomeEvent) error {
	return f(ctx, event)
}
