package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ping15/ShortPlayGenerator/internal/events"
)

// Deliverer uploads a pipeline's finished videos and publishes the outcome.
type Deliverer struct {
	pipeline events.Pipeline
	prefix   string
	uploader Uploader
	urls     *URLLog
	emitter  events.EventEmitter
	logger   *slog.Logger
}

// NewDeliverer creates a Deliverer for one pipeline. A nil uploader means
// storage is not configured: every delivery then reports FAIL with no URL.
func NewDeliverer(
	pipeline events.Pipeline,
	prefix string,
	uploader Uploader,
	urls *URLLog,
	emitter events.EventEmitter,
	logger *slog.Logger,
) *Deliverer {
	return &Deliverer{
		pipeline: pipeline,
		prefix:   prefix,
		uploader: uploader,
		urls:     urls,
		emitter:  emitter,
		logger:   logger.With("component", "deliverer", "pipeline", pipeline),
	}
}

// Deliver uploads localPath as <prefix>/<taskID>.mp4, records the URL and
// emits the outcome. The local file is kept whatever happens.
func (d *Deliverer) Deliver(ctx context.Context, taskID, localPath string) (string, error) {
	if d.uploader == nil {
		d.logger.Warn("storage not configured, skipping upload", "task_id", taskID, "path", localPath)
		d.emit(ctx, events.NewFailEvent(d.pipeline, taskID, ErrNoCredentials.Error()))
		return "", ErrNoCredentials
	}

	key := ObjectKey(d.prefix, taskID)
	url, err := d.uploader.Upload(ctx, localPath, key)
	if err != nil {
		d.logger.Error("upload failed", "task_id", taskID, "key", key, "error", err)
		d.emit(ctx, events.NewFailEvent(d.pipeline, taskID, err.Error()))
		return "", fmt.Errorf("failed to upload %s: %w", taskID, err)
	}

	if err := d.urls.Record(taskID, url); err != nil {
		d.logger.Error("failed to record uploaded url", "task_id", taskID, "url", url, "error", err)
	}

	d.emit(ctx, events.NewSuccessEvent(d.pipeline, taskID, url))
	return url, nil
}

// Fail publishes a FAIL outcome with an empty URL.
func (d *Deliverer) Fail(ctx context.Context, taskID, reason string) {
	d.emit(ctx, events.NewFailEvent(d.pipeline, taskID, reason))
}

func (d *Deliverer) emit(ctx context.Context, event *events.OutcomeEvent) {
	if d.emitter == nil {
		return
	}
	// Handler errors never change the task outcome
	if err := d.emitter.EmitEvent(ctx, event); err != nil {
		d.logger.Warn("outcome handler failed", "task_id", event.TaskID, "status", event.Status, "error", err)
	}
}
