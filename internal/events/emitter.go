package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter fans task outcomes out to the callback notifier and
// the notify log within the process. Handlers run synchronously, in
// registration order, on the goroutine that finished the task.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		logger: logger.With("component", "outcome_emitter"),
	}
}

// RegisterHandler subscribes handler to every later outcome.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// EmitEvent hands the outcome to each handler. A failing handler does not
// stop the others; all their errors are joined into the result.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *OutcomeEvent) error {
	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.handlers...)
	e.mu.RUnlock()

	logger := e.logger.With(
		"task_id", event.TaskID,
		"pipeline", event.Pipeline,
		"status", event.Status)

	if len(handlers) == 0 {
		logger.Debug("outcome has no subscribers")
		return nil
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			logger.Warn("outcome handler failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
