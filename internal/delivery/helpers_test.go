package delivery

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ping15/ShortPlayGenerator/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockUploader implements Uploader with an overridable UploadFn.
type MockUploader struct {
	mu       sync.Mutex
	Calls    []string
	UploadFn func(ctx context.Context, localPath, key string) (string, error)
}

func (m *MockUploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, key)
	m.mu.Unlock()
	if m.UploadFn != nil {
		return m.UploadFn(ctx, localPath, key)
	}
	return "https://cdn.example.com/" + key, nil
}

// recordingEmitter collects emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.OutcomeEvent
}

func (e *recordingEmitter) EmitEvent(_ context.Context, event *events.OutcomeEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEmitter) Events() []*events.OutcomeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*events.OutcomeEvent(nil), e.events...)
}
