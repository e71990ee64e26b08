package task

import (
	"context"
	"sync"
)

// MockTaskLog implements the TaskLog interface for testing. It keeps records
// in memory; the Fn fields can be overridden to inject failures.
type MockTaskLog struct {
	mutex     sync.Mutex
	records   []Record
	removed   []string
	AppendFn  func(ctx context.Context, rec Record) error
	RemoveFn  func(ctx context.Context, taskID string) error
	LoadAllFn func(ctx context.Context) ([]Record, error)
}

// NewMockTaskLog creates a MockTaskLog pre-populated with records.
func NewMockTaskLog(records ...Record) *MockTaskLog {
	log := &MockTaskLog{records: append([]Record(nil), records...)}

	log.AppendFn = func(ctx context.Context, rec Record) error {
		log.mutex.Lock()
		defer log.mutex.Unlock()
		log.records = append(log.records, rec)
		return nil
	}

	log.RemoveFn = func(ctx context.Context, taskID string) error {
		log.mutex.Lock()
		defer log.mutex.Unlock()

		kept := log.records[:0]
		for _, rec := range log.records {
			if rec.TaskID != taskID {
				kept = append(kept, rec)
			}
		}
		log.records = kept
		log.removed = append(log.removed, taskID)
		return nil
	}

	log.LoadAllFn = func(ctx context.Context) ([]Record, error) {
		log.mutex.Lock()
		defer log.mutex.Unlock()
		return append([]Record(nil), log.records...), nil
	}

	return log
}

// Append implements TaskLog
func (l *MockTaskLog) Append(ctx context.Context, rec Record) error {
	return l.AppendFn(ctx, rec)
}

// Remove implements TaskLog
func (l *MockTaskLog) Remove(ctx context.Context, taskID string) error {
	return l.RemoveFn(ctx, taskID)
}

// LoadAll implements TaskLog
func (l *MockTaskLog) LoadAll(ctx context.Context) ([]Record, error) {
	return l.LoadAllFn(ctx)
}

// IDs returns the task ids currently held, in order.
func (l *MockTaskLog) IDs() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	ids := make([]string, 0, len(l.records))
	for _, rec := range l.records {
		ids = append(ids, rec.TaskID)
	}
	return ids
}

// Removed returns the task ids passed to Remove, in call order.
func (l *MockTaskLog) Removed() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]string(nil), l.removed...)
}

// MockProcessor implements Processor with an overridable ProcessFn.
type MockProcessor struct {
	ProcessFn func(ctx context.Context, t Task) error
}

// Process implements Processor
func (p *MockProcessor) Process(ctx context.Context, t Task) error {
	if p.ProcessFn != nil {
		return p.ProcessFn(ctx, t)
	}
	return nil
}

// MockFailureRecorder collects failure records in memory.
type MockFailureRecorder struct {
	mutex   sync.Mutex
	Reasons map[string]string
	Outputs map[string]string
}

// NewMockFailureRecorder creates an empty MockFailureRecorder.
func NewMockFailureRecorder() *MockFailureRecorder {
	return &MockFailureRecorder{
		Reasons: make(map[string]string),
		Outputs: make(map[string]string),
	}
}

// RecordFailure implements FailureRecorder
func (m *MockFailureRecorder) RecordFailure(taskID, reason, output string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Reasons[taskID] = reason
	m.Outputs[taskID] = output
	return nil
}

// Reason returns the recorded reason for taskID.
func (m *MockFailureRecorder) Reason(taskID string) (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	reason, ok := m.Reasons[taskID]
	return reason, ok
}
