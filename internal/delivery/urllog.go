package delivery

import (
	"fmt"
	"sync"
	"time"
)

// URLLog is an append-only audit file of uploaded video URLs, one
// "<RFC3339 timestamp>\t<task id>\t<url>" line per upload.
type URLLog struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewURLLog creates a URLLog writing to path.
func NewURLLog(path string) *URLLog {
	return &URLLog{path: path, now: time.Now}
}

// Record appends one entry.
func (l *URLLog) Record(taskID, url string) error {
	if l == nil || l.path == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := AppendLine(l.path, fmt.Sprintf("%s\t%s\t%s", l.now().Format(time.RFC3339), taskID, url)); err != nil {
		return fmt.Errorf("failed to write url log: %w", err)
	}
	return nil
}
