package delivery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FailureOutputChars is how much trailing process output a failure record keeps.
const FailureOutputChars = 20000

// FailureRecorder writes one human-readable file per failed task.
type FailureRecorder struct {
	dir string
	now func() time.Time
}

// NewFailureRecorder creates a FailureRecorder writing <dir>/<task_id>.log.
func NewFailureRecorder(dir string) *FailureRecorder {
	return &FailureRecorder{dir: dir, now: time.Now}
}

// Path returns the failure record path for taskID.
func (r *FailureRecorder) Path(taskID string) string {
	return filepath.Join(r.dir, taskID+".log")
}

// RecordFailure writes the record, replacing any earlier one for the task.
func (r *FailureRecorder) RecordFailure(taskID, reason, output string) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create failure directory: %w", err)
	}

	if runes := []rune(output); len(runes) > FailureOutputChars {
		output = string(runes[len(runes)-FailureOutputChars:])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "time: %s\n", r.now().Format(time.RFC3339))
	fmt.Fprintf(&b, "task_id: %s\n", taskID)
	fmt.Fprintf(&b, "reason: %s\n", reason)
	b.WriteString("\n--- output (tail) ---\n")
	b.WriteString(output)
	if output != "" && !strings.HasSuffix(output, "\n") {
		b.WriteString("\n")
	}

	if err := os.WriteFile(r.Path(taskID), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write failure record: %w", err)
	}
	return nil
}

// AppendLine appends line and a newline to path, creating the file and its
// directory as needed.
func AppendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	_, err = f.WriteString(line + "\n")
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return nil
}
