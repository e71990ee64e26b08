// Package filestore implements the durable task log as a JSON-lines file.
package filestore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ping15/ShortPlayGenerator/internal/task"
)

// TaskLog stores one task.Record per line. Append and Remove share a mutex;
// Remove rewrites the file through a temp file and rename so the log is
// replaced atomically.
type TaskLog struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

var _ task.TaskLog = (*TaskLog)(nil)

// NewTaskLog creates a TaskLog at path, creating parent directories.
func NewTaskLog(path string, logger *slog.Logger) (*TaskLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create task log directory: %w", err)
	}

	return &TaskLog{
		path:   path,
		logger: logger.With("component", "file_task_log", "path", path),
	}, nil
}

// Append writes rec as a new line and syncs the file.
func (l *TaskLog) Append(ctx context.Context, rec task.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open task log: %w", err)
	}

	// Terminate a torn trailing line so the new record starts on its own line
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			line = append([]byte{'\n'}, line...)
		}
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to task log: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync task log: %w", err)
	}

	return f.Close()
}

// Remove rewrites the log without any record for taskID.
func (l *TaskLog) Remove(ctx context.Context, taskID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readLocked()
	if err != nil {
		return err
	}

	kept := make([]task.Record, 0, len(records))
	for _, rec := range records {
		if rec.TaskID != taskID {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return nil
	}

	return l.writeLocked(kept)
}

// LoadAll returns every readable record in file order. Lines that fail to
// parse, such as a torn final line after a crash, are skipped with a warning.
func (l *TaskLog) LoadAll(ctx context.Context) ([]task.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.readLocked()
}

func (l *TaskLog) readLocked() ([]task.Record, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task log: %w", err)
	}

	var records []task.Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		rec, err := task.ParseRecord(line)
		if err != nil {
			l.logger.Warn("skipping malformed task log line", "line", lineNo, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan task log: %w", err)
	}

	return records, nil
}

func (l *TaskLog) writeLocked(records []task.Record) error {
	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp task log: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		line, err := rec.MarshalLine()
		if err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to encode record %s: %w", rec.TaskID, err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to write temp task log: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to flush temp task log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp task log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp task log: %w", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("failed to replace task log: %w", err)
	}

	return nil
}
