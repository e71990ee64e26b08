package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ping15/ShortPlayGenerator/internal/task"
)

// TaskLog implements task.TaskLog on the generation_queue table. Rows are
// ordered by a serial column so LoadAll preserves submission order.
type TaskLog struct {
	db     DBTX
	mu     sync.Mutex
	logger *slog.Logger
}

var _ task.TaskLog = (*TaskLog)(nil)

// NewTaskLog creates a TaskLog using db.
func NewTaskLog(db DBTX, logger *slog.Logger) *TaskLog {
	return &TaskLog{
		db:     db,
		logger: logger.With("component", "postgres_task_log"),
	}
}

// Append inserts rec. Re-appending an id that is already present keeps the
// original row and its position.
func (l *TaskLog) Append(ctx context.Context, rec task.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	query := `
		INSERT INTO generation_queue (task_id, record)
		VALUES ($1, $2)
		ON CONFLICT (task_id) DO NOTHING
	`

	line, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, query, rec.TaskID, string(line)); err != nil {
		l.logger.Error("failed to append task record", "task_id", rec.TaskID, "error", err)
		return fmt.Errorf("failed to append task record: %w", MapError(err))
	}

	return nil
}

// Remove deletes the row for taskID.
func (l *TaskLog) Remove(ctx context.Context, taskID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	query := `DELETE FROM generation_queue WHERE task_id = $1`

	if _, err := l.db.ExecContext(ctx, query, taskID); err != nil {
		l.logger.Error("failed to remove task record", "task_id", taskID, "error", err)
		return fmt.Errorf("failed to remove task record: %w", MapError(err))
	}

	return nil
}

// LoadAll returns every row ordered by insertion.
func (l *TaskLog) LoadAll(ctx context.Context) ([]task.Record, error) {
	query := `SELECT task_id, record FROM generation_queue ORDER BY seq`

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query task records: %w", MapError(err))
	}
	defer func() {
		if err := rows.Close(); err != nil {
			l.logger.Error("failed to close rows", "error", err)
		}
	}()

	var records []task.Record
	for rows.Next() {
		var (
			taskID string
			raw    []byte
		)
		if err := rows.Scan(&taskID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan task record: %w", err)
		}

		rec, err := task.ParseRecord(raw)
		if err != nil {
			l.logger.Warn("skipping malformed task record", "task_id", taskID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task records: %w", err)
	}

	return records, nil
}
