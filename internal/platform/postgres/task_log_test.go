package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ping15/ShortPlayGenerator/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDBTX records Exec calls and returns a configurable error.
type mockDBTX struct {
	queries [][]any
	execErr error
}

func (m *mockDBTX) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	m.queries = append(m.queries, append([]any{query}, args...))
	if m.execErr != nil {
		return nil, m.execErr
	}
	return driver.RowsAffected(1), nil
}

func (m *mockDBTX) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported by mock")
}

func (m *mockDBTX) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord(t *testing.T, id string) task.Record {
	t.Helper()
	rec, err := task.NewRecord(task.Task{
		ID:         id,
		Kind:       task.KindSingleShotExtension,
		Prompt:     "extend",
		Duration:   10,
		InputVideo: "https://cdn.example.com/in.mp4",
	})
	require.NoError(t, err)
	return rec
}

func TestTaskLog_AppendAndRemoveStatements(t *testing.T) {
	t.Parallel()

	db := &mockDBTX{}
	log := NewTaskLog(db, discardLogger())

	require.NoError(t, log.Append(context.Background(), testRecord(t, "pg-1")))
	require.NoError(t, log.Remove(context.Background(), "pg-1"))

	require.Len(t, db.queries, 2)

	insert := db.queries[0]
	assert.Contains(t, insert[0], "INSERT INTO generation_queue")
	assert.Contains(t, insert[0], "ON CONFLICT (task_id) DO NOTHING")
	assert.Equal(t, "pg-1", insert[1])
	assert.JSONEq(t,
		`{"task_id":"pg-1","kwargs":{"task_type":"single_shot_extension","prompt":"extend","duration":10,"input_video":"https://cdn.example.com/in.mp4","offload":false}}`,
		insert[2].(string))

	remove := db.queries[1]
	assert.Contains(t, remove[0], "DELETE FROM generation_queue")
	assert.Equal(t, "pg-1", remove[1])
}

func TestTaskLog_ErrorsAreMapped(t *testing.T) {
	t.Parallel()

	db := &mockDBTX{execErr: &pgconn.PgError{Code: "08006", Message: "connection failure"}}
	log := NewTaskLog(db, discardLogger())

	err := log.Append(context.Background(), testRecord(t, "pg-2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "failed to append task record")

	err = log.Remove(context.Background(), "pg-2")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"nil", nil, nil},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "generation_queue_task_id_key"}, ErrConstraint},
		{"connection exception", &pgconn.PgError{Code: "08001"}, ErrUnavailable},
		{"deadline", context.DeadlineExceeded, ErrUnavailable},
		{"other", errors.New("boom"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapError(tt.err)
			if tt.err == nil {
				assert.NoError(t, mapped)
				return
			}
			assert.ErrorIs(t, mapped, tt.err)
			if tt.target != nil {
				assert.ErrorIs(t, mapped, tt.target)
			} else {
				assert.NotErrorIs(t, mapped, ErrConstraint)
				assert.NotErrorIs(t, mapped, ErrUnavailable)
			}
		})
	}
}
