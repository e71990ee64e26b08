// Package redisstore implements the durable task log on a Redis list.
package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ping15/ShortPlayGenerator/internal/task"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the list that holds queued generation records.
const DefaultKey = "shortplay:generation_queue"

// TaskLog keeps one JSON record per list element, oldest at the head.
type TaskLog struct {
	client redis.UniversalClient
	key    string
	mu     sync.Mutex
	logger *slog.Logger
}

var _ task.TaskLog = (*TaskLog)(nil)

// NewTaskLog creates a TaskLog on key. An empty key uses DefaultKey.
func NewTaskLog(client redis.UniversalClient, key string, logger *slog.Logger) *TaskLog {
	if key == "" {
		key = DefaultKey
	}
	return &TaskLog{
		client: client,
		key:    key,
		logger: logger.With("component", "redis_task_log", "key", key),
	}
}

// Connect parses url, pings the server and returns the client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// Append pushes rec onto the tail of the list.
func (l *TaskLog) Append(ctx context.Context, rec task.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.client.RPush(ctx, l.key, line).Err(); err != nil {
		return fmt.Errorf("failed to append task record: %w", err)
	}
	return nil
}

// Remove deletes every element whose task_id is taskID.
func (l *TaskLog) Remove(ctx context.Context, taskID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	values, err := l.client.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read task records: %w", err)
	}

	pipe := l.client.TxPipeline()
	matched := 0
	for _, value := range values {
		rec, err := task.ParseRecord([]byte(value))
		if err != nil || rec.TaskID != taskID {
			continue
		}
		pipe.LRem(ctx, l.key, 1, value)
		matched++
	}
	if matched == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove task record: %w", err)
	}
	return nil
}

// LoadAll returns every readable record from head to tail.
func (l *TaskLog) LoadAll(ctx context.Context) ([]task.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	values, err := l.client.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task records: %w", err)
	}

	records := make([]task.Record, 0, len(values))
	for i, value := range values {
		rec, err := task.ParseRecord([]byte(value))
		if err != nil {
			l.logger.Warn("skipping malformed task record", "index", i, "error", err)
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}
