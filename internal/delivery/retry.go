package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUploadExhausted is returned once every upload attempt has failed.
var ErrUploadExhausted = errors.New("upload failed after all attempts")

// Upload retry policy
const (
	DefaultUploadAttempts = 3
	DefaultUploadBackoff  = 5 * time.Second
)

// RetryingUploader retries a wrapped Uploader with linear backoff: the wait
// before attempt n+1 is n times the base backoff.
type RetryingUploader struct {
	next     Uploader
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

var _ Uploader = (*RetryingUploader)(nil)

// RetryOption configures a RetryingUploader.
type RetryOption func(*RetryingUploader)

// WithAttempts sets the total number of attempts.
func WithAttempts(n int) RetryOption {
	return func(u *RetryingUploader) {
		if n > 0 {
			u.attempts = n
		}
	}
}

// WithBackoff sets the base backoff.
func WithBackoff(d time.Duration) RetryOption {
	return func(u *RetryingUploader) { u.backoff = d }
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(u *RetryingUploader) { u.sleep = sleep }
}

// NewRetryingUploader wraps next with the default policy of 3 attempts
// waiting 5s and then 10s.
func NewRetryingUploader(next Uploader, logger *slog.Logger, opts ...RetryOption) *RetryingUploader {
	u := &RetryingUploader{
		next:     next,
		attempts: DefaultUploadAttempts,
		backoff:  DefaultUploadBackoff,
		sleep:    sleepContext,
		logger:   logger.With("component", "retrying_uploader"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload implements Uploader
func (u *RetryingUploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		url, err := u.next.Upload(ctx, localPath, key)
		if err == nil {
			return url, nil
		}
		lastErr = err

		if attempt == u.attempts {
			break
		}

		wait := time.Duration(attempt) * u.backoff
		u.logger.Warn("upload attempt failed, retrying",
			"key", key,
			"attempt", attempt,
			"wait", wait,
			"error", err)
		if err := u.sleep(ctx, wait); err != nil {
			return "", fmt.Errorf("%w: %w", ErrUploadExhausted, err)
		}
	}

	return "", fmt.Errorf("%w: %d attempts: %w", ErrUploadExhausted, u.attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
