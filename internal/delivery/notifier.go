package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ping15/ShortPlayGenerator/internal/events"
)

// DefaultNotifyTimeout bounds a single callback.
const DefaultNotifyTimeout = 30 * time.Second

// Notification is the callback body.
type Notification struct {
	TaskID   string `json:"taskId"`
	VideoURL string `json:"videoUrl"`
	Status   string `json:"status"`
}

// Notifier POSTs task outcomes to a callback URL. It is best effort: a
// failed callback is logged and never retried.
type Notifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

var _ events.EventHandler = (*Notifier)(nil)

// NewNotifier creates a Notifier. An empty url disables callbacks. A nil
// client gets one with DefaultNotifyTimeout.
func NewNotifier(url string, client *http.Client, logger *slog.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: DefaultNotifyTimeout}
	}
	return &Notifier{
		url:    strings.TrimSpace(url),
		client: client,
		logger: logger.With("component", "notifier"),
	}
}

// Enabled reports whether a callback URL is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// Notify sends one callback and reports whether it was answered with 200.
func (n *Notifier) Notify(ctx context.Context, taskID, videoURL string, status events.Status) bool {
	if !n.Enabled() {
		return false
	}

	logger := n.logger.With("task_id", taskID, "status", status, "video_url", videoURL)

	body, err := json.Marshal(Notification{TaskID: taskID, VideoURL: videoURL, Status: string(status)})
	if err != nil {
		logger.Error("failed to encode notification", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		logger.Error("failed to build notification request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		logger.Error("notification failed", "error", err)
		return false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("notification answered with non-200 status", "status_code", resp.StatusCode)
		return false
	}

	logger.Info("notification delivered")
	return true
}

// HandleEvent implements events.EventHandler. Failures are logged inside
// Notify and never returned.
func (n *Notifier) HandleEvent(ctx context.Context, event *events.OutcomeEvent) error {
	n.Notify(ctx, event.TaskID, event.VideoURL, event.Status)
	return nil
}

// NotifyLog appends a sentinel line to the shared notify log when a merge
// finishes. Generation runs write their own line from the remote shell.
type NotifyLog struct {
	path string
}

var _ events.EventHandler = (*NotifyLog)(nil)

// NewNotifyLog creates a NotifyLog writing to path.
func NewNotifyLog(path string) *NotifyLog {
	return &NotifyLog{path: path}
}

// HandleEvent implements events.EventHandler
func (l *NotifyLog) HandleEvent(_ context.Context, event *events.OutcomeEvent) error {
	if l.path == "" || event.Pipeline != events.PipelineMerge || event.Status != events.StatusSuccess {
		return nil
	}
	return AppendLine(l.path, fmt.Sprintf("[NOTIFY] video_merge_done taskId=%s", event.TaskID))
}
