package api

import (
	"net/http"

	"github.com/ping15/ShortPlayGenerator/internal/api/shared"
)

// QueueStatus reports the generation queue state.
type QueueStatus interface {
	QueueDepth() int
	Current() string
}

// MergeStatus reports the merge pool backlog.
type MergeStatus interface {
	Pending() int
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	queue  QueueStatus
	merges MergeStatus
	mode   string
}

// NewHealthHandler creates a HealthHandler. mode is the execution backend name.
func NewHealthHandler(queue QueueStatus, merges MergeStatus, mode string) *HealthHandler {
	return &HealthHandler{queue: queue, merges: merges, mode: mode}
}

// Health reports queue depths. It never touches the execution host.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithMessage(w, r, http.StatusOK, "ok", HealthResponse{
		Status:        "ok",
		ExecutionMode: h.mode,
		QueueDepth:    h.queue.QueueDepth(),
		CurrentTask:   h.queue.Current(),
		MergePending:  h.merges.Pending(),
	})
}
