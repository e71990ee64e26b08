package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ping15/ShortPlayGenerator/internal/api/shared"
	"github.com/ping15/ShortPlayGenerator/internal/asset"
	"github.com/ping15/ShortPlayGenerator/internal/merge"
	"github.com/ping15/ShortPlayGenerator/internal/platform/logger"
	"github.com/ping15/ShortPlayGenerator/internal/task"
)

// SubmittedMessage is the msg of every accepted submission.
const SubmittedMessage = "submitted"

// GenerationQueue accepts generation tasks.
type GenerationQueue interface {
	Submit(ctx context.Context, t task.Task) error
}

// MergeQueue accepts merge jobs.
type MergeQueue interface {
	Submit(req merge.Request) error
}

// VideoHandler serves the generation and merge submission endpoints.
type VideoHandler struct {
	generation GenerationQueue
	merges     MergeQueue
	resolver   *asset.Resolver
	logger     *slog.Logger
}

// NewVideoHandler creates a VideoHandler.
func NewVideoHandler(generation GenerationQueue, merges MergeQueue, resolver *asset.Resolver, logger *slog.Logger) *VideoHandler {
	return &VideoHandler{
		generation: generation,
		merges:     merges,
		resolver:   resolver,
		logger:     logger.With("component", "video_handler"),
	}
}

// Create handles POST /ai/video/create. It returns as soon as the task is
// durably queued.
func (h *VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateVideoRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	t := task.Task{
		ID:       req.TaskID,
		Kind:     task.Kind(req.TaskType),
		Prompt:   req.Prompt,
		Duration: req.DurationSeconds(),
		ModelID:  strings.TrimSpace(req.ModelID),
		Offload:  req.OffloadEnabled(),
	}
	switch t.Kind {
	case task.KindReferenceToVideo:
		t.Images = h.resolver.ResolveAll(req.Images, asset.ScopeGeneration)
	case task.KindSingleShotExtension:
		t.InputVideo = h.resolver.Resolve(req.InputVideo, asset.ScopeGeneration)
	}

	if err := h.generation.Submit(r.Context(), t); err != nil {
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}

	log.Info("generation task accepted", "task_id", t.ID, "kind", t.Kind)
	shared.RespondWithMessage(w, r, http.StatusOK, SubmittedMessage, SubmitResponse{TaskID: t.ID})
}

// Merge handles POST /ai/video/merge. The job runs on the merge pool,
// independently of the generation queue.
func (h *VideoHandler) Merge(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req MergeVideoRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	job := merge.Request{
		ID:      req.TaskID,
		Sources: h.resolver.ResolveAll(req.VideoURLs, asset.ScopeMerge),
	}
	if err := h.merges.Submit(job); err != nil {
		HandleAPIError(w, r, err, "Failed to submit merge")
		return
	}

	log.Info("merge job accepted", "task_id", job.ID, "sources", len(job.Sources))
	shared.RespondWithMessage(w, r, http.StatusOK, SubmittedMessage, SubmitResponse{TaskID: job.ID})
}
