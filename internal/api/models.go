package api

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ping15/ShortPlayGenerator/internal/task"
)

// DefaultDuration is used when duration is missing or unparseable.
const DefaultDuration = 5

var durationPattern = regexp.MustCompile(`(?i)^(\d+)s?$`)

// Duration accepts 5, "5" and "5s". Anything else decodes to DefaultDuration.
type Duration int

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = Duration(parseDuration(raw))
	return nil
}

func parseDuration(raw any) int {
	switch v := raw.(type) {
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt32 && v <= math.MaxInt32 {
			return int(v)
		}
	case string:
		m := durationPattern.FindStringSubmatch(strings.TrimSpace(v))
		if m == nil {
			return DefaultDuration
		}
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n
		}
	}
	return DefaultDuration
}

// CreateVideoRequest is the body of POST /ai/video/create.
type CreateVideoRequest struct {
	TaskID     string    `json:"taskId"      validate:"required,taskid"`
	Prompt     string    `json:"prompt"      validate:"required"`
	TaskType   string    `json:"task_type"   validate:"required,oneof=reference_to_video single_shot_extension"`
	Duration   *Duration `json:"duration"`
	Images     []string  `json:"images"      validate:"omitempty,dive,required"`
	InputVideo string    `json:"input_video"`
	ModelID    string    `json:"model_id"`
	Offload    *bool     `json:"offload"`
}

// Validate checks the requirements that depend on task_type.
func (r *CreateVideoRequest) Validate() error {
	switch task.Kind(r.TaskType) {
	case task.KindReferenceToVideo:
		if len(r.Images) == 0 {
			return &fieldError{field: "images", msg: "reference_to_video requires images"}
		}
	case task.KindSingleShotExtension:
		if strings.TrimSpace(r.InputVideo) == "" {
			return &fieldError{field: "input_video", msg: "single_shot_extension requires input_video"}
		}
	}
	return nil
}

// DurationSeconds returns the requested duration or DefaultDuration.
func (r *CreateVideoRequest) DurationSeconds() int {
	if r.Duration == nil {
		return DefaultDuration
	}
	return int(*r.Duration)
}

// OffloadEnabled returns the requested offload flag. The 14B model does not
// fit the GPU without offloading, so it is on unless explicitly disabled.
func (r *CreateVideoRequest) OffloadEnabled() bool {
	return r.Offload == nil || *r.Offload
}

// MergeVideoRequest is the body of POST /ai/video/merge.
type MergeVideoRequest struct {
	TaskID    string   `json:"taskId"    validate:"required,taskid"`
	VideoURLs []string `json:"videoUrls" validate:"required,min=1,dive,required"`
}

// SubmitResponse is the data of a successful submission.
type SubmitResponse struct {
	TaskID string `json:"taskId"`
}

// HealthResponse is the data of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	ExecutionMode string `json:"execution_mode"`
	QueueDepth    int    `json:"queue_depth"`
	CurrentTask   string `json:"current_task,omitempty"`
	MergePending  int    `json:"merge_pending"`
}
