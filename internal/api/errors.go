package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ping15/ShortPlayGenerator/internal/api/shared"
	"github.com/ping15/ShortPlayGenerator/internal/merge"
	"github.com/ping15/ShortPlayGenerator/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, task.ErrInvalidTask),
		errors.Is(err, merge.ErrInvalidRequest):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrDuplicateTask):
		return http.StatusConflict

	case errors.Is(err, merge.ErrQueueFull),
		errors.Is(err, merge.ErrPoolClosed),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for err.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, task.ErrInvalidTask):
		return "Invalid task"
	case errors.Is(err, merge.ErrInvalidRequest):
		return "Invalid merge request"
	case errors.Is(err, task.ErrDuplicateTask):
		return "Task is already queued"
	case errors.Is(err, merge.ErrQueueFull):
		return "Merge queue is full, retry later"
	case errors.Is(err, merge.ErrPoolClosed),
		errors.Is(err, task.ErrQueueClosed):
		return "Service is shutting down"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and message for err. fallback
// replaces the generic message for 500s when non-empty.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		msg = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}

// SanitizeValidationError turns a validation failure into a message naming
// the offending field without echoing its value.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", fieldName(fe), getValidationTagMessage(fe.Tag()))
	}

	var ferr *fieldError
	if errors.As(err, &ferr) {
		return fmt.Sprintf("Invalid %s: %s", ferr.field, ferr.msg)
	}

	return "Validation error"
}

// fieldName prefers the JSON name the client sent.
func fieldName(fe validator.FieldError) string {
	if name, ok := jsonFieldNames[fe.Field()]; ok {
		return name
	}
	return fe.Field()
}

var jsonFieldNames = map[string]string{
	"TaskID":     "taskId",
	"Prompt":     "prompt",
	"TaskType":   "task_type",
	"Images":     "images",
	"InputVideo": "input_video",
	"VideoURLs":  "videoUrls",
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "taskid":
		return "must be 1-128 characters of letters, digits, '_', '-' or '.'"
	default:
		return "validation failed"
	}
}

// fieldError is a cross-field failure raised by a request's Validate method.
type fieldError struct {
	field string
	msg   string
}

func (e *fieldError) Error() string {
	return e.field + ": " + e.msg
}
