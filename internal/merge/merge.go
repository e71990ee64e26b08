// Package merge downloads video segments, repairs their containers and
// concatenates them into a single file. Merge jobs run on a bounded pool,
// independent of the generation queue.
package merge

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the merge pipeline
var (
	ErrInvalidRequest = errors.New("invalid merge request")
	ErrDownload       = errors.New("source download failed")
)

// Request is one merge job. Sources are already-resolved locators
// (file:// or http(s)://) and are joined in order.
type Request struct {
	ID      string
	Sources []string
}

// Validate checks that the request names an id and at least one source.
func (r Request) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidRequest)
	}
	if strings.ContainsAny(r.ID, `/\`) || strings.Contains(r.ID, "..") {
		return fmt.Errorf("%w: task id %q is not a valid file name", ErrInvalidRequest, r.ID)
	}
	if len(r.Sources) == 0 {
		return fmt.Errorf("%w: at least one source is required", ErrInvalidRequest)
	}
	for i, s := range r.Sources {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: source %d is empty", ErrInvalidRequest, i)
		}
	}
	return nil
}
