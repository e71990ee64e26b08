package generation

import (
	"fmt"

	"github.com/ping15/ShortPlayGenerator/internal/execution"
)

// NonZeroExitError is returned when the generation program exits with a
// code other than 0, including timeouts.
type NonZeroExitError struct {
	Result execution.Result
}

// Error implements error
func (e *NonZeroExitError) Error() string {
	return fmt.Sprintf("generation program failed: %s", e.Result.Reason())
}

// ErrNonZeroExit matches any *NonZeroExitError with errors.Is.
var ErrNonZeroExit = &NonZeroExitError{}

// Is makes every NonZeroExitError match ErrNonZeroExit.
func (e *NonZeroExitError) Is(target error) bool {
	_, ok := target.(*NonZeroExitError)
	return ok
}
