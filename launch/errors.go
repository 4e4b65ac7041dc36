package launch

import (
	"errors"
	"fmt"
)

// LaunchError indicates that the server process could not be started or
// exited with a non-zero status. ExitCode carries the child's exit code when
// one is available, -1 otherwise.
type LaunchError struct {
	Message  string
	ExitCode int
	Cause    error
}

// Error implements the error interface
func (e *LaunchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *LaunchError) Unwrap() error {
	return e.Cause
}

// NewLaunchError creates a server launch error
func NewLaunchError(message string, exitCode int, cause error) *LaunchError {
	return &LaunchError{Message: message, ExitCode: exitCode, Cause: cause}
}

// IsLaunchError checks if an error is a server launch error
func IsLaunchError(err error) bool {
	var launchErr *LaunchError
	return errors.As(err, &launchErr)
}

// ExitCodeFromError extracts the exit code the launcher process should
// terminate with. Launch failures propagate the child's exit code; every
// other failure maps to 1.
func ExitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var launchErr *LaunchError
	if errors.As(err, &launchErr) && launchErr.ExitCode > 0 {
		return launchErr.ExitCode
	}
	return 1
}
