package bootstrap

import (
	"errors"
	"fmt"
)

// EnvironmentError indicates that the isolated Python environment could not
// be created or is unusable.
type EnvironmentError struct {
	Message string
	Cause   error
}

// Error implements the error interface
func (e *EnvironmentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *EnvironmentError) Unwrap() error {
	return e.Cause
}

// NewEnvironmentError creates an environment provisioning error
func NewEnvironmentError(message string, cause error) *EnvironmentError {
	return &EnvironmentError{Message: message, Cause: cause}
}

// IsEnvironmentError checks if an error is an environment provisioning error
func IsEnvironmentError(err error) bool {
	var envErr *EnvironmentError
	return errors.As(err, &envErr)
}

// DependencyInstallError indicates that the package manager failed while
// synchronizing the environment against the requirements manifest.
type DependencyInstallError struct {
	Message string
	Cause   error
}

// Error implements the error interface
func (e *DependencyInstallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *DependencyInstallError) Unwrap() error {
	return e.Cause
}

// NewDependencyInstallError creates a dependency synchronization error
func NewDependencyInstallError(message string, cause error) *DependencyInstallError {
	return &DependencyInstallError{Message: message, Cause: cause}
}

// IsDependencyInstallError checks if an error is a dependency synchronization error
func IsDependencyInstallError(err error) bool {
	var depErr *DependencyInstallError
	return errors.As(err, &depErr)
}
