package container

import (
	"errors"
	"fmt"
)

var (
	// ErrDestroyed is returned when operating on a cleaned up container.
	ErrDestroyed = errors.New("container destroyed")

	// ErrUnknownOperation is returned by ExecuteOperation for ids that were never registered.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrInvalidConfig marks configuration problems.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrFatal marks refresh failures that should move the container to failed.
	ErrFatal = errors.New("fatal container condition")

	// ErrNotInitialized is returned when a driver-backed call happens before Initialize.
	ErrNotInitialized = errors.New("container not initialized")
)

// DriverError reports a failed content-driver call.
type DriverError struct {
	Op      string
	Locator string
	Err     error
}

func (e *DriverError) Error() string {
	if e.Locator == "" {
		return fmt.Sprintf("driver %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("driver %s %q: %v", e.Op, e.Locator, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// NewDriverError wraps err as a DriverError. Returns nil for a nil err.
func NewDriverError(op, locator string, err error) error {
	if err == nil {
		return nil
	}
	var de *DriverError
	if errors.As(err, &de) {
		return err
	}
	return &DriverError{Op: op, Locator: locator, Err: err}
}

// ConfigurationError reports invalid configuration or an unknown operation id.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match both ErrInvalidConfig and the cause.
func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfig, e.Err}
	}
	return []error{ErrInvalidConfig}
}

func configErrorf(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// LifecycleViolation reports an operation attempted in a state that does not allow it.
type LifecycleViolation struct {
	ContainerID string
	State       LifecycleState
	Op          string
}

func (e *LifecycleViolation) Error() string {
	return fmt.Sprintf("container %s: %s not allowed in state %s", e.ContainerID, e.Op, e.State)
}

func (e *LifecycleViolation) Unwrap() error {
	if e.State == StateDestroyed {
		return ErrDestroyed
	}
	return nil
}

// Fatal marks err as fatal. A refresher returning a fatal error moves its
// container to the failed state.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
