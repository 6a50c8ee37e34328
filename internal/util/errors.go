// Package util provides utility functions and types for the QOTD server.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrTimeout.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., ConfigError, ListenError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
package util

import (
	"errors"
	"fmt"
	"time"
)

// Common sentinel errors.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrTimeout       = errors.New("timeout")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrConfigInvalid = errors.New("invalid configuration")
	ErrListen        = errors.New("listen failed")
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// ListenError represents a failure to create or bind a server endpoint.
type ListenError struct {
	Network string
	Address string
	Cause   error
}

// Error implements the error interface.
func (e *ListenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s listen on %s failed: %v", e.Network, e.Address, e.Cause)
	}
	return fmt.Sprintf("%s listen on %s failed", e.Network, e.Address)
}

// Unwrap returns the underlying error.
func (e *ListenError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ListenError) Is(target error) bool {
	if target == ErrListen {
		return true
	}
	_, ok := target.(*ListenError)
	return ok || errors.Is(e.Cause, target)
}

// NewListenError creates a new ListenError.
func NewListenError(network, address string, cause error) *ListenError {
	return &ListenError{Network: network, Address: address, Cause: cause}
}

// TimeoutError represents a timeout error.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
	Cause     error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %v during %s", e.Duration, e.Operation)
}

// Unwrap returns the underlying error.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if target == ErrTimeout {
		return true
	}
	_, ok := target.(*TimeoutError)
	return ok || errors.Is(e.Cause, target)
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{Operation: operation, Duration: duration}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
