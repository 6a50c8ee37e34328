// Package util provides utility functions and types for the QOTD server.
//
// # Error Types
//
// Structured error types for consistent error handling:
//
//   - ConfigError: configuration value errors
//   - ListenError: endpoint creation and bind failures
//   - TimeoutError: bounded operations that ran out of time
//   - Common sentinel errors: ErrInvalidInput, ErrTimeout, etc.
//
// # Validation
//
// Range helpers used when clamping operator supplied values:
//
//	v, ok := util.ClampInt(raw, 1, 1024, 16)
//	err := util.ValidatePort(17)
package util
