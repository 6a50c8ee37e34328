package util

import (
	"fmt"
	"time"
)

// ValidatePort validates a port number. Port 0 asks the kernel for an ephemeral port.
func ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got: %d", port)
	}
	return nil
}

// ValidateDuration validates that a duration is positive.
func ValidateDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got: %v", d)
	}
	return nil
}

// ClampInt returns v when it lies within [lo, hi]; otherwise def is returned
// and ok is false so the caller can report the substitution.
func ClampInt(v, lo, hi, def int) (result int, ok bool) {
	if v < lo || v > hi {
		return def, false
	}
	return v, true
}
