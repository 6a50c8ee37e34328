// Package ratelimit provides the per-client admission control used by
// the QOTD server.
//
// The limiter is a fixed-capacity table of token buckets indexed by a
// hash of the client address. Memory use is bounded by the table size
// regardless of how many clients are seen. Two clients that hash to the
// same slot evict each other, so aliasing can only make the limiter more
// lenient, never stricter.
package ratelimit

// Limiter decides whether a request keyed by a client address may proceed.
type Limiter interface {
	Allow(key string) bool
}

// NoopLimiter admits every request.
type NoopLimiter struct{}

// NewNoopLimiter creates a limiter that never denies.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow always returns true.
func (NoopLimiter) Allow(string) bool {
	return true
}

var (
	_ Limiter = (*Table)(nil)
	_ Limiter = (*NoopLimiter)(nil)
)
