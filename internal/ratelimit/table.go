package ratelimit

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// DefaultTableSize is the number of buckets when none is configured.
const DefaultTableSize = 1024

// bucket is one slot of the table. An empty owner marks a slot that has
// never been claimed.
type bucket struct {
	owner      string
	tokens     int
	lastRefill time.Time
}

// Table is a fixed-size token bucket table. Each address maps to exactly
// one slot; the most recent address to miss a slot takes it over.
type Table struct {
	mu      sync.Mutex
	buckets []bucket
	rate    int
	burst   int
	now     func() time.Time
	logger  *zap.Logger
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) TableOption {
	return func(t *Table) {
		t.now = now
	}
}

// WithLogger sets the logger used for slot eviction debug output.
func WithLogger(logger *zap.Logger) TableOption {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTable creates a table of size buckets that refills rate tokens per
// whole second up to burst. Non-positive arguments fall back to 1, except
// size which falls back to DefaultTableSize.
func NewTable(size, rate, burst int, opts ...TableOption) *Table {
	if size <= 0 {
		size = DefaultTableSize
	}
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}

	t := &Table{
		buckets: make([]bucket, size),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Allow reports whether key may make a request now and spends a token if
// so. A key that does not own its slot claims it with a fresh bucket.
func (t *Table) Allow(key string) bool {
	now := t.now()
	idx := t.Slot(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[idx]

	if b.owner != key {
		if b.owner != "" {
			t.logger.Debug("rate limit slot reassigned",
				zap.Int("slot", idx),
				zap.String("previous", b.owner),
				zap.String("owner", key),
			)
		}
		b.owner = key
		b.tokens = t.burst - 1
		b.lastRefill = now
		return true
	}

	// Refill happens in whole-second steps and only once more than a
	// second has passed; the fractional remainder carries over.
	if elapsed := now.Sub(b.lastRefill); elapsed > time.Second {
		secs := int(elapsed / time.Second)
		b.tokens = min(b.tokens+secs*t.rate, t.burst)
		b.lastRefill = b.lastRefill.Add(time.Duration(secs) * time.Second)
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Slot returns the bucket index for key.
func (t *Table) Slot(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(t.buckets)))
}

// Size returns the number of buckets.
func (t *Table) Size() int {
	return len(t.buckets)
}

// Tokens returns the tokens currently held for key, or -1 if key does
// not own its slot. No refill is applied.
func (t *Table) Tokens(key string) int {
	idx := t.Slot(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.buckets[idx].owner != key {
		return -1
	}
	return t.buckets[idx].tokens
}
