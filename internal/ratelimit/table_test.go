package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewTable_Defaults(t *testing.T) {
	t.Parallel()

	table := NewTable(0, 0, 0)

	assert.Equal(t, DefaultTableSize, table.Size())
	assert.Equal(t, 1, table.rate)
	assert.Equal(t, 1, table.burst)
}

func TestTable_InitialSlotsUnowned(t *testing.T) {
	t.Parallel()

	table := NewTable(16, 1, 4)

	assert.Equal(t, -1, table.Tokens("192.0.2.1"))
	for i := range table.buckets {
		assert.Empty(t, table.buckets[i].owner)
		assert.Zero(t, table.buckets[i].tokens)
	}
}

func TestTable_ExhaustsBurst(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	table := NewTable(1024, 1, 3, WithClock(clock.Now))
	key := "192.0.2.1"

	for i := 0; i < 3; i++ {
		assert.True(t, table.Allow(key), "request %d should be allowed", i+1)
	}
	assert.Equal(t, 0, table.Tokens(key))
	assert.False(t, table.Allow(key), "request beyond burst should be denied")
}

func TestTable_RefillRequiresMoreThanOneSecond(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	table := NewTable(64, 2, 2, WithClock(clock.Now))
	key := "198.51.100.7"

	require.True(t, table.Allow(key))
	require.True(t, table.Allow(key))
	require.False(t, table.Allow(key))

	clock.Advance(time.Second)
	assert.False(t, table.Allow(key), "exactly one second does not refill")

	clock.Advance(time.Millisecond)
	assert.True(t, table.Allow(key))
	assert.True(t, table.Allow(key))
	assert.False(t, table.Allow(key))
}

func TestTable_RefillCarriesFraction(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	table := NewTable(64, 1, 1, WithClock(clock.Now))
	key := "203.0.113.9"

	require.True(t, table.Allow(key))
	require.False(t, table.Allow(key))

	// 1.6s refills one token and keeps 0.6s for the next step.
	clock.Advance(1600 * time.Millisecond)
	require.True(t, table.Allow(key))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, table.Allow(key), "carried fraction plus 0.5s exceeds one second")
}

func TestTable_RefillCappedAtBurst(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	table := NewTable(64, 100, 5, WithClock(clock.Now))
	key := "192.0.2.55"

	require.True(t, table.Allow(key))
	clock.Advance(time.Hour)

	allowed := 0
	for i := 0; i < 20; i++ {
		if table.Allow(key) {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestTable_SustainedRate(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	table := NewTable(64, 4, 4, WithClock(clock.Now))
	key := "192.0.2.200"

	for i := 0; i < 4; i++ {
		require.True(t, table.Allow(key))
	}

	// Over ten 1.1s steps the client can spend roughly rate tokens per step.
	allowed := 0
	for step := 0; step < 10; step++ {
		clock.Advance(1100 * time.Millisecond)
		for i := 0; i < 10; i++ {
			if table.Allow(key) {
				allowed++
			}
		}
	}
	assert.GreaterOrEqual(t, allowed, 36)
	assert.LessOrEqual(t, allowed, 44)
}

func TestTable_IndependentKeys(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	table := NewTable(65536, 1, 1, WithClock(clock.Now))

	a, b := "192.0.2.1", "192.0.2.2"
	require.NotEqual(t, table.Slot(a), table.Slot(b))

	require.True(t, table.Allow(a))
	require.False(t, table.Allow(a))
	assert.True(t, table.Allow(b), "another client is unaffected")
}

func collidingKeys(t *testing.T, table *Table) (string, string) {
	t.Helper()

	first := "10.0.0.1"
	for i := 2; i < 10000; i++ {
		candidate := fmt.Sprintf("10.0.%d.%d", i/256, i%256)
		if table.Slot(candidate) == table.Slot(first) {
			return first, candidate
		}
	}
	t.Fatal("no colliding key found")
	return "", ""
}

func TestTable_AliasingEvictsPreviousOwner(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	clock := newFakeClock()
	table := NewTable(8, 1, 2, WithClock(clock.Now), WithLogger(zap.New(core)))
	a, b := collidingKeys(t, table)

	require.True(t, table.Allow(a))
	require.True(t, table.Allow(a))
	require.False(t, table.Allow(a))

	assert.True(t, table.Allow(b), "new owner starts with a fresh bucket")
	assert.Equal(t, -1, table.Tokens(a))
	assert.Equal(t, 1, table.Tokens(b))

	assert.True(t, table.Allow(a), "evicted owner reclaims with a fresh bucket")
	assert.Equal(t, 2, logs.FilterMessage("rate limit slot reassigned").Len())
}

func TestTable_Slot(t *testing.T) {
	t.Parallel()

	table := NewTable(7, 1, 1)

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("192.0.2.%d", i)
		slot := table.Slot(key)
		assert.GreaterOrEqual(t, slot, 0)
		assert.Less(t, slot, 7)
		assert.Equal(t, slot, table.Slot(key), "slot is stable")
	}
}

func TestTable_ConcurrentAllow(t *testing.T) {
	t.Parallel()

	table := NewTable(128, 1, 50)
	key := "192.0.2.77"

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if table.Allow(key) {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// The wall clock may tick over one refill while the test runs.
	assert.GreaterOrEqual(t, allowed, 50)
	assert.LessOrEqual(t, allowed, 52)
}

func TestNoopLimiter(t *testing.T) {
	t.Parallel()

	limiter := NewNoopLimiter()
	for i := 0; i < 1000; i++ {
		assert.True(t, limiter.Allow("192.0.2.1"))
	}
}
