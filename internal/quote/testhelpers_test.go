package quote

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingMetrics captures quote source metric calls.
type recordingMetrics struct {
	mu       sync.Mutex
	errors   map[string]int
	commands int
	inFlight int
	breaker  []int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{errors: make(map[string]int)}
}

func (m *recordingMetrics) RecordQuoteError(mode, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[mode+"/"+reason]++
}

func (m *recordingMetrics) ObserveCommand(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands++
}

func (m *recordingMetrics) IncrementInFlightCommands() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight++
}

func (m *recordingMetrics) DecrementInFlightCommands() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
}

func (m *recordingMetrics) SetCircuitBreakerState(state int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breaker = append(m.breaker, state)
}

func (m *recordingMetrics) errorCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[key]
}

func writeQuotes(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "quotes.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
