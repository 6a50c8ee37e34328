package server

import (
	"net"
	"sync"

	"github.com/vyrodovalexey/qotd/internal/observability"
)

// connTracker holds TCP connections handed to workers so that shutdown
// can abandon them.
type connTracker struct {
	mu     sync.Mutex
	conns  map[string]net.Conn
	logger observability.Logger
}

func newConnTracker(logger observability.Logger) *connTracker {
	return &connTracker{
		conns:  make(map[string]net.Conn),
		logger: logger,
	}
}

// Add registers conn under id.
func (t *connTracker) Add(id string, conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[id] = conn
}

// Remove forgets id.
func (t *connTracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

// Count returns the number of tracked connections.
func (t *connTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// CloseAll closes and forgets every tracked connection.
func (t *connTracker) CloseAll() {
	t.mu.Lock()
	conns := t.conns
	t.conns = make(map[string]net.Conn)
	t.mu.Unlock()

	for id, conn := range conns {
		if err := conn.Close(); err != nil {
			t.logger.Debug("error closing connection",
				observability.String("request_id", id),
				observability.Error(err),
			)
		}
	}
}
