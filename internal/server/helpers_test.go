package server

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/qotd/internal/config"
	"github.com/vyrodovalexey/qotd/internal/ratelimit"
)

// stubSource returns a fixed text. When block is set, Next waits for it
// or for ctx to end.
type stubSource struct {
	text   string
	mode   config.Mode
	block  chan struct{}
	calls  atomic.Int32
	closed atomic.Bool
}

func (s *stubSource) Next(ctx context.Context) string {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ""
		}
	}
	return s.text
}

func (s *stubSource) Mode() config.Mode {
	if s.mode == "" {
		return config.ModeFixed
	}
	return s.mode
}

func (s *stubSource) Close() error {
	s.closed.Store(true)
	return nil
}

func testConfig(mutate func(*config.Config)) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

// startServer starts and runs a server and stops it when the test ends.
func startServer(t *testing.T, cfg *config.Config, src *stubSource, limiter ratelimit.Limiter, opts ...Option) *Server {
	t.Helper()

	srv, err := New(cfg, src, limiter, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return srv.State() == StateServing
	}, time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		select {
		case <-runErr:
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after Stop")
		}
	})

	return srv
}

func readTCP(t *testing.T, addr net.Addr) string {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(data)
}

// askUDP sends payload and returns the reply, or ok=false on timeout.
func askUDP(t *testing.T, addr net.Addr, payload []byte, wait time.Duration) (reply string, ok bool) {
	t.Helper()

	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(payload)
	require.NoError(t, err)

	buf := make([]byte, 4096)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	n, err := conn.Read(buf)
	if err != nil {
		return "", false
	}
	return string(buf[:n]), true
}

// counterValue sums a counter family with the given label value.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}
