package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/qotd/internal/config"
	"github.com/vyrodovalexey/qotd/internal/observability"
	"github.com/vyrodovalexey/qotd/internal/quote"
	"github.com/vyrodovalexey/qotd/internal/ratelimit"
	"github.com/vyrodovalexey/qotd/internal/util"
)

// DefaultWriteTimeout bounds a single reply write.
const DefaultWriteTimeout = 5 * time.Second

const (
	// queuePerWorker sizes the command job queue relative to the pool.
	queuePerWorker   = 16
	maxAcceptBackoff = time.Second
)

// ErrInvalidState is returned when a lifecycle method is called out of
// order.
var ErrInvalidState = errors.New("invalid server state")

// Server is the QOTD listener multiplexer. It is the single owner of the
// endpoints, the quote source and the rate limiter for its lifetime.
type Server struct {
	cfg          *config.Config
	source       quote.Source
	limiter      ratelimit.Limiter
	keyFunc      ratelimit.KeyFunc
	logger       observability.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	writeTimeout time.Duration

	mu      sync.Mutex
	state   State
	tcp     net.Listener
	udp     net.PacketConn
	ctx     context.Context
	cancel  context.CancelFunc
	readers sync.WaitGroup
	loopWG  sync.WaitGroup
	workers *workerPool
	pending *connTracker

	conns     chan net.Conn
	datagrams chan net.Addr

	stopOnce sync.Once
	stopped  chan struct{}
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for per-request spans.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = t
	}
}

// WithKeyFunc replaces how a peer address becomes a rate limit key.
func WithKeyFunc(fn ratelimit.KeyFunc) Option {
	return func(s *Server) {
		if fn != nil {
			s.keyFunc = fn
		}
	}
}

// WithWriteTimeout bounds each reply write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// New creates a configured server. A nil limiter admits every request.
func New(cfg *config.Config, source quote.Source, limiter ratelimit.Limiter, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, util.NewConfigError("server", "configuration is required")
	}
	if source == nil {
		return nil, util.NewConfigError("server", "quote source is required")
	}
	if limiter == nil {
		limiter = ratelimit.NewNoopLimiter()
	}

	s := &Server{
		cfg:          cfg,
		source:       source,
		limiter:      limiter,
		keyFunc:      ratelimit.IPKey,
		logger:       observability.NopLogger(),
		writeTimeout: DefaultWriteTimeout,
		state:        StateInit,
		conns:        make(chan net.Conn),
		datagrams:    make(chan net.Addr),
		stopped:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.pending = newConnTracker(s.logger)
	s.workers = newWorkerPool(cfg.Command.Workers, cfg.Command.Workers*queuePerWorker)
	s.state = StateConfigured

	return s, nil
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TCPAddr returns the bound TCP address, or nil when TCP is disabled or
// the server is not listening.
func (s *Server) TCPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcp == nil {
		return nil
	}
	return s.tcp.Addr()
}

// UDPAddr returns the bound UDP address, or nil when UDP is disabled or
// the server is not listening.
func (s *Server) UDPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.udp == nil {
		return nil
	}
	return s.udp.LocalAddr()
}

// Start binds every enabled endpoint. If any bind fails, endpoints opened
// so far are closed and the server stays CONFIGURED.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfigured {
		return fmt.Errorf("%w: start called in state %s", ErrInvalidState, s.state)
	}

	tcpLn, udpConn, err := s.openEndpoints(ctx)
	if err != nil {
		return err
	}

	s.tcp = tcpLn
	s.udp = udpConn
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.state = StateListening

	s.logger.Info("QOTD server listening",
		observability.String("mode", string(s.source.Mode())),
		observability.String("network", s.cfg.Network.String()),
		observability.String("tcp", addrString(tcpLn)),
		observability.String("udp", packetAddrString(udpConn)),
	)
	if s.cfg.Network.None() {
		s.logger.Warn("no endpoint enabled, server will idle until stopped")
	}

	return nil
}

// openEndpoints binds TCP first, then UDP. With port 0 UDP reuses the
// port the kernel picked for TCP so both endpoints share one port.
func (s *Server) openEndpoints(ctx context.Context) (net.Listener, net.PacketConn, error) {
	lc := &net.ListenConfig{}
	addr := s.cfg.ListenAddress()

	var tcpLn net.Listener
	if s.cfg.Network.TCP {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, nil, util.NewListenError("tcp", addr, err)
		}
		tcpLn = ln

		if s.cfg.Port == 0 {
			if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
				addr = net.JoinHostPort(s.cfg.Address, strconv.Itoa(tcpAddr.Port))
			}
		}
	}

	var udpConn net.PacketConn
	if s.cfg.Network.UDP {
		pc, err := lc.ListenPacket(ctx, "udp", addr)
		if err != nil {
			if tcpLn != nil {
				_ = tcpLn.Close()
			}
			return nil, nil, util.NewListenError("udp", addr, err)
		}
		udpConn = pc
	}

	return tcpLn, udpConn, nil
}

// Run serves requests until ctx is done or Stop is called. It returns nil
// after Stop and ctx.Err() when ctx ends first; the caller still owns
// calling Stop in that case.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateListening {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: run called in state %s", ErrInvalidState, state)
	}
	s.state = StateServing
	serverCtx := s.ctx
	s.loopWG.Add(1)
	s.startReaders(serverCtx)
	if s.source.Mode() == config.ModeCommand {
		s.workers.Start(serverCtx)
	}
	s.mu.Unlock()

	defer s.loopWG.Done()

	s.logger.Info("QOTD server serving")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-serverCtx.Done():
			return nil

		case conn := <-s.conns:
			s.handleConn(serverCtx, conn)
			s.pollDatagram(serverCtx)

		case peer := <-s.datagrams:
			s.handleDatagram(serverCtx, peer)
			s.pollConn(serverCtx)
		}
	}
}

// pollConn services a pending connection without blocking.
func (s *Server) pollConn(ctx context.Context) {
	select {
	case conn := <-s.conns:
		s.handleConn(ctx, conn)
	default:
	}
}

// pollDatagram services a pending datagram without blocking.
func (s *Server) pollDatagram(ctx context.Context) {
	select {
	case peer := <-s.datagrams:
		s.handleDatagram(ctx, peer)
	default:
	}
}

// startReaders launches one goroutine per enabled endpoint. Called with
// s.mu held.
func (s *Server) startReaders(ctx context.Context) {
	if s.tcp != nil {
		s.readers.Add(1)
		go func(ln net.Listener) {
			defer s.readers.Done()
			s.acceptLoop(ctx, ln)
		}(s.tcp)
	}
	if s.udp != nil {
		s.readers.Add(1)
		go func(pc net.PacketConn) {
			defer s.readers.Done()
			s.receiveLoop(ctx, pc)
		}(s.udp)
	}
}

// Stop closes all endpoints, abandons in-flight requests, waits for every
// goroutine and releases the quote source. It is safe to call more than
// once and from any state. The returned error is ctx.Err() if ctx ends
// before the goroutines have exited.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	first := false

	s.stopOnce.Do(func() {
		first = true
		err = s.shutdown(ctx)
		close(s.stopped)
	})

	if !first {
		select {
		case <-s.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *Server) shutdown(ctx context.Context) error {
	s.mu.Lock()
	prev := s.state
	s.state = StateShuttingDown
	cancel := s.cancel
	tcpLn, udpConn := s.tcp, s.udp
	s.mu.Unlock()

	s.logger.Info("shutting down QOTD server", observability.String("from", prev.String()))

	if cancel != nil {
		cancel()
	}
	if tcpLn != nil {
		if err := tcpLn.Close(); err != nil {
			s.logger.Debug("error closing tcp listener", observability.Error(err))
		}
	}
	if udpConn != nil {
		if err := udpConn.Close(); err != nil {
			s.logger.Debug("error closing udp socket", observability.Error(err))
		}
	}
	s.pending.CloseAll()

	done := make(chan struct{})
	go func() {
		s.loopWG.Wait()
		s.readers.Wait()
		s.workers.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = ctx.Err()
		s.logger.Warn("shutdown deadline reached before all goroutines exited")
	}

	// Connections queued after CloseAll are released here.
	s.pending.CloseAll()

	if err := s.source.Close(); err != nil {
		s.logger.Warn("failed to close quote source", observability.Error(err))
	}

	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()

	s.logger.Info("QOTD server stopped")
	return waitErr
}

// reply builds the wire text for one request.
func (s *Server) reply(ctx context.Context) []byte {
	text := quote.Format(s.source.Next(ctx), s.cfg.Prefix, s.cfg.Suffix)
	return []byte(quote.Truncate(text, s.cfg.MaxMessageSize))
}

// offload reports whether replies are generated on the worker pool.
func (s *Server) offload() bool {
	return s.source.Mode() == config.ModeCommand
}

func (s *Server) startSpan(ctx context.Context, transport, peer string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.StartRequestSpan(ctx, transport, peer)
}

func (s *Server) recordReply(transport string, n int) {
	if s.metrics != nil {
		s.metrics.RecordReply(transport, n)
	}
}

func (s *Server) recordRateLimited(transport string) {
	if s.metrics != nil {
		s.metrics.RecordRateLimited(transport)
	}
}

func (s *Server) recordReceiveError(transport string) {
	if s.metrics != nil {
		s.metrics.RecordReceiveError(transport)
	}
}

func (s *Server) recordOverload() {
	if s.metrics != nil {
		s.metrics.RecordQuoteError(string(config.ModeCommand), "overloaded")
	}
}

// nextBackoff doubles d between 5ms and maxAcceptBackoff.
func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxAcceptBackoff {
		d = maxAcceptBackoff
	}
	return d
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func addrString(ln net.Listener) string {
	if ln == nil {
		return "disabled"
	}
	return ln.Addr().String()
}

func packetAddrString(pc net.PacketConn) string {
	if pc == nil {
		return "disabled"
	}
	return pc.LocalAddr().String()
}
