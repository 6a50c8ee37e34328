package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/qotd/internal/observability"
)

// receiveLoop reads datagrams and hands their sender to the serve loop.
// The payload is read into a scratch buffer and ignored.
func (s *Server) receiveLoop(ctx context.Context, pc net.PacketConn) {
	buf := make([]byte, s.cfg.MaxMessageSize)
	var backoff time.Duration

	for {
		_, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if isTransient(err) {
				continue
			}

			s.recordReceiveError(observability.TransportUDP)
			backoff = nextBackoff(backoff)
			s.logger.Error("receive error",
				observability.Error(err),
				observability.Duration("retry_in", backoff),
			)
			if !sleepCtx(ctx, backoff) {
				return
			}
			continue
		}
		backoff = 0

		select {
		case s.datagrams <- addr:
		case <-ctx.Done():
			return
		}
	}
}

// handleDatagram runs on the serve loop for every received datagram.
func (s *Server) handleDatagram(ctx context.Context, addr net.Addr) {
	peer := s.keyFunc(addr)
	ctx = observability.ContextWithRequestID(ctx, uuid.New().String())

	if s.cfg.RateLimit.UDP && !s.limiter.Allow(peer) {
		s.recordRateLimited(observability.TransportUDP)
		s.logger.WithContext(ctx).Debug("rate limited",
			observability.String("transport", observability.TransportUDP),
			observability.String("peer", peer),
		)
		return
	}

	if !s.offload() {
		s.serveDatagram(ctx, addr, peer)
		return
	}

	requestID := observability.RequestIDFromContext(ctx)
	submitted := s.workers.Submit(job{
		run: func(workerCtx context.Context) {
			s.serveDatagram(observability.ContextWithRequestID(workerCtx, requestID), addr, peer)
		},
		abandon: func() {},
	})
	if !submitted {
		s.recordOverload()
		s.logger.WithContext(ctx).Warn("command workers saturated, dropping request",
			observability.String("transport", observability.TransportUDP),
			observability.String("peer", peer),
		)
	}
}

// serveDatagram sends exactly one reply datagram to addr.
func (s *Server) serveDatagram(ctx context.Context, addr net.Addr, peer string) {
	ctx, span := s.startSpan(ctx, observability.TransportUDP, peer)
	var writeErr error
	defer func() { observability.EndSpan(span, writeErr) }()

	payload := s.reply(ctx)

	s.mu.Lock()
	pc := s.udp
	s.mu.Unlock()

	n, err := pc.WriteTo(payload, addr)
	if err != nil {
		writeErr = err
		s.logger.WithContext(ctx).Warn("failed to send quote",
			observability.String("transport", observability.TransportUDP),
			observability.String("peer", peer),
			observability.Error(err),
		)
		return
	}

	s.recordReply(observability.TransportUDP, n)
	s.logger.WithContext(ctx).Debug("quote sent",
		observability.String("transport", observability.TransportUDP),
		observability.String("peer", peer),
		observability.Int("bytes", n),
	)
}
