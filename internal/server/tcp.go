package server

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/qotd/internal/observability"
)

// acceptLoop accepts connections and hands them to the serve loop.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	var backoff time.Duration

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if isTransient(err) {
				continue
			}

			s.recordReceiveError(observability.TransportTCP)
			backoff = nextBackoff(backoff)
			s.logger.Error("accept error",
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
		case s.conns <- conn:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}

// isTransient reports errors that are retried without logging.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNRESET)
}

// handleConn runs on the serve loop for every accepted connection.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	peer := s.keyFunc(conn.RemoteAddr())
	requestID := uuid.New().String()
	ctx = observability.ContextWithRequestID(ctx, requestID)

	if !s.limiter.Allow(peer) {
		s.recordRateLimited(observability.TransportTCP)
		s.logger.WithContext(ctx).Debug("rate limited",
			observability.String("transport", observability.TransportTCP),
			observability.String("peer", peer),
		)
		_ = conn.Close()
		return
	}

	if !s.offload() {
		s.serveConn(ctx, conn, peer)
		return
	}

	s.pending.Add(requestID, conn)
	submitted := s.workers.Submit(job{
		run: func(workerCtx context.Context) {
			defer s.pending.Remove(requestID)
			s.serveConn(observability.ContextWithRequestID(workerCtx, requestID), conn, peer)
		},
		abandon: func() {
			s.pending.Remove(requestID)
			_ = conn.Close()
		},
	})
	if !submitted {
		s.pending.Remove(requestID)
		s.recordOverload()
		s.logger.WithContext(ctx).Warn("command workers saturated, dropping request",
			observability.String("transport", observability.TransportTCP),
			observability.String("peer", peer),
		)
		_ = conn.Close()
	}
}

// serveConn writes one quote and closes the connection. Nothing is read.
func (s *Server) serveConn(ctx context.Context, conn net.Conn, peer string) {
	defer conn.Close()

	ctx, span := s.startSpan(ctx, observability.TransportTCP, peer)
	var writeErr error
	defer func() { observability.EndSpan(span, writeErr) }()

	payload := s.reply(ctx)

	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		s.logger.WithContext(ctx).Debug("failed to set write deadline", observability.Error(err))
	}

	n, err := conn.Write(payload)
	if err != nil {
		writeErr = err
		s.logger.WithContext(ctx).Warn("failed to send quote",
			observability.String("transport", observability.TransportTCP),
			observability.String("peer", peer),
			observability.Error(err),
		)
		return
	}

	s.recordReply(observability.TransportTCP, n)
	s.logger.WithContext(ctx).Debug("quote sent",
		observability.String("transport", observability.TransportTCP),
		observability.String("peer", peer),
		observability.Int("bytes", n),
	)
}
