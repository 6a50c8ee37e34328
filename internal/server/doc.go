// Package server implements the QOTD listener multiplexer.
//
// A Server owns at most one TCP listener and one UDP socket bound to the
// same address. Each endpoint has a reader goroutine that turns readiness
// into events; a single serve loop consumes those events, consults the
// per-client rate limiter and answers with one quote. TCP connections are
// closed right after the reply and are never read from. UDP datagrams get
// exactly one reply datagram and their payload is ignored.
//
// Command-mode quotes are generated on a bounded worker pool so a slow
// command never stalls the loop. All other modes are answered inline.
//
// Lifecycle:
//
//	INIT -> CONFIGURED -> LISTENING -> SERVING -> SHUTTING_DOWN -> TERMINATED
//
// Start binds the endpoints, Run serves until its context is done or Stop
// is called, and Stop tears everything down. A stopped server cannot be
// restarted.
package server
