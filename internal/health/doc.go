// Package health provides liveness and readiness endpoints for the QOTD
// server. They are mounted next to the Prometheus handler on the metrics
// listener.
//
// Readiness aggregates registered checks: any unhealthy check fails the
// probe with 503, a degraded check is reported but keeps the probe at 200.
//
//	checker := health.NewChecker(version)
//	checker.RegisterCheck("server", health.ServerCheck(srv.State))
//	mux.Handle("/ready", checker.ReadinessHandler())
package health
