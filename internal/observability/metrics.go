package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transport label values.
const (
	TransportTCP = "tcp"
	TransportUDP = "udp"
)

// Metrics holds all Prometheus metrics for the QOTD server.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec
	receiveErrors    *prometheus.CounterVec
	replyBytes       *prometheus.HistogramVec
	quoteErrors      *prometheus.CounterVec
	commandDuration  prometheus.Histogram
	inFlightCommands prometheus.Gauge
	circuitBreaker   prometheus.Gauge
	buildInfo        *prometheus.GaugeVec
	startTime        prometheus.Gauge
	registry         *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "qotd"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of quotes served",
		},
		[]string{"transport"},
	)

	m.rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests dropped by the per-client rate limiter",
		},
		[]string{"transport"},
	)

	m.receiveErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Total number of accept or receive failures",
		},
		[]string{"transport"},
	)

	m.replyBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_bytes",
			Help:      "Size of replies in bytes",
			Buckets:   []float64{16, 32, 64, 128, 256, 512, 1024},
		},
		[]string{"transport"},
	)

	m.quoteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_errors_total",
			Help: "Total number of quote source failures " +
				"answered with a fallback text",
		},
		[]string{"mode", "reason"},
	)

	m.commandDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of external quote command invocations",
			Buckets: []float64{
				.005, .01, .025, .05, .1,
				.25, .5, 1, 2.5, 5, 10,
			},
		},
	)

	m.inFlightCommands = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "commands_in_flight",
			Help:      "Number of external quote commands currently running",
		},
	)

	m.circuitBreaker = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "command_circuit_breaker_state",
			Help: "Quote command circuit breaker state " +
				"(0=closed, 1=half-open, 2=open)",
		},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information for the server",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Start time of the server in unix seconds",
		},
	)

	m.registerCollectors()
	m.startTime.SetToCurrentTime()

	return m
}

// registerCollectors registers all metric collectors with the
// Prometheus registry.
func (m *Metrics) registerCollectors() {
	m.registry.MustRegister(
		m.requestsTotal,
		m.rateLimitedTotal,
		m.receiveErrors,
		m.replyBytes,
		m.quoteErrors,
		m.commandDuration,
		m.inFlightCommands,
		m.circuitBreaker,
		m.buildInfo,
		m.startTime,
	)

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)
}

// InitVecMetrics pre-populates the transport label values so that the
// counters appear in /metrics output before the first request.
func (m *Metrics) InitVecMetrics() {
	for _, transport := range []string{TransportTCP, TransportUDP} {
		m.requestsTotal.WithLabelValues(transport)
		m.rateLimitedTotal.WithLabelValues(transport)
		m.receiveErrors.WithLabelValues(transport)
	}
}

// RecordReply records a served quote and its size on the wire.
func (m *Metrics) RecordReply(transport string, size int) {
	m.requestsTotal.WithLabelValues(transport).Inc()
	m.replyBytes.WithLabelValues(transport).Observe(float64(size))
}

// RecordRateLimited records a request dropped by the rate limiter.
// Client addresses are deliberately not labels; they go to the logs.
func (m *Metrics) RecordRateLimited(transport string) {
	m.rateLimitedTotal.WithLabelValues(transport).Inc()
}

// RecordReceiveError records an accept or receive failure.
func (m *Metrics) RecordReceiveError(transport string) {
	m.receiveErrors.WithLabelValues(transport).Inc()
}

// RecordQuoteError records a quote source failure.
func (m *Metrics) RecordQuoteError(mode, reason string) {
	m.quoteErrors.WithLabelValues(mode, reason).Inc()
}

// ObserveCommand records the duration of one external command run.
func (m *Metrics) ObserveCommand(d time.Duration) {
	m.commandDuration.Observe(d.Seconds())
}

// IncrementInFlightCommands increments the running commands gauge.
func (m *Metrics) IncrementInFlightCommands() {
	m.inFlightCommands.Inc()
}

// DecrementInFlightCommands decrements the running commands gauge.
func (m *Metrics) DecrementInFlightCommands() {
	m.inFlightCommands.Dec()
}

// SetCircuitBreakerState sets the command circuit breaker state.
func (m *Metrics) SetCircuitBreakerState(state int) {
	m.circuitBreaker.Set(float64(state))
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsServerConfig configures the optional metrics HTTP endpoint.
type MetricsServerConfig struct {
	Address string
	Path    string
	// Handlers are mounted alongside the metrics path, keyed by path.
	Handlers map[string]http.Handler
}

// NewMetricsServer builds the HTTP server exposing metrics and a
// liveness probe. The caller owns ListenAndServe and Shutdown.
func NewMetricsServer(cfg MetricsServerConfig, metrics *Metrics) *http.Server {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	for p, h := range cfg.Handlers {
		mux.Handle(p, h)
	}

	return &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}
