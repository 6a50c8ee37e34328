package quote

import (
	"context"
	"errors"
	"time"

	"github.com/vyrodovalexey/qotd/internal/config"
	"github.com/vyrodovalexey/qotd/internal/observability"
)

// ErrNoQuotes is returned when a quotes file yields no lines.
var ErrNoQuotes = errors.New("no quotes found")

// Source produces the text of one reply.
type Source interface {
	// Next returns a quote. It never fails; sources that can go wrong
	// return a fixed error text instead.
	Next(ctx context.Context) string
	// Mode reports which strategy is active.
	Mode() config.Mode
	// Close releases resources held by the source.
	Close() error
}

// Metrics is the subset of observability.Metrics used by quote sources.
type Metrics interface {
	RecordQuoteError(mode, reason string)
	ObserveCommand(d time.Duration)
	IncrementInFlightCommands()
	DecrementInFlightCommands()
	SetCircuitBreakerState(state int)
}

type nopMetrics struct{}

func (nopMetrics) RecordQuoteError(string, string) {}
func (nopMetrics) ObserveCommand(time.Duration)    {}
func (nopMetrics) IncrementInFlightCommands()      {}
func (nopMetrics) DecrementInFlightCommands()      {}
func (nopMetrics) SetCircuitBreakerState(int)      {}

var _ Metrics = (*observability.Metrics)(nil)

// options holds source settings. Command-specific fields are ignored by
// the other sources.
type options struct {
	logger  observability.Logger
	metrics Metrics

	maxBytes        int
	timeout         time.Duration
	spawnRate       float64
	breakerFailures int
	breakerTimeout  time.Duration
	shell           string
	watchDebounce   time.Duration
}

// Option configures a source.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithMaxBytes bounds how much command output is kept.
func WithMaxBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBytes = n
		}
	}
}

// WithTimeout bounds each command run.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithSpawnRate limits command starts per second. Zero means unlimited.
func WithSpawnRate(perSecond float64) Option {
	return func(o *options) {
		o.spawnRate = perSecond
	}
}

// WithBreaker sets how many consecutive failures open the command circuit
// breaker and how long it stays open.
func WithBreaker(failures int, openTimeout time.Duration) Option {
	return func(o *options) {
		if failures > 0 {
			o.breakerFailures = failures
		}
		if openTimeout > 0 {
			o.breakerTimeout = openTimeout
		}
	}
}

// WithShell replaces the shell used to run commands.
func WithShell(shell string) Option {
	return func(o *options) {
		if shell != "" {
			o.shell = shell
		}
	}
}

// WithWatchDebounce sets how long the file watcher waits for writes to
// settle before reloading.
func WithWatchDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.watchDebounce = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:          observability.NopLogger(),
		metrics:         nopMetrics{},
		maxBytes:        config.DefaultMaxMessageSize,
		timeout:         config.DefaultCommandTimeout,
		breakerFailures: config.DefaultBreakerFailures,
		breakerTimeout:  config.DefaultBreakerTimeout,
		shell:           "/bin/sh",
		watchDebounce:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSource selects the quote source for cfg. A file source that cannot
// be loaded falls back to the fixed list. When cfg.Quotes.Watch is set
// the file source follows changes to its file until ctx is done or the
// source is closed.
func NewSource(ctx context.Context, cfg *config.Config, opts ...Option) Source {
	o := buildOptions(opts)

	switch cfg.Mode {
	case config.ModeCommand:
		cmdOpts := append([]Option{
			WithMaxBytes(cfg.MaxMessageSize),
			WithTimeout(cfg.Command.Timeout.Duration()),
			WithSpawnRate(cfg.Command.Rate),
			WithBreaker(cfg.Command.Breaker.MaxFailures, cfg.Command.Breaker.OpenTimeout.Duration()),
		}, opts...)
		return NewCommand(cfg.Command.Run, cmdOpts...)

	case config.ModeFile:
		o.logger.Info("loading quotes", observability.String("path", cfg.Quotes.File))

		f, err := NewFile(cfg.Quotes.File, opts...)
		if err != nil {
			o.logger.Warn("failed to load quotes file, falling back to fixed list",
				observability.String("path", cfg.Quotes.File),
				observability.Error(err),
			)
			o.metrics.RecordQuoteError(string(config.ModeFile), "load")
			return NewFixed()
		}

		o.logger.Info("loaded quotes from file",
			observability.String("path", cfg.Quotes.File),
			observability.Int("count", f.Len()),
		)

		if cfg.Quotes.Watch {
			if err := f.Watch(ctx); err != nil {
				o.logger.Warn("quotes file watch disabled",
					observability.String("path", cfg.Quotes.File),
					observability.Error(err),
				)
			}
		}
		return f

	default:
		return NewFixed()
	}
}
