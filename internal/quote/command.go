package quote

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/qotd/internal/config"
	"github.com/vyrodovalexey/qotd/internal/observability"
	"github.com/vyrodovalexey/qotd/internal/util"
)

// ErrorText is returned in place of a quote when the command cannot run.
const ErrorText = "Error: Command execution failed\n"

// waitDelay bounds how long Wait blocks on pipes held open by orphaned
// grandchildren after the command itself was killed.
const waitDelay = 100 * time.Millisecond

// Quote error reasons used as metric labels.
const (
	reasonStart       = "start"
	reasonTimeout     = "timeout"
	reasonCircuitOpen = "circuit_open"
	reasonRateLimited = "rate_limited"
)

// Command runs a shell command per request and returns its standard
// output, bounded to a maximum size.
type Command struct {
	command  string
	shell    string
	maxBytes int
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
	spawn    *rate.Limiter
	logger   observability.Logger
	metrics  Metrics
}

// NewCommand creates a command source for the given shell command line.
func NewCommand(command string, opts ...Option) *Command {
	o := buildOptions(opts)

	c := &Command{
		command:  command,
		shell:    o.shell,
		maxBytes: o.maxBytes,
		timeout:  o.timeout,
		logger:   o.logger.With(observability.String("component", "quote-command")),
		metrics:  o.metrics,
	}

	if o.spawnRate > 0 {
		burst := int(o.spawnRate)
		if burst < 1 {
			burst = 1
		}
		c.spawn = rate.NewLimiter(rate.Limit(o.spawnRate), burst)
	}

	threshold := safeIntToUint32(o.breakerFailures)
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "quote-command",
		MaxRequests: 1,
		Timeout:     o.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			c.metrics.SetCircuitBreakerState(int(to))
		},
	})

	return c
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// Next runs the command and returns its output. A command that exits with
// a non-zero status still yields whatever it printed. When the command
// cannot be started, times out, or is held back by the circuit breaker or
// spawn limiter, ErrorText is returned.
func (c *Command) Next(ctx context.Context) string {
	if c.spawn != nil && !c.spawn.Allow() {
		c.fail(ctx, reasonRateLimited, nil)
		return ErrorText
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.run(ctx)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			c.fail(ctx, reasonCircuitOpen, err)
		case errors.Is(err, util.ErrTimeout):
			c.fail(ctx, reasonTimeout, err)
		default:
			c.fail(ctx, reasonStart, err)
		}
		return ErrorText
	}

	return out.(string)
}

func (c *Command) fail(ctx context.Context, reason string, err error) {
	c.metrics.RecordQuoteError(string(config.ModeCommand), reason)

	fields := []observability.Field{observability.String("reason", reason)}
	if err != nil {
		fields = append(fields, observability.Error(err))
	}
	c.logger.WithContext(ctx).Warn("quote command failed", fields...)
}

// run executes the command once. Only failures to start and timeouts are
// errors; a non-zero exit status is not.
func (c *Command) run(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.metrics.IncrementInFlightCommands()
	defer c.metrics.DecrementInFlightCommands()

	start := time.Now()
	defer func() { c.metrics.ObserveCommand(time.Since(start)) }()

	out := &boundedBuffer{limit: c.maxBytes}

	//nolint:gosec // running the operator-configured command is the point
	cmd := exec.CommandContext(ctx, c.shell, "-c", c.command)
	cmd.Stdout = out
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command: %w", err)
	}
	waitErr := cmd.Wait()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", util.NewTimeoutError("quote command", c.timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		c.logger.Debug("quote command exited with non-zero status",
			observability.Int("exit_code", exitErr.ExitCode()),
		)
	}

	return string(out.buf), nil
}

// boundedBuffer keeps the first limit bytes written to it and discards
// the rest without reporting an error, so the child is never blocked.
type boundedBuffer struct {
	buf   []byte
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		b.buf = append(b.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

// Mode returns config.ModeCommand.
func (c *Command) Mode() config.Mode {
	return config.ModeCommand
}

// Close is a no-op; running commands are tied to the caller's context.
func (c *Command) Close() error {
	return nil
}

// BreakerState reports the circuit breaker state.
func (c *Command) BreakerState() gobreaker.State {
	return c.breaker.State()
}
