package config

import (
	"fmt"
	"strings"

	"github.com/vyrodovalexey/qotd/internal/observability"
	"github.com/vyrodovalexey/qotd/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

// Is lets callers match any validation failure with util.ErrConfigInvalid.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

// clampRule describes one numeric field that falls back to a default.
type clampRule struct {
	name  string
	value *int
	lo    int
	hi    int
	def   int
}

// Normalize replaces out-of-range values with their defaults and logs a
// warning for each substitution. It never fails.
func (c *Config) Normalize(logger observability.Logger) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	if !c.Mode.Valid() {
		logger.Warn("unknown quote mode, using fixed list",
			observability.String("value", string(c.Mode)),
		)
		c.Mode = ModeFixed
	}

	rules := []clampRule{
		{"port", &c.Port, 0, 65535, DefaultPort},
		{"rate_limit.tokens_per_second", &c.RateLimit.TokensPerSecond,
			MinTokensPerSecond, MaxTokensPerSecond, DefaultTokensPerSecond},
		{"rate_limit.burst", &c.RateLimit.Burst, MinBurstSize, MaxBurstSize, DefaultBurstSize},
		{"rate_limit.table_size", &c.RateLimit.TableSize, MinTableSize, MaxTableSize, DefaultTableSize},
		{"max_message_size", &c.MaxMessageSize, MinMaxMessageSize, MaxMaxMessageSize, DefaultMaxMessageSize},
		{"command.workers", &c.Command.Workers, 1, MaxCommandWorkers, DefaultCommandWorkers},
		{"command.breaker.max_failures", &c.Command.Breaker.MaxFailures, 1, 1000, DefaultBreakerFailures},
	}

	for _, r := range rules {
		v, ok := util.ClampInt(*r.value, r.lo, r.hi, r.def)
		if !ok {
			logger.Warn("configuration value out of range, using default",
				observability.String("field", r.name),
				observability.Int("value", *r.value),
				observability.Int("default", r.def),
			)
		}
		*r.value = v
	}

	if c.Command.Timeout <= 0 {
		c.Command.Timeout = Duration(DefaultCommandTimeout)
	}
	if c.Command.Breaker.OpenTimeout <= 0 {
		c.Command.Breaker.OpenTimeout = Duration(DefaultBreakerTimeout)
	}
	if c.Command.Rate < 0 {
		c.Command.Rate = 0
	}
	if c.Command.Run == "" {
		c.Command.Run = DefaultCommand
	}
	if c.Quotes.File == "" {
		c.Quotes.File = DefaultQuotesFile
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "qotd"
	}
}

// Validate checks the settings that cannot be defaulted. Core server
// values are expected to have gone through Normalize already.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if err := util.ValidatePort(c.Port); err != nil {
		errs = append(errs, ValidationError{Path: "port", Message: err.Error()})
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("must be json or console, got %q", c.Logging.Format),
		})
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, ValidationError{
			Path:    "metrics.address",
			Message: "required when metrics are enabled",
		})
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, ValidationError{
			Path:    "tracing.sampling_rate",
			Message: fmt.Sprintf("must be between 0 and 1, got %v", c.Tracing.SamplingRate),
		})
	}

	if err := util.ValidateDuration(c.Command.Timeout.Duration()); err != nil {
		errs = append(errs, ValidationError{Path: "command.timeout", Message: err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
