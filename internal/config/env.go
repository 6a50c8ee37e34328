package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/vyrodovalexey/qotd/internal/observability"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfig      = "QOTD_CONFIG"
	EnvMode        = "QOTD_MODE"
	EnvNet         = "QOTD_NET"
	EnvPrefix      = "QOTD_PREFIX"
	EnvSuffix      = "QOTD_SUFFIX"
	EnvCommand     = "QOTD_COMMAND"
	EnvFile        = "QOTD_FILE"
	EnvRate        = "QOTD_RATE"
	EnvBurst       = "QOTD_BURST"
	EnvPort        = "QOTD_PORT"
	EnvAddress     = "QOTD_ADDRESS"
	EnvLogLevel    = "QOTD_LOG_LEVEL"
	EnvLogFormat   = "QOTD_LOG_FORMAT"
	EnvMetricsAddr = "QOTD_METRICS_ADDR"
)

// ReadDotEnv parses a .env file. A missing file yields an empty map.
func ReadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}

	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return values, nil
}

// ChainLookup returns a LookupFunc that consults primary first and falls
// back to the given map. Real environment variables therefore win over
// .env entries.
func ChainLookup(primary LookupFunc, fallback map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}

// ApplyEnv overrides cfg with QOTD_* variables resolved through lookup.
// Unparseable numbers are stored as zero so that Normalize reports and
// replaces them.
func ApplyEnv(cfg *Config, lookup LookupFunc, logger observability.Logger) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	if v, ok := lookup(EnvMode); ok {
		if mode, valid := ParseMode(v); valid {
			cfg.Mode = mode
		} else {
			logger.Warn("unknown quote mode, keeping current mode",
				observability.String("value", v),
				observability.String("mode", string(cfg.Mode)),
			)
		}
	}

	if v, ok := lookup(EnvNet); ok {
		cfg.Network = ParseTransport(v)
		if cfg.Network.None() {
			logger.Warn("QOTD_NET enables no endpoint",
				observability.String("value", v),
			)
		}
	}

	if v, ok := lookup(EnvPrefix); ok {
		cfg.Prefix = v
	}
	if v, ok := lookup(EnvSuffix); ok {
		cfg.Suffix = v
	}
	if v, ok := lookup(EnvCommand); ok {
		cfg.Command.Run = v
	}
	if v, ok := lookup(EnvFile); ok {
		cfg.Quotes.File = v
	}
	if v, ok := lookup(EnvAddress); ok {
		cfg.Address = v
	}

	if v, ok := lookup(EnvRate); ok {
		cfg.RateLimit.TokensPerSecond = atoi(v)
	}
	if v, ok := lookup(EnvBurst); ok {
		cfg.RateLimit.Burst = atoi(v)
	}
	if v, ok := lookup(EnvPort); ok {
		cfg.Port = atoi(v)
		if cfg.Port == 0 && strings.TrimSpace(v) != "0" {
			cfg.Port = -1
		}
	}

	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok {
		cfg.Logging.Format = v
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		cfg.Metrics.Address = v
		cfg.Metrics.Enabled = v != ""
	}
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
