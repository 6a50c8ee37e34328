package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Documented limits and defaults.
const (
	DefaultPort            = 17
	DefaultTokensPerSecond = 16
	MinTokensPerSecond     = 1
	MaxTokensPerSecond     = 1024
	DefaultBurstSize       = 64
	MinBurstSize           = 1
	MaxBurstSize           = 2048
	DefaultTableSize       = 1024
	MinTableSize           = 1
	MaxTableSize           = 65536
	DefaultMaxMessageSize  = 512
	MinMaxMessageSize      = 512
	MaxMaxMessageSize      = 1024
	DefaultCommandWorkers  = 4
	MaxCommandWorkers      = 256
	DefaultBreakerFailures = 5

	DefaultCommand        = `echo "I didn't set a quote command!"`
	DefaultQuotesFile     = "./quotes.txt"
	DefaultCommandTimeout = 5 * time.Second
	DefaultBreakerTimeout = 30 * time.Second
	DefaultMetricsAddress = ":9090"
	DefaultMetricsPath    = "/metrics"
)

// Mode selects the quote source.
type Mode string

// Quote source modes.
const (
	ModeFixed   Mode = "fixed"
	ModeCommand Mode = "command"
	ModeFile    Mode = "file"
)

// ParseMode maps a mode name to a Mode. "8ball" is accepted as an alias
// for the fixed list.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "8ball", "fixed":
		return ModeFixed, true
	case "command":
		return ModeCommand, true
	case "file":
		return ModeFile, true
	default:
		return "", false
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	mode, ok := ParseMode(s)
	if !ok {
		// Kept verbatim so Normalize can report and replace it.
		*m = Mode(s)
		return nil
	}
	*m = mode
	return nil
}

// Valid reports whether m names a known quote source.
func (m Mode) Valid() bool {
	return m == ModeFixed || m == ModeCommand || m == ModeFile
}

// Transport holds which endpoints are enabled.
type Transport struct {
	TCP bool
	UDP bool
}

// ParseTransport maps a network selector to the enabled endpoints.
// Unknown selectors enable neither endpoint.
func ParseTransport(s string) Transport {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "udp_tcp", "tcp_udp", "both":
		return Transport{TCP: true, UDP: true}
	case "tcp":
		return Transport{TCP: true}
	case "udp":
		return Transport{UDP: true}
	default:
		return Transport{}
	}
}

// String returns the selector that ParseTransport maps back to t.
func (t Transport) String() string {
	switch {
	case t.TCP && t.UDP:
		return "both"
	case t.TCP:
		return "tcp"
	case t.UDP:
		return "udp"
	default:
		return "none"
	}
}

// None reports whether no endpoint is enabled.
func (t Transport) None() bool {
	return !t.TCP && !t.UDP
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Transport) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	*t = ParseTransport(s)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Transport) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// Config holds all QOTD server settings. It is immutable once the server
// has started.
type Config struct {
	Mode           Mode            `yaml:"mode"`
	Network        Transport       `yaml:"network"`
	Address        string          `yaml:"address"`
	Port           int             `yaml:"port"`
	Prefix         string          `yaml:"prefix"`
	Suffix         string          `yaml:"suffix"`
	MaxMessageSize int             `yaml:"max_message_size"`
	Command        CommandConfig   `yaml:"command"`
	Quotes         QuotesConfig    `yaml:"quotes"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Logging        LoggingConfig   `yaml:"logging"`
	Metrics        MetricsConfig   `yaml:"metrics"`
	Tracing        TracingConfig   `yaml:"tracing"`
}

// CommandConfig configures the external command quote source.
type CommandConfig struct {
	Run     string        `yaml:"run"`
	Timeout Duration      `yaml:"timeout"`
	Workers int           `yaml:"workers"`
	Rate    float64       `yaml:"rate"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker around command execution.
type BreakerConfig struct {
	MaxFailures int      `yaml:"max_failures"`
	OpenTimeout Duration `yaml:"open_timeout"`
}

// QuotesConfig configures the file-backed quote source.
type QuotesConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
}

// RateLimitConfig configures the per-client token bucket table.
type RateLimitConfig struct {
	TokensPerSecond int  `yaml:"tokens_per_second"`
	Burst           int  `yaml:"burst"`
	TableSize       int  `yaml:"table_size"`
	UDP             bool `yaml:"udp"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeFixed,
		Network:        Transport{TCP: true, UDP: true},
		Port:           DefaultPort,
		MaxMessageSize: DefaultMaxMessageSize,
		Command: CommandConfig{
			Run:     DefaultCommand,
			Timeout: Duration(DefaultCommandTimeout),
			Workers: DefaultCommandWorkers,
			Breaker: BreakerConfig{
				MaxFailures: DefaultBreakerFailures,
				OpenTimeout: Duration(DefaultBreakerTimeout),
			},
		},
		Quotes: QuotesConfig{
			File: DefaultQuotesFile,
		},
		RateLimit: RateLimitConfig{
			TokensPerSecond: DefaultTokensPerSecond,
			Burst:           DefaultBurstSize,
			TableSize:       DefaultTableSize,
			UDP:             true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
			Path:    DefaultMetricsPath,
		},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
			ServiceName:  "qotd",
		},
	}
}

// ListenAddress returns the host:port both endpoints bind to.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// String returns a one-line summary suitable for a start-up log.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Mode: %s, Network: %s, Listen: %s, Rate: %d/s, Burst: %d, MaxMessageSize: %d, Metrics: %t, Tracing: %t}",
		c.Mode, c.Network, c.ListenAddress(), c.RateLimit.TokensPerSecond, c.RateLimit.Burst,
		c.MaxMessageSize, c.Metrics.Enabled, c.Tracing.Enabled,
	)
}
