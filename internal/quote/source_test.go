package quote

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/qotd/internal/config"
	"github.com/vyrodovalexey/qotd/internal/observability"
)

func TestNewSource(t *testing.T) {
	t.Parallel()

	quotesPath := writeQuotes(t, "from file\n")

	tests := []struct {
		name     string
		mutate   func(*config.Config)
		expected config.Mode
	}{
		{name: "fixed", mutate: func(c *config.Config) { c.Mode = config.ModeFixed }, expected: config.ModeFixed},
		{name: "command", mutate: func(c *config.Config) {
			c.Mode = config.ModeCommand
			c.Command.Run = "echo hi"
		}, expected: config.ModeCommand},
		{name: "file", mutate: func(c *config.Config) {
			c.Mode = config.ModeFile
			c.Quotes.File = quotesPath
		}, expected: config.ModeFile},
		{name: "unknown defaults to fixed", mutate: func(c *config.Config) { c.Mode = "oracle" }, expected: config.ModeFixed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			src := NewSource(context.Background(), cfg)
			defer src.Close()

			assert.Equal(t, tt.expected, src.Mode())
			assert.NotEmpty(t, src.Next(context.Background()))
		})
	}
}

func TestNewSource_FileFallsBackToFixed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{name: "missing", path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.txt") }},
		{name: "empty", path: func(t *testing.T) string { return writeQuotes(t, "") }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.WarnLevel)
			metrics := newRecordingMetrics()
			cfg := config.DefaultConfig()
			cfg.Mode = config.ModeFile
			cfg.Quotes.File = tt.path(t)

			src := NewSource(context.Background(), cfg,
				WithLogger(observability.NewLoggerFromZap(zap.New(core))),
				WithMetrics(metrics),
			)

			assert.Equal(t, config.ModeFixed, src.Mode())
			assert.Contains(t, EightBall, src.Next(context.Background()))
			assert.Equal(t, 1, logs.FilterMessage("failed to load quotes file, falling back to fixed list").Len())
			assert.Equal(t, 1, metrics.errorCount("file/load"))
		})
	}
}

func TestNewSource_CommandUsesConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeCommand
	cfg.Command.Run = "printf 0123456789"
	cfg.MaxMessageSize = 512

	src := NewSource(context.Background(), cfg)
	cmd, ok := src.(*Command)
	require.True(t, ok)

	assert.Equal(t, 512, cmd.maxBytes)
	assert.Equal(t, cfg.Command.Timeout.Duration(), cmd.timeout)
	assert.Nil(t, cmd.spawn)
	assert.Equal(t, "0123456789", src.Next(context.Background()))
}

func TestNewSource_FileWatch(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeFile
	cfg.Quotes.File = writeQuotes(t, "watched\n")
	cfg.Quotes.Watch = true

	src := NewSource(context.Background(), cfg)
	f, ok := src.(*File)
	require.True(t, ok)

	f.mu.Lock()
	assert.NotNil(t, f.watcher)
	f.mu.Unlock()

	assert.NoError(t, src.Close())
}
