package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/qotd/internal/config"
	"github.com/vyrodovalexey/qotd/internal/quote"
	"github.com/vyrodovalexey/qotd/internal/util"
)

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// freePort reserves a loopback port and releases it for the test to use.
func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Parallel()

	lookup := mapLookup(map[string]string{"SET": "value", "EMPTY": ""})

	assert.Equal(t, "value", getEnvOrDefault(lookup, "SET", "default"))
	assert.Equal(t, "default", getEnvOrDefault(lookup, "EMPTY", "default"))
	assert.Equal(t, "default", getEnvOrDefault(lookup, "MISSING", "default"))
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		want    cliFlags
		wantErr bool
	}{
		{
			name: "defaults",
			want: cliFlags{envFile: ".env"},
		},
		{
			name: "config from environment",
			env:  map[string]string{config.EnvConfig: "/etc/qotd.yaml"},
			want: cliFlags{configPath: "/etc/qotd.yaml", envFile: ".env"},
		},
		{
			name: "flag wins over environment",
			args: []string{"-config", "local.yaml", "-env-file", "custom.env"},
			env:  map[string]string{config.EnvConfig: "/etc/qotd.yaml"},
			want: cliFlags{configPath: "local.yaml", envFile: "custom.env"},
		},
		{
			name: "version",
			args: []string{"-version"},
			want: cliFlags{envFile: ".env", showVersion: true},
		},
		{
			name:    "unknown flag",
			args:    []string{"-nope"},
			wantErr: true,
		},
		{
			name:    "positional argument",
			args:    []string{"extra"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseFlags(tt.args, mapLookup(tt.env))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_Version(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := run(context.Background(), []string{"-version"}, mapLookup(nil), &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "qotd version dev")
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Parallel()

	env := map[string]string{config.EnvLogFormat: "xml"}
	err := run(context.Background(), []string{"-env-file", ""}, mapLookup(env), io.Discard)

	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrConfigInvalid))
}

func TestRun_MissingConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent.yaml")
	err := run(context.Background(), []string{"-config", path, "-env-file", ""}, mapLookup(nil), io.Discard)

	assert.Error(t, err)
}

func TestRun_PortInUse(t *testing.T) {
	t.Parallel()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	env := map[string]string{
		config.EnvAddress:  "127.0.0.1",
		config.EnvPort:     strconv.Itoa(busy.Addr().(*net.TCPAddr).Port),
		config.EnvNet:      "tcp",
		config.EnvLogLevel: "error",
	}
	err = run(context.Background(), []string{"-env-file", ""}, mapLookup(env), io.Discard)

	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrListen))
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	quotes := filepath.Join(dir, "quotes.txt")
	require.NoError(t, os.WriteFile(quotes, []byte("only quote\n"), 0o600))

	envFile := filepath.Join(dir, "qotd.env")
	require.NoError(t, os.WriteFile(envFile, []byte("QOTD_MODE=file\nQOTD_FILE="+quotes+"\n"), 0o600))

	port := freePort(t)
	env := map[string]string{
		config.EnvAddress:  "127.0.0.1",
		config.EnvPort:     strconv.Itoa(port),
		config.EnvNet:      "tcp",
		config.EnvSuffix:   "\n",
		config.EnvLogLevel: "error",
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-env-file", envFile}, mapLookup(env), io.Discard) }()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	var reply string
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err != nil {
			return false
		}
		defer conn.Close()
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		data, err := io.ReadAll(conn)
		if err != nil {
			return false
		}
		reply = string(data)
		return true
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "only quote\n", reply)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRun_FixedModeDefault(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	env := map[string]string{
		config.EnvAddress:  "127.0.0.1",
		config.EnvPort:     strconv.Itoa(port),
		config.EnvNet:      "udp",
		config.EnvLogLevel: "error",
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-env-file", ""}, mapLookup(env), io.Discard) }()

	conn, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 1024)
	var reply string
	require.Eventually(t, func() bool {
		if _, err := conn.Write([]byte{0}); err != nil {
			return false
		}
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, err := conn.Read(buf)
		if err != nil {
			return false
		}
		reply = string(buf[:n])
		return true
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, quote.EightBall, reply)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRun_MetricsAndReadiness(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	metricsAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(freePort(t)))
	env := map[string]string{
		config.EnvAddress:     "127.0.0.1",
		config.EnvPort:        strconv.Itoa(port),
		config.EnvNet:         "tcp",
		config.EnvMetricsAddr: metricsAddr,
		config.EnvLogLevel:    "error",
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-env-file", ""}, mapLookup(env), io.Discard) }()

	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + metricsAddr + "/ready")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := client.Get("http://" + metricsAddr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "qotd_build_info")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}
