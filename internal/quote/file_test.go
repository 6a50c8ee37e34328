package quote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/qotd/internal/config"
)

func TestNewFile(t *testing.T) {
	t.Parallel()

	path := writeQuotes(t, "alpha\nbeta\ngamma\n")

	src, err := NewFile(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 3, src.Len())
	assert.Equal(t, config.ModeFile, src.Mode())

	seen := make(map[string]bool)
	for i := 0; i < 300; i++ {
		q := src.Next(context.Background())
		assert.Contains(t, []string{"alpha", "beta", "gamma"}, q)
		seen[q] = true
	}
	assert.Len(t, seen, 3)
}

func TestNewFile_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewFile(filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)

	_, err = NewFile(writeQuotes(t, "\n\n"))
	assert.True(t, errors.Is(err, ErrNoQuotes))
}

func TestFile_Reload(t *testing.T) {
	t.Parallel()

	metrics := newRecordingMetrics()
	path := writeQuotes(t, "old\n")
	src, err := NewFile(path, WithMetrics(metrics))
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, os.WriteFile(path, []byte("new one\nnew two\n"), 0o600))
	require.NoError(t, src.Reload())
	assert.Equal(t, 2, src.Len())
	assert.Contains(t, []string{"new one", "new two"}, src.Next(context.Background()))

	// An emptied file keeps the previous quotes.
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	err = src.Reload()
	assert.True(t, errors.Is(err, ErrNoQuotes))
	assert.Equal(t, 2, src.Len())
	assert.Equal(t, 1, metrics.errorCount("file/reload"))
}

func TestFile_Close(t *testing.T) {
	t.Parallel()

	src, err := NewFile(writeQuotes(t, "x\n"))
	require.NoError(t, err)

	require.NoError(t, src.Close())
	assert.Equal(t, 0, src.Len())
	assert.Empty(t, src.Next(context.Background()))
	assert.NoError(t, src.Close())
}

func TestFile_Watch(t *testing.T) {
	t.Parallel()

	path := writeQuotes(t, "before\n")
	src, err := NewFile(path, WithWatchDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, src.Watch(ctx))
	require.NoError(t, src.Watch(ctx), "second Watch is a no-op")

	require.NoError(t, os.WriteFile(path, []byte("after\n"), 0o600))

	assert.Eventually(t, func() bool {
		return src.Next(context.Background()) == "after"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFile_WatchIgnoresEmptyWrite(t *testing.T) {
	t.Parallel()

	path := writeQuotes(t, "keep\n")
	src, err := NewFile(path, WithWatchDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.Watch(context.Background()))
	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

	assert.Never(t, func() bool {
		return src.Next(context.Background()) != "keep"
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "quotes.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o600))

	changed := make(chan struct{}, 1)
	w, err := NewWatcher(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("b\n"), 0o600))
	select {
	case <-changed:
		t.Fatal("unrelated file triggered a change")
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("c\n"), 0o600))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watched file change not reported")
	}

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
