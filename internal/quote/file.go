package quote

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/vyrodovalexey/qotd/internal/config"
	"github.com/vyrodovalexey/qotd/internal/observability"
)

// File serves a uniformly random line of a quotes file. The list is an
// immutable snapshot swapped atomically on reload.
type File struct {
	path     string
	quotes   atomic.Pointer[[]string]
	logger   observability.Logger
	metrics  Metrics

	mu      sync.Mutex
	watcher *Watcher
	opts    options
}

// NewFile loads path and returns a source over its lines.
func NewFile(path string, opts ...Option) (*File, error) {
	lines, err := LoadLines(path)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	f := &File{
		path:    path,
		logger:  o.logger.With(observability.String("component", "quote-file")),
		metrics: o.metrics,
		opts:    o,
	}
	f.quotes.Store(&lines)

	return f, nil
}

// Next returns a random line of the current snapshot. A closed source
// returns an empty string.
func (f *File) Next(context.Context) string {
	p := f.quotes.Load()
	if p == nil || len(*p) == 0 {
		return ""
	}
	quotes := *p
	return quotes[rand.Intn(len(quotes))] //nolint:gosec // not security sensitive
}

// Len returns the number of quotes in the current snapshot.
func (f *File) Len() int {
	p := f.quotes.Load()
	if p == nil {
		return 0
	}
	return len(*p)
}

// Reload reads the file again. The current quotes are replaced only when
// the file yields at least one line.
func (f *File) Reload() error {
	lines, err := LoadLines(f.path)
	if err != nil {
		f.metrics.RecordQuoteError(string(config.ModeFile), "reload")
		f.logger.Warn("quotes reload failed, keeping previous quotes",
			observability.String("path", f.path),
			observability.Int("count", f.Len()),
			observability.Error(err),
		)
		return err
	}

	f.quotes.Store(&lines)
	f.logger.Info("quotes reloaded",
		observability.String("path", f.path),
		observability.Int("count", len(lines)),
	)
	return nil
}

// Watch reloads the file whenever it is written or replaced, until ctx is
// done or Close is called. Calling Watch again is a no-op.
func (f *File) Watch(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watcher != nil {
		return nil
	}

	w, err := NewWatcher(f.path, func() { _ = f.Reload() },
		WithDebounceDelay(f.opts.watchDebounce),
		WithWatcherLogger(f.logger),
	)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return err
	}

	f.watcher = w
	return nil
}

// Mode returns config.ModeFile.
func (f *File) Mode() config.Mode {
	return config.ModeFile
}

// Close stops watching and releases the loaded quotes.
func (f *File) Close() error {
	f.mu.Lock()
	w := f.watcher
	f.watcher = nil
	f.mu.Unlock()

	f.quotes.Store(nil)

	if w != nil {
		return w.Stop()
	}
	return nil
}
