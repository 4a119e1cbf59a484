package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// fileState is one successfully parsed version of the watched file.
type fileState struct {
	cfg     *Config
	sum     [sha256.Size]byte
	modTime time.Time
}

// Watcher polls a config file and reports valid changes. An edit that does
// not parse or validate is logged and ignored, and the last good config stays
// current. Touching the file without changing its bytes is not a change.
type Watcher struct {
	path     string
	interval time.Duration

	mu   sync.Mutex
	last fileState
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep the
// default of 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and returns a Watcher primed with it. Nothing is
// polled until [Watcher.Run].
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: defaultPollInterval}
	for _, opt := range opts {
		opt(w)
	}
	st, err := readState(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	w.last = st
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Run polls until ctx is done. onChange receives the previous and the new
// config after every valid change and runs on the polling goroutine.
func (w *Watcher) Run(ctx context.Context, onChange func(old, new *Config)) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		old, next := w.poll()
		if next != nil && onChange != nil {
			onChange(old, next)
		}
	}
}

// poll returns the previous and new config when the file changed, or nils.
func (w *Watcher) poll() (old, next *Config) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: stat watched file", "path", w.path, "err", err)
		return nil, nil
	}
	w.mu.Lock()
	seen := w.last.modTime
	w.mu.Unlock()
	if info.ModTime().Equal(seen) {
		return nil, nil
	}

	st, err := readState(w.path)
	if err != nil {
		slog.Warn("config: ignoring invalid edit", "path", w.path, "err", err)
		return nil, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if st.sum == w.last.sum {
		w.last.modTime = st.modTime
		return nil, nil
	}
	old = w.last.cfg
	w.last = st
	slog.Info("config: reloaded", "path", w.path)
	return old, st.cfg
}

func readState(path string) (fileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return fileState{}, err
	}
	return fileState{cfg: cfg, sum: sha256.Sum256(data), modTime: info.ModTime()}, nil
}
