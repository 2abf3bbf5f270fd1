// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls the SKILL.md files of a catalog and reloads it when one is
// added, removed or modified.
type Watcher struct {
	mu          sync.Mutex
	catalog     *Catalog
	interval    time.Duration
	lastModTime map[string]time.Time
	listeners   []func(*Catalog)
	stopCh      chan struct{}
	doneCh      chan struct{}
	stopOnce    sync.Once
	logger      *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher for c. The current files are the baseline:
// only later changes trigger a reload.
func NewWatcher(c *Catalog, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		catalog:     c,
		interval:    time.Second,
		lastModTime: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.lastModTime = snapshot(c.Files())
	return w
}

// OnReload registers a callback run after each successful reload.
func (w *Watcher) OnReload(fn func(*Catalog)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Start begins polling until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.watch(ctx)
}

// Stop stops polling and waits for the polling goroutine to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.checkForChanges() {
				w.reload()
			}
		}
	}
}

func (w *Watcher) checkForChanges() bool {
	current := snapshot(w.catalog.Files())

	w.mu.Lock()
	defer w.mu.Unlock()
	changed := len(current) != len(w.lastModTime)
	for path, mod := range current {
		if last, ok := w.lastModTime[path]; !ok || mod.After(last) {
			changed = true
		}
	}
	w.lastModTime = current
	return changed
}

func (w *Watcher) reload() {
	w.logger.Info("skill catalog changed, reloading")
	if err := w.catalog.Load(); err != nil {
		w.logger.Error("failed to reload skill catalog", "error", err)
		return
	}

	w.mu.Lock()
	listeners := make([]func(*Catalog), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(w.catalog)
	}
}

func snapshot(paths []string) map[string]time.Time {
	out := make(map[string]time.Time, len(paths))
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil {
			out[path] = info.ModTime()
		}
	}
	return out
}
