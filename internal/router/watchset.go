package router

import (
	"path/filepath"
	"sort"

	"github.com/frouter/frouter/internal/config"
	"github.com/frouter/frouter/internal/core/interfaces"
	"github.com/frouter/frouter/pkg/logger"
	"go.uber.org/zap"
)

// WatchFailure records one directory that could not be watched or
// unwatched during a reconcile.
type WatchFailure struct {
	Path string
	Err  error
}

// ReconcileResult describes what a reconcile changed
type ReconcileResult struct {
	Unwatched []string
	Watched   []string
	Errors    []WatchFailure
}

// Changed reports whether anything was watched or unwatched
func (r ReconcileResult) Changed() bool {
	return len(r.Unwatched) > 0 || len(r.Watched) > 0
}

// WatchSetManager owns the mapping of watched directories to handles and
// keeps it equal to what the current configuration requires. Pinned
// directories are watched regardless of configuration.
type WatchSetManager struct {
	watcher    interfaces.RawWatcher
	handles    map[string]interfaces.WatchHandle
	configured map[string]bool
	pinned     map[string]bool
	logger     *zap.Logger
}

// NewWatchSetManager creates a manager that has not watched anything yet
func NewWatchSetManager(watcher interfaces.RawWatcher, pinned ...string) *WatchSetManager {
	m := &WatchSetManager{
		watcher:    watcher,
		handles:    make(map[string]interfaces.WatchHandle),
		configured: make(map[string]bool),
		pinned:     make(map[string]bool),
		logger:     logger.Get(),
	}
	for _, dir := range pinned {
		m.pinned[filepath.Clean(dir)] = true
	}
	return m
}

// Reconcile unwatches every directory next no longer needs and watches
// every needed directory not yet watched. Individual failures are
// collected rather than aborting; a directory that failed to watch is
// retried on the next reconcile.
func (m *WatchSetManager) Reconcile(next *config.Configuration) ReconcileResult {
	var result ReconcileResult

	required := make(map[string]bool)
	configured := make(map[string]bool)
	for _, dir := range next.WatchDirectories() {
		required[dir] = true
		configured[dir] = true
	}
	for dir := range m.pinned {
		required[dir] = true
	}

	for _, dir := range sortedKeys(m.handles) {
		if required[dir] {
			continue
		}
		handle := m.handles[dir]
		// The handle is dropped even when the primitive reports an error so
		// no stale handle survives.
		delete(m.handles, dir)
		if err := m.watcher.Unwatch(handle); err != nil {
			result.Errors = append(result.Errors, WatchFailure{Path: dir, Err: err})
			continue
		}
		result.Unwatched = append(result.Unwatched, dir)
	}

	for _, dir := range sortedKeys(required) {
		if _, ok := m.handles[dir]; ok {
			continue
		}
		handle, err := m.watcher.Watch(dir)
		if err != nil {
			result.Errors = append(result.Errors, WatchFailure{Path: dir, Err: err})
			continue
		}
		m.handles[dir] = handle
		result.Watched = append(result.Watched, dir)
	}

	m.configured = configured

	m.logger.Debug("Reconciled watch set",
		zap.Strings("watched", result.Watched),
		zap.Strings("unwatched", result.Unwatched),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

// UnwatchAll releases every handle, pinned ones included
func (m *WatchSetManager) UnwatchAll() []WatchFailure {
	var failures []WatchFailure
	for _, dir := range sortedKeys(m.handles) {
		handle := m.handles[dir]
		delete(m.handles, dir)
		if err := m.watcher.Unwatch(handle); err != nil {
			failures = append(failures, WatchFailure{Path: dir, Err: err})
		}
	}
	m.configured = make(map[string]bool)
	return failures
}

// IsRouted reports whether dir is watched because the configuration asks
// for it, so files appearing in it are routing candidates.
func (m *WatchSetManager) IsRouted(dir string) bool {
	dir = filepath.Clean(dir)
	_, watched := m.handles[dir]
	return watched && m.configured[dir]
}

// Watched returns the sorted list of watched directories
func (m *WatchSetManager) Watched() []string {
	return sortedKeys(m.handles)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
