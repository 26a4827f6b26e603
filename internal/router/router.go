// Package router turns the raw notification stream into settled batches of
// files and routes each file into the destination of its extension.
package router

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/frouter/frouter/internal/config"
	"github.com/frouter/frouter/internal/core/interfaces"
	"github.com/frouter/frouter/internal/fileops"
	"github.com/frouter/frouter/internal/watchers/ignore"
	rerrors "github.com/frouter/frouter/pkg/errors"
	"github.com/frouter/frouter/pkg/logger"
	"github.com/frouter/frouter/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTick bounds how long a ready batch can wait without new
// notifications.
const DefaultTick = time.Second

// Options configures a Router
type Options struct {
	ConfigPath     string
	Delay          time.Duration // quiet period before a batch is flushed
	DebounceWindow time.Duration
	Tick           time.Duration

	Loader   interfaces.ConfigLoader
	Watcher  interfaces.RawWatcher
	Mover    interfaces.Mover
	Hasher   interfaces.Hasher
	EventLog interfaces.EventLog
	Ignore   *ignore.Matcher // applied to the startup sweep; may be nil

	Logger *zap.Logger
	Clock  func() time.Time

	// OnBatch and OnReload, when set, are called from the loop goroutine
	OnBatch  func(BatchResult)
	OnReload func(ReconcileResult)
}

// BatchResult summarizes one drained batch
type BatchResult struct {
	ID        string
	Paths     int
	Moved     []models.MoveRecord
	Skipped   int
	Failed    int
	Committed bool
}

// Router is the control loop. All of its state is owned by the goroutine
// running Run.
type Router struct {
	opts        Options
	configPath  string
	current     *config.Configuration
	debounce    *DebounceSet
	accumulator *EventAccumulator
	watchSet    *WatchSetManager
	logger      *zap.Logger
	now         func() time.Time

	batches   int
	moved     int
	lastBatch time.Time
}

// Stats is a point-in-time snapshot of router activity
type Stats struct {
	Watched   []string
	Pending   int
	Batches   int
	Moved     int
	LastBatch time.Time
}

// New validates opts and builds a Router
func New(opts Options) (*Router, error) {
	if opts.ConfigPath == "" {
		return nil, rerrors.NewValidationError("config path is required", nil)
	}
	if opts.Loader == nil || opts.Watcher == nil || opts.Mover == nil || opts.Hasher == nil || opts.EventLog == nil {
		return nil, rerrors.NewValidationError("loader, watcher, mover, hasher and event log are required", nil)
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	configPath, err := filepath.Abs(opts.ConfigPath)
	if err != nil {
		return nil, rerrors.NewValidationError("invalid config path", err)
	}

	debounce := NewDebounceSet(opts.DebounceWindow)
	debounce.now = opts.Clock
	accumulator := NewEventAccumulator()
	accumulator.now = opts.Clock

	watchSet := NewWatchSetManager(opts.Watcher, filepath.Dir(configPath))
	watchSet.logger = opts.Logger

	return &Router{
		opts:        opts,
		configPath:  configPath,
		current:     config.Empty(),
		debounce:    debounce,
		accumulator: accumulator,
		watchSet:    watchSet,
		logger:      opts.Logger,
		now:         opts.Clock,
	}, nil
}

// Configuration returns the live configuration
func (r *Router) Configuration() *config.Configuration {
	return r.current
}

// Start loads the configuration, prepares and watches every directory it
// names, and routes files already present in the source directories.
func (r *Router) Start() error {
	cfg, err := r.opts.Loader.Load(r.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	r.apply(cfg)
	return nil
}

// Run starts the router and processes notifications until ctx is done or
// the notification channel closes.
func (r *Router) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	return r.Serve(ctx)
}

// Serve runs the select loop of a started router. Every directory is
// unwatched when it returns.
func (r *Router) Serve(ctx context.Context) error {
	defer r.stop()

	ticker := time.NewTicker(r.opts.Tick)
	defer ticker.Stop()

	notifications := r.opts.Watcher.Notifications()
	watchErrors := r.opts.Watcher.Errors()

	r.logger.Info("Router started",
		zap.String("config", r.configPath),
		zap.Duration("delay", r.opts.Delay),
		zap.Duration("debounce_window", r.opts.DebounceWindow),
		zap.Strings("watching", r.watchSet.Watched()),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				err := rerrors.NewChannelError("notification channel closed", nil)
				logger.Report(r.logger, "Watch Error", err)
				return err
			}
			r.HandleNotification(n)
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			logger.Report(r.logger, "Watch Error", err)
		case <-ticker.C:
		}

		r.FlushIfReady()
	}
}

func (r *Router) stop() {
	if pending := r.accumulator.Len(); pending > 0 {
		r.logger.Info("Stopping with unrouted files; they are picked up on next start",
			zap.Int("pending", pending))
	}
	for _, f := range r.watchSet.UnwatchAll() {
		logger.Report(r.logger, "Unwatch Directory Error", f.Err, zap.String("path", f.Path))
	}
	r.logger.Info("Router stopped")
}

// HandleNotification classifies one raw notification
func (r *Router) HandleNotification(n interfaces.Notification) {
	path := filepath.Clean(n.Path)

	if path == r.configPath {
		r.Reload()
		return
	}

	if !r.watchSet.IsRouted(filepath.Dir(path)) {
		return
	}

	if !r.debounce.Accept(path) {
		return
	}
	if r.accumulator.Len() == 0 {
		r.logger.Debug("Accumulating", zap.String("first", path))
	}
	r.accumulator.Add(path)
}

// FlushIfReady routes the pending batch once it has been quiet for the delay
func (r *Router) FlushIfReady() {
	if !r.accumulator.Ready(r.opts.Delay, r.now()) {
		return
	}
	r.RouteBatch(r.accumulator.DrainAll())
}

// Reload re-reads the configuration file. On failure the previous
// configuration and watch set stay in force.
func (r *Router) Reload() {
	r.logger.Info("Config file changed, reloading", zap.String("path", r.configPath))

	next, err := r.opts.Loader.Load(r.configPath)
	if err != nil {
		logger.Report(r.logger, "Config Load Error", err)
		return
	}

	result := r.apply(next)
	r.logger.Info("Config reloaded",
		zap.Strings("watched", result.Watched),
		zap.Strings("unwatched", result.Unwatched),
	)
	if r.opts.OnReload != nil {
		r.opts.OnReload(result)
	}
}

// apply makes cfg the live configuration: directories are created,
// the watch set reconciled and source directories swept.
func (r *Router) apply(cfg *config.Configuration) ReconcileResult {
	r.ensureDirectories(cfg)

	result := r.watchSet.Reconcile(cfg)
	for _, f := range result.Errors {
		msg := "Directory Watch Error"
		if rerrors.IsUnwatchError(f.Err) {
			msg = "Unwatch Directory Error"
		}
		logger.Report(r.logger, msg, f.Err, zap.String("path", f.Path))
	}

	r.current = cfg
	r.sweep(cfg.SourceDirectories())
	return result
}

func (r *Router) ensureDirectories(cfg *config.Configuration) {
	for _, dir := range cfg.WatchDirectories() {
		err := fileops.EnsureDirectory(dir)
		if err == nil {
			continue
		}
		msg := "Directory Error"
		if errors.Is(err, fs.ErrPermission) {
			msg = "Directory Permission Denied"
		}
		logger.Report(r.logger, msg, err, zap.String("path", dir))
	}
}

// sweep routes files that were already sitting in dirs. Paths waiting in
// the accumulator are left to their batch.
func (r *Router) sweep(dirs []string) {
	var paths []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Report(r.logger, "Directory Read Error",
				rerrors.NewFileSystemError(fmt.Sprintf("failed to read %s", dir), err))
			continue
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if r.opts.Ignore != nil && r.opts.Ignore.ShouldIgnore(path) {
				continue
			}
			if r.accumulator.Contains(path) {
				continue
			}
			r.debounce.Accept(path)
			paths = append(paths, path)
		}
	}

	if len(paths) > 0 {
		r.RouteBatch(paths)
	}
}

// RouteBatch moves every routable path in order and logs the moves under
// a single event log transaction. Moves are not undone when logging fails.
func (r *Router) RouteBatch(paths []string) BatchResult {
	result := BatchResult{ID: uuid.NewString(), Paths: len(paths)}
	log := logger.WithBatchID(r.logger, result.ID)

	txOpen, txFailed := false, false

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			// Vanished since the notification, or not a file.
			result.Skipped++
			continue
		}

		ext, ok := r.current.MatchExtension(path)
		if !ok {
			result.Skipped++
			continue
		}

		target, identical, err := fileops.UniqueTarget(path, ext.Path, r.opts.Hasher)
		if err != nil {
			logger.Report(log, "Target Resolution Error", err, zap.String("path", path))
			result.Failed++
			continue
		}
		if target == path {
			result.Skipped++
			continue
		}

		if !txOpen && !txFailed {
			if err := r.opts.EventLog.Begin(); err != nil {
				logger.Report(log, "Transaction Error", rerrors.NewSinkError("failed to start transaction", err))
				txFailed = true
			} else {
				txOpen = true
			}
		}

		if err := r.opts.Mover.Move(path, target); err != nil {
			logger.Report(log, "File Move Error", err, zap.String("path", path), zap.String("target", target))
			result.Failed++
			continue
		}
		r.debounce.Accept(target)

		digest, err := r.opts.Hasher.Digest(target)
		if err != nil {
			logger.Report(log, "Hash Error", err, zap.String("path", target))
			result.Failed++
			continue
		}

		rec := models.NewMoveRecord(path, target, digest, r.now())
		rec.BatchID = result.ID
		result.Moved = append(result.Moved, rec)

		log.Info("Routed file",
			zap.String("source", path),
			zap.String("destination", target),
			zap.Bool("already_present", identical),
		)

		if txOpen {
			if err := r.opts.EventLog.Append(rec); err != nil {
				logger.Report(log, "Log Append Error", rerrors.NewSinkError("failed to append move", err),
					zap.String("path", path))
			}
		}
	}

	if txOpen {
		if err := r.opts.EventLog.Commit(); err != nil {
			logger.Report(log, "Transaction Error", rerrors.NewSinkError("failed to commit transaction", err),
				zap.Int("lost_entries", len(result.Moved)))
		} else {
			result.Committed = true
		}
	}

	if len(result.Moved) > 0 || result.Failed > 0 {
		log.Info("Batch processed",
			zap.Int("paths", result.Paths),
			zap.Int("moved", len(result.Moved)),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
	if len(result.Moved) > 0 {
		r.batches++
		r.moved += len(result.Moved)
		r.lastBatch = r.now()
	}
	if r.opts.OnBatch != nil {
		r.opts.OnBatch(result)
	}
	return result
}

// Stats returns a snapshot of the router's state. It must be called from
// the goroutine driving the router, typically inside OnBatch.
func (r *Router) Stats() Stats {
	return Stats{
		Watched:   r.watchSet.Watched(),
		Pending:   r.accumulator.Len(),
		Batches:   r.batches,
		Moved:     r.moved,
		LastBatch: r.lastBatch,
	}
}

// Watched returns the directories currently watched
func (r *Router) Watched() []string {
	return r.watchSet.Watched()
}

// Pending returns the number of accumulated, unflushed paths
func (r *Router) Pending() int {
	return r.accumulator.Len()
}
