package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/frouter/frouter/internal/config"
	"github.com/frouter/frouter/internal/core/interfaces"
	"github.com/frouter/frouter/internal/fileops"
	"github.com/frouter/frouter/internal/router"
	"github.com/frouter/frouter/internal/watchers/ignore"
	"github.com/frouter/frouter/internal/watchers/local"
	pplogger "github.com/frouter/frouter/pkg/logger"
	"github.com/frouter/frouter/pkg/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// runCmd starts the router
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start watching and routing files",
	Long: `Start watching every configured directory and route new files into
the destination of their extension.

Files are moved once no new activity has been seen for the configured
delay. Editing the config file while frouter runs applies the new rules
without a restart.`,
	RunE: runRouter,
}

func init() {
	runCmd.Flags().String("ignore-file", "", "File with extra ignore patterns (default is .frouterignore next to the config)")
}

func runRouter(cmd *cobra.Command, args []string) error {
	ignoreFile, _ := cmd.Flags().GetString("ignore-file")

	path, err := configPath()
	if err != nil {
		return err
	}
	created, err := config.EnsureExists(path)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("📝 Created default configuration at %s\n", path)
		// Pick up the defaults written just now.
		_ = viper.ReadInConfig()
	}

	settings := loadSettings(viper.GetViper(), verboseMode)

	if err := pplogger.Initialize(settings.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer pplogger.Sync()
	logger = pplogger.Get()

	eventLog, err := settings.Database.open(false)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer eventLog.Close()

	hasher, err := fileops.NewFileHasher(settings.Hash)
	if err != nil {
		return err
	}

	if ignoreFile == "" {
		ignoreFile = filepath.Join(filepath.Dir(path), ".frouterignore")
	}
	matcher := ignore.NewMatcher()
	if err := matcher.LoadFromFile(ignoreFile); err != nil {
		return fmt.Errorf("failed to load ignore file: %w", err)
	}

	watcher, err := local.NewFSWatcher(matcher)
	if err != nil {
		return err
	}
	defer watcher.Close()

	r, err := router.New(router.Options{
		ConfigPath:     path,
		Delay:          settings.Delay,
		DebounceWindow: settings.DebounceWindow,
		Tick:           settings.Tick,
		Loader:         interfaces.ConfigLoaderFunc(config.Load),
		Watcher:        watcher,
		Mover:          fileops.NewCopyMover(),
		Hasher:         hasher,
		EventLog:       eventLog,
		Ignore:         matcher,
		Logger:         logger,
		OnBatch:        printBatch,
		OnReload:       printReload,
	})
	if err != nil {
		return err
	}

	fmt.Printf("🚀 Starting frouter\n")
	fmt.Printf("📁 Config: %s\n", path)
	fmt.Printf("⏱️  Delay: %s\n", settings.Delay)
	fmt.Printf("⏳ Debounce Window: %s\n", settings.DebounceWindow)
	fmt.Printf("🗄️  Event Log: %s (%s)\n", settings.Database.Path, settings.Database.Backend)
	if patterns := matcher.GetPatterns(); len(patterns) > 0 {
		fmt.Printf("🚫 Ignore Patterns: %v\n", patterns)
	}
	fmt.Printf("\n")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := r.Start(); err != nil {
		return err
	}
	fmt.Printf("👀 Watching %d directories (press Ctrl+C to stop)\n", len(r.Watched()))

	started := time.Now()
	err = r.Serve(ctx)

	stats := r.Stats()
	fmt.Printf("\n🛑 Stopped after %s: %d file(s) routed in %d batch(es)\n",
		utils.FormatDuration(time.Since(started)), stats.Moved, stats.Batches)
	if err != nil {
		logger.Error("Router stopped with error", zap.Error(err))
	}
	return err
}

func printBatch(b router.BatchResult) {
	if len(b.Moved) == 0 && b.Failed == 0 {
		return
	}
	for _, m := range b.Moved {
		fmt.Printf("  ✅ %s → %s\n", m.Source, m.Destination)
	}
	if b.Failed > 0 {
		fmt.Printf("  ❌ %d file(s) could not be routed, see the error log\n", b.Failed)
	}
	if len(b.Moved) > 0 && !b.Committed {
		fmt.Printf("  ⚠️  Moves were not recorded in the event log\n")
	}
}

func printReload(r router.ReconcileResult) {
	fmt.Printf("🔄 Configuration reloaded")
	if r.Changed() {
		fmt.Printf(" (+%d / -%d directories)", len(r.Watched), len(r.Unwatched))
	}
	fmt.Printf("\n")
	for _, f := range r.Errors {
		fmt.Printf("  ❌ %s: %v\n", f.Path, f.Err)
	}
}
