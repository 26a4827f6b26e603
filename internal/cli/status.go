package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/frouter/frouter/internal/config"
	"github.com/frouter/frouter/pkg/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show frouter configuration and activity summary",
	Long: `Display what frouter would watch and route, and a summary of the
event log.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	settings := loadSettings(viper.GetViper(), false)
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "🎯 frouter Status\n")
	fmt.Fprintf(out, "═══════════════════════════════════════\n\n")

	fmt.Fprintf(out, "📋 Configuration\n")
	fmt.Fprintf(out, "───────────────────\n")
	fmt.Fprintf(out, "  File: %s\n", path)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(out, "  State: 🔴 %v\n\n", err)
	} else {
		fmt.Fprintf(out, "  State: 🟢 Valid\n")
		fmt.Fprintf(out, "  Delay: %s, debounce window: %s\n", settings.Delay, settings.DebounceWindow)
		fmt.Fprintf(out, "\n📂 Sources\n")
		fmt.Fprintf(out, "───────────────────\n")
		for _, dir := range cfg.SourceDirectories() {
			fmt.Fprintf(out, "  %s %s\n", dirState(dir), dir)
		}
		fmt.Fprintf(out, "\n🔀 Routes\n")
		fmt.Fprintf(out, "───────────────────\n")
		for _, e := range cfg.Extensions() {
			fmt.Fprintf(out, "  .%-6s → %s %s\n", e.Name, dirState(e.Path), e.Path)
		}
		fmt.Fprintf(out, "\n")
	}

	fmt.Fprintf(out, "🗄️  Event Log\n")
	fmt.Fprintf(out, "───────────────────\n")
	fmt.Fprintf(out, "  Backend: %s\n", settings.Database.Backend)
	fmt.Fprintf(out, "  Path: %s\n", settings.Database.Path)

	if _, err := os.Stat(settings.Database.Path); err != nil {
		fmt.Fprintf(out, "  Moves: none recorded yet\n")
		return nil
	}

	eventLog, err := settings.Database.open(true)
	if err != nil {
		fmt.Fprintf(out, "  State: 🔴 %v\n", err)
		return nil
	}
	defer eventLog.Close()

	total, err := eventLog.Count()
	if err != nil {
		return fmt.Errorf("failed to count moves: %w", err)
	}
	fmt.Fprintf(out, "  Moves: %d\n", total)

	if recent, err := eventLog.Recent(1); err == nil && len(recent) == 1 {
		last := recent[0]
		if t, err := last.Time(); err == nil {
			fmt.Fprintf(out, "  Last: %s, %s ago\n", last.Filename, utils.FormatDuration(time.Since(t)))
		} else {
			fmt.Fprintf(out, "  Last: %s at %s\n", last.Filename, last.Timestamp)
		}
	}
	return nil
}

func dirState(dir string) string {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "⚪"
	}
	return "🟢"
}
