package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// backupCmd copies the event log
var backupCmd = &cobra.Command{
	Use:   "backup <path>",
	Short: "Copy the event log to a file",
	Long: `Write a consistent copy of the event log to path. The copy uses the
same backend and can be opened by pointing database.path at it.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	target := args[0]
	settings := loadSettings(viper.GetViper(), false)

	if _, err := os.Stat(settings.Database.Path); err != nil {
		return fmt.Errorf("no event log at %s", settings.Database.Path)
	}
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("%s already exists", target)
	}

	eventLog, err := settings.Database.open(true)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer eventLog.Close()

	if err := eventLog.Backup(target); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Event log copied to %s\n", target)
	return nil
}
