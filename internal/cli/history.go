package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/frouter/frouter/pkg/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// historyCmd lists recorded moves
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently routed files",
	Long: `List the most recent moves recorded in the event log, newest first.
Moves made in the same batch share a batch id.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of moves to display (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	settings := loadSettings(viper.GetViper(), false)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📜 frouter History\n")
	fmt.Fprintf(out, "═══════════════════════════════════════\n")

	if _, err := os.Stat(settings.Database.Path); err != nil {
		fmt.Fprintf(out, "\nNo files routed yet\n")
		return nil
	}

	eventLog, err := settings.Database.open(true)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer eventLog.Close()

	records, err := eventLog.Recent(limit)
	if err != nil {
		return fmt.Errorf("failed to read event log: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "\nNo files routed yet\n")
		return nil
	}

	when := color.New(color.FgHiBlack)
	name := color.New(color.FgCyan, color.Bold)
	dest := color.New(color.FgGreen)
	batch := color.New(color.FgYellow)

	lastBatch := ""
	for _, r := range records {
		if r.BatchID != lastBatch {
			fmt.Fprintf(out, "\n%s\n", batch.Sprintf("batch %s", utils.ShortID(r.BatchID)))
			lastBatch = r.BatchID
		}
		fmt.Fprintf(out, "  %s  %s → %s\n",
			when.Sprint(r.Timestamp),
			name.Sprint(r.Filename),
			dest.Sprint(r.Destination),
		)
	}

	total, err := eventLog.Count()
	if err == nil {
		fmt.Fprintf(out, "\nShowing %d of %d moves\n", len(records), total)
	}
	return nil
}
