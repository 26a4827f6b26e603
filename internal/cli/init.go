package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/frouter/frouter/internal/config"
	"github.com/spf13/cobra"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize frouter configuration",
	Long: `Write the default routing configuration.

The default routes PDF, JPG and PNG files out of ~/Downloads into
sub-folders. Edit the file to add directories and extensions.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite existing configuration")
}

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	path, err := configPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration already exists at %s. Use --force to overwrite", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.DefaultContent), 0644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	// Validate what was written so a broken default never ships silently.
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ frouter initialized\n")
	fmt.Fprintf(cmd.OutOrStdout(), "📁 Configuration: %s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "📂 Routing %d extension(s) from %d director(ies)\n",
		len(cfg.Extensions()), len(cfg.SourceDirectories()))
	fmt.Fprintf(cmd.OutOrStdout(), "\n🚀 Start routing with: frouter run\n")
	return nil
}
