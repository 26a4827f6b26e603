package cli

import (
	"fmt"

	"github.com/frouter/frouter/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect frouter configuration",
	Long:  `View the routing configuration as frouter parses it.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the parsed configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

// configView is the YAML shape of a parsed configuration
type configView struct {
	Directories map[string]string      `yaml:"directories"`
	Extensions  []config.FileExtension `yaml:"extensions"`
	Watching    []string               `yaml:"watching"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📋 frouter Configuration\n")
	fmt.Fprintf(out, "═══════════════════════════════════════\n\n")
	fmt.Fprintf(out, "📁 Config File: %s\n\n", path)

	yamlData, err := yaml.Marshal(configView{
		Directories: cfg.Directories(),
		Extensions:  cfg.Extensions(),
		Watching:    cfg.WatchDirectories(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	fmt.Fprintln(out, string(yamlData))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
