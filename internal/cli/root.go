// Package cli implements the command-line interface for frouter
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/frouter/frouter/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile     string
	verboseMode bool
	logger      *zap.Logger
	version     string
	buildDate   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "frouter",
	Short: "frouter - Route new files into folders by extension",
	Long: `frouter watches your download folders and moves each new file into
the directory configured for its extension once activity has settled.

Every batch of moves is recorded in a local event log so you can see
where a file went.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, bd string) {
	version = v
	buildDate = bd
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildDate)
}

func init() {
	// Replaced by the file logger in commands that need one
	logger = zap.NewNop()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/frouter/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(backupCmd)
}

// initConfig reads application settings from the routing config file and
// FROUTER_* environment variables.
func initConfig() {
	setDefaults(viper.GetViper())

	path, err := configPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("toml")

	viper.SetEnvPrefix("FROUTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing file is created later by the commands that need it.
	if err := viper.ReadInConfig(); err == nil && verboseMode {
		fmt.Printf("📁 Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// configPath returns the --config value or the default location
func configPath() (string, error) {
	if cfgFile != "" {
		return config.ExpandHome(cfgFile), nil
	}
	return config.DefaultPath()
}
