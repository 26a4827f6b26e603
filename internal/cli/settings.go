package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/frouter/frouter/internal/config"
	"github.com/frouter/frouter/internal/database"
	"github.com/frouter/frouter/internal/router"
	pplogger "github.com/frouter/frouter/pkg/logger"
	"github.com/spf13/viper"
)

// Settings are the application knobs read from the optional [routing],
// [logging] and [database] sections
type Settings struct {
	Delay          time.Duration
	DebounceWindow time.Duration
	Tick           time.Duration
	Hash           string

	Database DatabaseSettings
	Logging  *pplogger.LogConfig
}

// DatabaseSettings selects the event log backend
type DatabaseSettings struct {
	Backend string
	Path    string
	NoSync  bool
}

// open opens the configured event log. Inspection commands pass readOnly
// so they never create or write the file.
func (d DatabaseSettings) open(readOnly bool) (database.EventLog, error) {
	return database.Open(d.Backend, d.Path, database.OpenOptions{ReadOnly: readOnly, NoSync: d.NoSync})
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	logs := pplogger.DefaultConfig()

	v.SetDefault("routing.delay", router.DefaultDelay)
	v.SetDefault("routing.debounce_window", router.DefaultDebounceWindow)
	v.SetDefault("routing.tick", router.DefaultTick)
	v.SetDefault("routing.hash", "sha256")

	v.SetDefault("logging.level", logs.Level)
	v.SetDefault("logging.file", logs.OutputPath)
	v.SetDefault("logging.error_file", logs.ErrorPath)
	v.SetDefault("logging.max_size", logs.MaxSize)
	v.SetDefault("logging.max_backups", logs.MaxBackups)
	v.SetDefault("logging.max_age", logs.MaxAge)
	v.SetDefault("logging.json", logs.EnableJSON)

	v.SetDefault("database.backend", database.BackendSQLite)
	v.SetDefault("database.path", filepath.Join(home, ".frouter", "frouter.db"))
	v.SetDefault("database.no_sync", false)
}

// loadSettings reads Settings from v. Verbose mode forces debug logging to
// the console as well as the log file.
func loadSettings(v *viper.Viper, verbose bool) Settings {
	logs := pplogger.DefaultConfig()
	logs.Level = v.GetString("logging.level")
	logs.OutputPath = config.ExpandHome(v.GetString("logging.file"))
	logs.ErrorPath = config.ExpandHome(v.GetString("logging.error_file"))
	logs.MaxSize = v.GetInt("logging.max_size")
	logs.MaxBackups = v.GetInt("logging.max_backups")
	logs.MaxAge = v.GetInt("logging.max_age")
	logs.EnableJSON = v.GetBool("logging.json")
	if verbose {
		logs.Level = "debug"
		logs.Development = true
	}

	return Settings{
		Delay:          v.GetDuration("routing.delay"),
		DebounceWindow: v.GetDuration("routing.debounce_window"),
		Tick:           v.GetDuration("routing.tick"),
		Hash:           v.GetString("routing.hash"),
		Database: DatabaseSettings{
			Backend: v.GetString("database.backend"),
			Path:    config.ExpandHome(v.GetString("database.path")),
			NoSync:  v.GetBool("database.no_sync"),
		},
		Logging: logs,
	}
}
