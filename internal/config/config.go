// Package config loads the routing configuration: which directories are
// watched and where each file extension is sent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	rerrors "github.com/frouter/frouter/pkg/errors"
	"github.com/spf13/viper"
)

// enabledSuffix marks the sibling key that turns a directory entry on
const enabledSuffix = "_enabled"

// FileExtension routes files with extension Name into Path
type FileExtension struct {
	Name string `mapstructure:"name" yaml:"name"`
	Path string `mapstructure:"path" yaml:"path"`
}

// Configuration is an immutable snapshot of the routing rules. A reload
// always produces a new value.
type Configuration struct {
	directories map[string]string
	extensions  []FileExtension
}

// New builds a Configuration from already-resolved values
func New(directories map[string]string, extensions []FileExtension) *Configuration {
	dirs := make(map[string]string, len(directories))
	for k, v := range directories {
		dirs[k] = filepath.Clean(v)
	}
	exts := make([]FileExtension, len(extensions))
	for i, e := range extensions {
		exts[i] = FileExtension{Name: e.Name, Path: filepath.Clean(e.Path)}
	}
	return &Configuration{directories: dirs, extensions: exts}
}

// Empty returns a configuration that watches nothing
func Empty() *Configuration {
	return New(nil, nil)
}

// Directories returns a copy of the logical name to path mapping
func (c *Configuration) Directories() map[string]string {
	out := make(map[string]string, len(c.directories))
	for k, v := range c.directories {
		out[k] = v
	}
	return out
}

// Extensions returns a copy of the enabled extensions in declared order
func (c *Configuration) Extensions() []FileExtension {
	out := make([]FileExtension, len(c.extensions))
	copy(out, c.extensions)
	return out
}

// SourceDirectories returns the sorted, deduplicated directory values
func (c *Configuration) SourceDirectories() []string {
	return uniqueSorted(mapValues(c.directories))
}

// WatchDirectories returns every directory that must be watched: the
// source directories plus all extension destinations.
func (c *Configuration) WatchDirectories() []string {
	all := mapValues(c.directories)
	for _, e := range c.extensions {
		all = append(all, e.Path)
	}
	return uniqueSorted(all)
}

// MatchExtension finds the first extension whose name equals the file's
// final extension, ignoring case.
func (c *Configuration) MatchExtension(path string) (FileExtension, bool) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return FileExtension{}, false
	}
	for _, e := range c.extensions {
		if strings.EqualFold(strings.TrimPrefix(e.Name, "."), ext) {
			return e, true
		}
	}
	return FileExtension{}, false
}

type rawExtension struct {
	Name    string `mapstructure:"name"`
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

// Load reads a TOML routing configuration from path
func Load(path string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, rerrors.NewConfigError(fmt.Sprintf("failed to read %s", path), err)
	}

	if !v.IsSet("directories") {
		return nil, rerrors.NewConfigError("missing [directories] table", nil)
	}
	rawDirs := v.GetStringMap("directories")

	directories := make(map[string]string)
	for name, value := range rawDirs {
		if strings.HasSuffix(name, enabledSuffix) {
			continue
		}
		enabled, _ := rawDirs[name+enabledSuffix].(bool)
		if !enabled {
			continue
		}
		dir, ok := value.(string)
		if !ok || dir == "" {
			return nil, rerrors.NewConfigError(fmt.Sprintf("directory %q must be a path string", name), nil)
		}
		directories[name] = resolve(dir)
	}

	var rawExts []rawExtension
	if err := v.UnmarshalKey("extensions", &rawExts); err != nil {
		return nil, rerrors.NewConfigError("malformed [[extensions]] entries", err)
	}

	var extensions []FileExtension
	for i, e := range rawExts {
		if !e.Enabled {
			continue
		}
		if e.Name == "" || e.Path == "" {
			return nil, rerrors.NewConfigError(fmt.Sprintf("extension #%d needs both name and path", i+1), nil)
		}
		extensions = append(extensions, FileExtension{Name: e.Name, Path: resolve(e.Path)})
	}

	return New(directories, extensions), nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimLeft(rest, "/"))
}

// resolve expands ~ and makes path absolute
func resolve(path string) string {
	path = ExpandHome(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// DefaultPath returns ~/.config/frouter/config.toml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", rerrors.NewConfigError("failed to fetch home directory", err)
	}
	return filepath.Join(home, ".config", "frouter", "config.toml"), nil
}

// DefaultContent is written when no configuration exists yet
const DefaultContent = `[directories]
downloads = "~/Downloads"
downloads_enabled = true

[[extensions]]
name = "pdf"
path = "~/Downloads/PDF"
enabled = true

[[extensions]]
name = "jpg"
path = "~/Downloads/IMAGES/JPG"
enabled = true

[[extensions]]
name = "png"
path = "~/Downloads/IMAGES/PNG"
enabled = true

[routing]
delay = "10s"
debounce_window = "10s"
tick = "1s"
`

// EnsureExists writes DefaultContent to path unless a file is already
// there. It reports whether a file was created.
func EnsureExists(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, rerrors.NewConfigError("failed to stat configuration", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, rerrors.NewConfigError("failed to create config directory", err)
	}
	if err := os.WriteFile(path, []byte(DefaultContent), 0644); err != nil {
		return false, rerrors.NewConfigError("failed to write default config", err)
	}
	return true, nil
}

func mapValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
