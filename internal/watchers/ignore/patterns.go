// Package ignore filters out files that should never be routed, such as
// in-progress browser downloads and editor swap files.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// defaultIgnores are always applied, matched against the base name
var defaultIgnores = []string{
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	"*.crdownload",
	"*.part",
	"*.partial",
	"*.download",
	"*.opdownload",
	"*.tmp",
	"*.swp",
	"*.swo",
	"*~",
	".#*",
	"#*#",
	".~lock.*",
}

// Matcher holds glob patterns checked against a path's base name
type Matcher struct {
	patterns []Pattern
}

// Pattern represents a single ignore pattern
type Pattern struct {
	Pattern    string
	IsNegation bool // Patterns starting with !
}

// NewMatcher creates a matcher with only the default patterns
func NewMatcher() *Matcher {
	return &Matcher{}
}

// LoadFromFile adds patterns from a file, one per line, # for comments.
// A missing file is not an error.
func (m *Matcher) LoadFromFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// AddPatterns adds multiple patterns to the matcher
func (m *Matcher) AddPatterns(patterns []string) {
	for _, pattern := range patterns {
		m.AddPattern(pattern)
	}
}

// AddPattern adds a single pattern to the matcher
func (m *Matcher) AddPattern(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	p := Pattern{Pattern: pattern}
	if strings.HasPrefix(pattern, "!") {
		p.IsNegation = true
		p.Pattern = pattern[1:]
	}

	m.patterns = append(m.patterns, p)
}

// ShouldIgnore reports whether path must be skipped. User patterns are
// evaluated in order so a later negation can re-include a file.
func (m *Matcher) ShouldIgnore(path string) bool {
	base := filepath.Base(path)

	ignored := false
	for _, pattern := range defaultIgnores {
		if matched, _ := filepath.Match(pattern, base); matched {
			ignored = true
			break
		}
	}

	for _, p := range m.patterns {
		if matched, _ := filepath.Match(p.Pattern, base); matched {
			ignored = !p.IsNegation
		}
	}

	return ignored
}

// GetPatterns returns all user patterns
func (m *Matcher) GetPatterns() []string {
	result := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		if p.IsNegation {
			result[i] = "!" + p.Pattern
		} else {
			result[i] = p.Pattern
		}
	}
	return result
}
