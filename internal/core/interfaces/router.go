// Package interfaces declares the collaborators the router drives
package interfaces

import (
	"github.com/frouter/frouter/internal/config"
	"github.com/frouter/frouter/pkg/models"
)

// ConfigLoader produces a fresh Configuration from a file
type ConfigLoader interface {
	Load(path string) (*config.Configuration, error)
}

// Hasher computes a content digest for a file
type Hasher interface {
	Digest(path string) (string, error)
}

// Mover copies source to destination and then removes source
type Mover interface {
	Move(source, destination string) error
}

// EventLog durably records completed moves. Appends between Begin and
// Commit are stored as one unit.
type EventLog interface {
	Begin() error
	Append(rec models.MoveRecord) error
	Commit() error
	Rollback() error
}

// ConfigLoaderFunc adapts a function to ConfigLoader
type ConfigLoaderFunc func(path string) (*config.Configuration, error)

// Load calls f(path)
func (f ConfigLoaderFunc) Load(path string) (*config.Configuration, error) {
	return f(path)
}
