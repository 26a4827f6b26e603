// Package database provides the event log frouter records moves in
package database

import (
	"errors"
	"fmt"

	"github.com/frouter/frouter/pkg/models"
)

// Supported event log backends
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

var (
	// ErrTxActive is returned by Begin while a transaction is still open
	ErrTxActive = errors.New("a transaction is already open")
	// ErrNoTx is returned by Append, Commit and Rollback outside a transaction
	ErrNoTx = errors.New("no transaction is open")
)

// EventLog is a durable, append-only record of completed moves. At most one
// transaction is open at a time.
type EventLog interface {
	Begin() error
	Append(rec models.MoveRecord) error
	Commit() error
	Rollback() error

	// Recent returns up to limit records, newest first
	Recent(limit int) ([]models.MoveRecord, error)
	Count() (int, error)
	// Backup writes a consistent copy of the log to path
	Backup(path string) error
	Close() error
}

// OpenOptions tune how the bolt backend opens its file. SQLite ignores them.
type OpenOptions struct {
	ReadOnly bool
	NoSync   bool
}

// Open opens the event log for backend at path
func Open(backend, path string, opts OpenOptions) (EventLog, error) {
	switch backend {
	case "", BackendSQLite:
		return OpenSQLite(path)
	case BackendBolt:
		m, err := NewManager(&Options{Path: path, ReadOnly: opts.ReadOnly, NoSync: opts.NoSync})
		if err != nil {
			return nil, err
		}
		if err := m.Open(); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported event log backend: %s", backend)
	}
}
