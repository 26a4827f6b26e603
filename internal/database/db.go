package database

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/frouter/frouter/pkg/logger"
	"github.com/frouter/frouter/pkg/models"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// BucketMoves stores one JSON MoveRecord per completed move
const BucketMoves = "moves"

// Manager is the BoltDB-backed event log
type Manager struct {
	db      *bolt.DB
	path    string
	logger  *zap.Logger
	mu      sync.RWMutex
	isOpen  bool
	options *Options
	tx      *bolt.Tx
}

// Options represents database options
type Options struct {
	Path     string        `json:"path"`
	FileMode uint32        `json:"file_mode"`
	Timeout  time.Duration `json:"timeout"`
	ReadOnly bool          `json:"read_only"` // shared lock; the file must already exist
	NoSync   bool          `json:"no_sync"`
}

// DefaultOptions returns default database options
func DefaultOptions() *Options {
	home, _ := os.UserHomeDir()
	return &Options{
		Path:     filepath.Join(home, ".frouter", "frouter.bolt"),
		FileMode: 0600,
		Timeout:  1 * time.Second,
	}
}

// NewManager creates a new database manager
func NewManager(options *Options) (*Manager, error) {
	defaults := DefaultOptions()
	if options == nil {
		options = defaults
	}
	if options.Path == "" {
		options.Path = defaults.Path
	}
	if options.FileMode == 0 {
		options.FileMode = defaults.FileMode
	}
	if options.Timeout == 0 {
		options.Timeout = defaults.Timeout
	}

	return &Manager{
		path:    options.Path,
		logger:  logger.Get(),
		options: options,
	}, nil
}

// Open opens the database connection
func (m *Manager) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isOpen {
		return nil
	}

	if m.options.ReadOnly {
		if _, err := os.Stat(m.path); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
	} else if err := ensureDir(dirOf(m.path)); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(m.path, os.FileMode(m.options.FileMode), &bolt.Options{
		Timeout:  m.options.Timeout,
		ReadOnly: m.options.ReadOnly,
		NoSync:   m.options.NoSync,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	m.db = db
	m.isOpen = true

	if !m.options.ReadOnly {
		if err := m.initBuckets(); err != nil {
			m.db.Close()
			m.isOpen = false
			return fmt.Errorf("failed to initialize buckets: %w", err)
		}
	}

	m.logger.Info("Event log opened", zap.String("backend", BackendBolt), zap.String("path", m.path))
	return nil
}

// Close rolls back any open transaction and closes the database
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpen || m.db == nil {
		return nil
	}

	if m.tx != nil {
		m.tx.Rollback()
		m.tx = nil
	}

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	m.isOpen = false
	m.logger.Info("Event log closed")
	return nil
}

func (m *Manager) initBuckets() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketMoves)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", BucketMoves, err)
		}
		return nil
	})
}

// IsOpen checks if the database is open
func (m *Manager) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOpen
}

// Begin starts the writable transaction subsequent appends join
func (m *Manager) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpen {
		return fmt.Errorf("database is not open")
	}
	if m.tx != nil {
		return ErrTxActive
	}

	tx, err := m.db.Begin(true)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	m.tx = tx
	return nil
}

// Append stores rec under the next sequence number of the moves bucket
func (m *Manager) Append(rec models.MoveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tx == nil {
		return ErrNoTx
	}

	b := m.tx.Bucket([]byte(BucketMoves))
	if b == nil {
		return fmt.Errorf("bucket %s not found", BucketMoves)
	}

	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.Put(itob(seq), data)
}

// Commit makes every append since Begin durable
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tx == nil {
		return ErrNoTx
	}
	tx := m.tx
	m.tx = nil
	return tx.Commit()
}

// Rollback discards every append since Begin
func (m *Manager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tx == nil {
		return ErrNoTx
	}
	tx := m.tx
	m.tx = nil
	return tx.Rollback()
}

// Recent returns up to limit records, newest first
func (m *Manager) Recent(limit int) ([]models.MoveRecord, error) {
	var records []models.MoveRecord

	err := m.view(func(b *bolt.Bucket) error {
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec models.MoveRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				m.logger.Warn("Skipping unreadable move record", zap.Error(err))
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// Count returns the number of recorded moves
func (m *Manager) Count() (int, error) {
	count := 0
	err := m.view(func(b *bolt.Bucket) error {
		count = b.Stats().KeyN
		return nil
	})
	return count, err
}

func (m *Manager) view(fn func(*bolt.Bucket) error) error {
	if !m.IsOpen() {
		return fmt.Errorf("database is not open")
	}
	return m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketMoves))
		if b == nil {
			return fmt.Errorf("bucket %s not found", BucketMoves)
		}
		return fn(b)
	})
}

// Backup creates a consistent copy of the database at path
func (m *Manager) Backup(path string) error {
	if !m.IsOpen() {
		return fmt.Errorf("database is not open")
	}

	if err := ensureDir(dirOf(path)); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	return m.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func dirOf(path string) string {
	return filepath.Dir(path)
}

// ensureDir ensures a directory exists
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
