package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/frouter/frouter/pkg/logger"
	"github.com/frouter/frouter/pkg/models"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteLog stores moves in the logs table of a SQLite database
type SQLiteLog struct {
	db     *sql.DB
	path   string
	tx     *sql.Tx
	mu     sync.Mutex
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLiteLog, error) {
	if err := ensureDir(dirOf(path)); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	l := &SQLiteLog{db: db, path: path, logger: logger.Get()}
	if err := l.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	l.logger.Info("Event log opened", zap.String("backend", BackendSQLite), zap.String("path", path))
	return l, nil
}

// runMigrations applies the embedded migrations. The migrate instance is
// not closed because that would close l.db.
func (l *SQLiteLog) runMigrations() error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(l.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database schema is in a dirty state at version %d", version)
	}

	l.logger.Debug("Event log schema ready", zap.Uint("version", version))
	return nil
}

// Begin opens the transaction subsequent appends join
func (l *SQLiteLog) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tx != nil {
		return ErrTxActive
	}
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	l.tx = tx
	return nil
}

// Append inserts rec into the open transaction
func (l *SQLiteLog) Append(rec models.MoveRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tx == nil {
		return ErrNoTx
	}
	_, err := l.tx.Exec(
		"INSERT INTO logs (source, destination, filename, timestamp, filehash, batch_id) VALUES (?, ?, ?, ?, ?, ?)",
		rec.Source, rec.Destination, rec.Filename, rec.Timestamp, rec.Digest, rec.BatchID,
	)
	return err
}

// Commit makes every append since Begin durable
func (l *SQLiteLog) Commit() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tx == nil {
		return ErrNoTx
	}
	tx := l.tx
	l.tx = nil
	return tx.Commit()
}

// Rollback discards every append since Begin
func (l *SQLiteLog) Rollback() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tx == nil {
		return ErrNoTx
	}
	tx := l.tx
	l.tx = nil
	return tx.Rollback()
}

// Recent returns up to limit records, newest first
func (l *SQLiteLog) Recent(limit int) ([]models.MoveRecord, error) {
	q := "SELECT source, destination, filename, timestamp, filehash, batch_id FROM logs ORDER BY id DESC"
	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MoveRecord
	for rows.Next() {
		var r models.MoveRecord
		if err := rows.Scan(&r.Source, &r.Destination, &r.Filename, &r.Timestamp, &r.Digest, &r.BatchID); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of recorded moves
func (l *SQLiteLog) Count() (int, error) {
	var n int
	err := l.db.QueryRow("SELECT COUNT(*) FROM logs").Scan(&n)
	return n, err
}

// Backup writes a compacted copy of the database to path with VACUUM INTO.
// path must not exist yet.
func (l *SQLiteLog) Backup(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tx != nil {
		return ErrTxActive
	}
	if err := ensureDir(dirOf(path)); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	if _, err := l.db.Exec("VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}
	return nil
}

// Close rolls back any open transaction and closes the database
func (l *SQLiteLog) Close() error {
	l.mu.Lock()
	if l.tx != nil {
		l.tx.Rollback()
		l.tx = nil
	}
	l.mu.Unlock()
	return l.db.Close()
}
