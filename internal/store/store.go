// Package store persists activity events to a SQLite star schema.
//
// The Store owns the database file and the shared dimension-id cache. Each
// pipeline worker opens its own Session, a dedicated connection, so event
// transactions never share a handle across goroutines.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/histdb/histdb/internal/errors"
)

// Options holds tunables for opening a Store.
type Options struct {
	// BusyTimeout is the SQLite busy handler timeout (default 5s).
	BusyTimeout time.Duration

	// MaxSessions bounds concurrent dedicated connections (default 4).
	MaxSessions int
}

// Store is the shared handle to the event database.
type Store struct {
	db    *sql.DB
	path  string
	cache *dimCache
}

// Open opens (creating if needed) the database at path and bootstraps the
// schema. WAL mode with immediate transactions keeps concurrent writers
// serialized on the write lock instead of failing on lock upgrade.
func Open(path string, opts Options) (*Store, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 4
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
		path, opts.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeOpenFailed, "failed to open database", err)
	}
	db.SetMaxOpenConns(opts.MaxSessions)
	db.SetMaxIdleConns(opts.MaxSessions)

	s := &Store{
		db:    db,
		path:  path,
		cache: newDimCache(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return errors.NewStorageError(errors.CodeOpenFailed, "failed to initialize schema", err)
	}
	return nil
}

// NewSession reserves a dedicated connection for one worker.
func (s *Store) NewSession(ctx context.Context) (*Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeOpenFailed, "failed to reserve connection", err)
	}
	return &Session{store: s, conn: conn}, nil
}

// Snapshot writes a consistent copy of the database to destPath using
// VACUUM INTO. The copy is compacted and safe to take while writers run.
func (s *Store) Snapshot(ctx context.Context, destPath string) error {
	quoted := strings.ReplaceAll(destPath, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return errors.Wrap(errors.ErrCategoryBackup, errors.CodeSnapshotFailed, "vacuum into failed", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying pool for read-side queries in tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
