package store

import (
	"context"
	"database/sql"

	"github.com/histdb/histdb/internal/errors"
)

// pendingID is a resolved mapping waiting for its transaction to commit
// before it may enter the shared cache.
type pendingID struct {
	key string
	id  int64
}

// resolveDim looks up a dimension row by natural key, creating it when
// absent. The insert uses OR IGNORE so a concurrent writer creating the same
// key first is not an error; the follow-up select returns whichever row won.
// All statements run inside the caller's transaction.
func (s *Session) resolveDim(ctx context.Context, tx *sql.Tx, key, selectSQL string, selectArgs []interface{}, insertSQL string, insertArgs []interface{}) (int64, error) {
	if id, ok := s.store.cache.get(key); ok {
		return id, nil
	}

	var id int64
	err := tx.QueryRowContext(ctx, selectSQL, selectArgs...).Scan(&id)
	if err == nil {
		s.pending = append(s.pending, pendingID{key: key, id: id})
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, errors.NewStorageError(errors.CodeResolveFailed, "dimension lookup failed", err)
	}

	if _, err := tx.ExecContext(ctx, insertSQL, insertArgs...); err != nil {
		return 0, errors.NewStorageError(errors.CodeConstraintViolation, "dimension insert failed", err)
	}

	// The insert is a no-op when another writer created the row first, so
	// the id always comes from a re-select.
	if err := tx.QueryRowContext(ctx, selectSQL, selectArgs...).Scan(&id); err != nil {
		return 0, errors.NewStorageError(errors.CodeResolveFailed, "dimension re-select failed", err)
	}

	s.pending = append(s.pending, pendingID{key: key, id: id})
	return id, nil
}

func (s *Session) resolveUser(ctx context.Context, tx *sql.Tx, username string) (int64, error) {
	return s.resolveDim(ctx, tx,
		cacheKey("users", username),
		`SELECT id FROM users WHERE username = ?`, []interface{}{username},
		`INSERT OR IGNORE INTO users (username) VALUES (?)`, []interface{}{username})
}

// resolveURL stores the title seen on first observation; later writes with a
// different title do not update the row (dimension rows are immutable here).
func (s *Session) resolveURL(ctx context.Context, tx *sql.Tx, url, title string) (int64, error) {
	return s.resolveDim(ctx, tx,
		cacheKey("urls", url),
		`SELECT id FROM urls WHERE url = ?`, []interface{}{url},
		`INSERT OR IGNORE INTO urls (url, title) VALUES (?, ?)`, []interface{}{url, nullString(title)})
}

func (s *Session) resolveProject(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	return s.resolveDim(ctx, tx,
		cacheKey("projects", name),
		`SELECT id FROM projects WHERE name = ?`, []interface{}{name},
		`INSERT OR IGNORE INTO projects (name) VALUES (?)`, []interface{}{name})
}

func (s *Session) resolveBuffer(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	return s.resolveDim(ctx, tx,
		cacheKey("buffers", name),
		`SELECT id FROM buffers WHERE name = ?`, []interface{}{name},
		`INSERT OR IGNORE INTO buffers (name) VALUES (?)`, []interface{}{name})
}

// resolvePlace treats an absent dir as the no-value marker: lookups use IS
// so NULL matches NULL, and the unique index collapses NULLs via COALESCE.
func (s *Session) resolvePlace(ctx context.Context, tx *sql.Tx, host, dir string, hasDir bool) (int64, error) {
	var dirArg interface{}
	dirKey := ""
	if hasDir {
		dirArg = dir
		dirKey = dir
	}
	return s.resolveDim(ctx, tx,
		cacheKey("places", host, dirKey),
		`SELECT id FROM places WHERE host = ? AND dir IS ?`, []interface{}{host, dirArg},
		`INSERT OR IGNORE INTO places (host, dir) VALUES (?, ?)`, []interface{}{host, dirArg})
}

func (s *Session) resolveCommand(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	return s.resolveDim(ctx, tx,
		cacheKey("emacs_commands", name),
		`SELECT id FROM emacs_commands WHERE name = ?`, []interface{}{name},
		`INSERT OR IGNORE INTO emacs_commands (name) VALUES (?)`, []interface{}{name})
}

func (s *Session) resolveMajorMode(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	return s.resolveDim(ctx, tx,
		cacheKey("emacs_major_modes", name),
		`SELECT id FROM emacs_major_modes WHERE name = ?`, []interface{}{name},
		`INSERT OR IGNORE INTO emacs_major_modes (name) VALUES (?)`, []interface{}{name})
}

// nullString maps the empty string to NULL for optional text columns.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
