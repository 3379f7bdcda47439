package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/histdb/histdb/internal/errors"
	"github.com/histdb/histdb/pkg/types"
)

// Session is one worker's handle to the store: a dedicated connection plus
// the cache entries pending its current transaction. Not safe for use from
// multiple goroutines.
type Session struct {
	store   *Store
	conn    *sql.Conn
	pending []pendingID
}

// Write persists one event: every dimension resolution and the fact insert
// commit in a single transaction, so a failure leaves no partial rows.
// Returns the fact row id.
func (s *Session) Write(ctx context.Context, ev types.Event) (int64, error) {
	switch e := ev.(type) {
	case types.BrowsingEvent:
		return s.writeBrowsing(ctx, e)
	case types.EditorEvent:
		return s.writeEditor(ctx, e)
	default:
		return 0, errors.New(errors.ErrCategoryQueue, errors.CodeUnknownKind,
			fmt.Sprintf("unrecognized event type %T", ev))
	}
}

func (s *Session) writeBrowsing(ctx context.Context, e types.BrowsingEvent) (factID int64, err error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	urlID, err := s.resolveURL(ctx, tx, e.URL, e.Title)
	if err != nil {
		return 0, err
	}

	var userID interface{}
	if e.User != "" {
		id, err := s.resolveUser(ctx, tx, e.User)
		if err != nil {
			return 0, err
		}
		userID = id
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO browsing_events (type, url_id, timestamp, user_id) VALUES (?, ?, ?, ?)`,
		e.Type, urlID, e.Timestamp.Epoch(), userID)
	if err != nil {
		return 0, errors.NewStorageError(errors.CodeWriteFailed, "browsing event insert failed", err)
	}

	factID, err = res.LastInsertId()
	if err != nil {
		return 0, errors.NewStorageError(errors.CodeWriteFailed, "browsing event id unavailable", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewStorageError(errors.CodeWriteFailed, "browsing event commit failed", err)
	}

	s.publishPending()
	return factID, nil
}

func (s *Session) writeEditor(ctx context.Context, e types.EditorEvent) (factID int64, err error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	commandID, err := s.resolveCommand(ctx, tx, e.Command)
	if err != nil {
		return 0, err
	}
	bufferID, err := s.resolveBuffer(ctx, tx, e.Context.Buffer)
	if err != nil {
		return 0, err
	}

	dir, hasDir := "", false
	if e.Context.FileName != "" {
		dir, hasDir = filepath.Dir(e.Context.FileName), true
	}
	placeID, err := s.resolvePlace(ctx, tx, e.Host, dir, hasDir)
	if err != nil {
		return 0, err
	}

	modeID, err := s.resolveMajorMode(ctx, tx, e.Context.MajorMode)
	if err != nil {
		return 0, err
	}

	// No project in context means no projects row and a NULL reference.
	var projectID interface{}
	if e.Context.Project != "" {
		id, err := s.resolveProject(ctx, tx, e.Context.Project)
		if err != nil {
			return 0, err
		}
		projectID = id
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO emacs_events (timestamp, session_id, command_id, buffer_id, place_id, major_mode_id, project_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.Epoch(), e.SessionID, commandID, bufferID, placeID, modeID, projectID)
	if err != nil {
		return 0, errors.NewStorageError(errors.CodeWriteFailed, "editor event insert failed", err)
	}

	factID, err = res.LastInsertId()
	if err != nil {
		return 0, errors.NewStorageError(errors.CodeWriteFailed, "editor event id unavailable", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewStorageError(errors.CodeWriteFailed, "editor event commit failed", err)
	}

	s.publishPending()
	return factID, nil
}

func (s *Session) begin(ctx context.Context) (*sql.Tx, error) {
	// Discard pending entries from any earlier rolled-back write.
	s.pending = s.pending[:0]

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeWriteFailed, "failed to begin transaction", err)
	}
	return tx, nil
}

// publishPending moves the transaction's resolved ids into the shared cache.
// Only called after commit; a rolled-back id must never be cached.
func (s *Session) publishPending() {
	for _, p := range s.pending {
		s.store.cache.put(p.key, p.id)
	}
	s.pending = s.pending[:0]
}

// Close releases the session's connection back to the pool.
func (s *Session) Close() error {
	return s.conn.Close()
}
