package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Session describes one merge invocation.
type Session struct {
	ID         string `json:"id"`
	CreatedSeq int64  `json:"created_seq"`
	Runs       int    `json:"runs"`
	Method     string `json:"method"`
	BatchSize  int    `json:"batch_size"`
	Online     bool   `json:"online"`
}

// SessionParams are the merge settings recorded with a new session.
type SessionParams struct {
	Runs      int
	Method    string
	BatchSize int
	Online    bool
}

// CreateSession allocates a session with a time-ordered UUIDv7 id and the
// next created_seq.
func (s *Store) CreateSession(ctx context.Context, p SessionParams) (Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("create session: generate id: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, fmt.Errorf("create session: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(created_seq), 0) + 1 FROM sessions`).Scan(&seq); err != nil {
		return Session{}, fmt.Errorf("create session: next seq: %w", err)
	}

	sess := Session{
		ID:         id.String(),
		CreatedSeq: seq,
		Runs:       p.Runs,
		Method:     p.Method,
		BatchSize:  p.BatchSize,
		Online:     p.Online,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_seq, runs, method, batch_size, online)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.CreatedSeq, sess.Runs, sess.Method, sess.BatchSize, sess.Online)
	if err != nil {
		return Session{}, fmt.Errorf("create session: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("create session: commit: %w", err)
	}
	return sess, nil
}

// ReadSession retrieves a session by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_seq, runs, method, batch_size, online
		FROM sessions
		WHERE id = ?
	`, id)
	return scanSession(row)
}

// LatestSession returns the most recently created session.
// Returns sql.ErrNoRows if the database holds none.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_seq, runs, method, batch_size, online
		FROM sessions
		ORDER BY created_seq DESC
		LIMIT 1
	`)
	return scanSession(row)
}

// ListSessions returns every session ordered by created_seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_seq, runs, method, batch_size, online
		FROM sessions
		ORDER BY created_seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.CreatedSeq, &sess.Runs, &sess.Method, &sess.BatchSize, &sess.Online)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, err
	}
	if err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}
