// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

// Package sqlite implements store.SessionStore on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/intelbridge/intelbridge/internal/store"
	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

// Compile-time interface check.
var _ store.SessionStore = (*SessionStore)(nil)

// SessionStore implements store.SessionStore backed by SQLite.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore opens (or creates) a SQLite database at dbPath and
// initialises the sessions and messages tables.
func NewSessionStore(dbPath string) (*SessionStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, ibrerr.Wrap(err, ibrerr.CodeStoreDatabaseFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, ibrerr.Wrap(err, ibrerr.CodeStoreDatabaseFailure, "pinging sqlite db")
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, ibrerr.Wrap(err, ibrerr.CodeStoreDatabaseFailure, "migrating sqlite db")
	}

	return &SessionStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	archived   INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at);

CREATE TABLE IF NOT EXISTS messages (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL,
	role              TEXT NOT NULL,
	content           TEXT NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	tool_calls        TEXT NOT NULL DEFAULT '[]',
	created_at        TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

func (s *SessionStore) CreateSession(ctx context.Context, session *store.Session) error {
	const q = `INSERT INTO sessions (id, user_id, title, archived, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		session.ID,
		session.UserID,
		session.Title,
		boolToInt(session.Archived),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "creating session %s", session.ID)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	const q = `SELECT id, user_id, title, archived, created_at, updated_at
FROM sessions WHERE id = ?`

	var sess store.Session
	var archived int
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Title,
		&archived,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ibrerr.Errorf(ibrerr.CodeStoreSessionNotFound, "session %s not found", id)
	}
	if err != nil {
		return nil, ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "getting session %s", id)
	}

	sess.Archived = archived != 0
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)

	return &sess, nil
}

func (s *SessionStore) UpdateSession(ctx context.Context, session *store.Session) error {
	const q = `UPDATE sessions SET user_id = ?, title = ?, archived = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, q,
		session.UserID,
		session.Title,
		boolToInt(session.Archived),
		formatTime(time.Now()),
		session.ID,
	)
	if err != nil {
		return ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "updating session %s", session.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "checking rows affected for session %s", session.ID)
	}
	if rows == 0 {
		return ibrerr.Errorf(ibrerr.CodeStoreSessionNotFound, "session %s not found", session.ID)
	}
	return nil
}

func (s *SessionStore) ListSessions(ctx context.Context, userID string, opts store.ListOpts) ([]*store.Session, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	const q = `SELECT id, user_id, title, archived, created_at, updated_at
FROM sessions WHERE user_id = ? ORDER BY updated_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, userID, limit, opts.Offset)
	if err != nil {
		return nil, ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "listing sessions for user %s", userID)
	}
	defer rows.Close()

	var sessions []*store.Session
	for rows.Next() {
		var sess store.Session
		var archived int
		var createdAt, updatedAt string
		if err := rows.Scan(
			&sess.ID,
			&sess.UserID,
			&sess.Title,
			&archived,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, ibrerr.Wrap(err, ibrerr.CodeStoreDatabaseFailure, "scanning session row")
		}
		sess.Archived = archived != 0
		sess.CreatedAt = parseTime(createdAt)
		sess.UpdatedAt = parseTime(updatedAt)
		sessions = append(sessions, &sess)
	}

	if err := rows.Err(); err != nil {
		return nil, ibrerr.Wrap(err, ibrerr.CodeStoreDatabaseFailure, "iterating session rows")
	}
	return sessions, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "deleting session %s", id)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "checking rows affected for session %s", id)
	}
	if rows == 0 {
		return ibrerr.Errorf(ibrerr.CodeStoreSessionNotFound, "session %s not found", id)
	}
	return nil
}

// AppendMessage inserts the message and bumps the session's updated_at in
// one transaction.
func (s *SessionStore) AppendMessage(ctx context.Context, sessionID string, msg *store.Message) error {
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return ibrerr.Wrap(err, ibrerr.CodeStoreInvalidInput, "marshalling tool call log")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ibrerr.Wrap(err, ibrerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer tx.Rollback()

	const q = `INSERT INTO messages (id, session_id, role, content, prompt_tokens, completion_tokens, total_tokens, tool_calls, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := tx.ExecContext(ctx, q,
		msg.ID,
		sessionID,
		string(msg.Role),
		msg.Content,
		msg.Usage.PromptTokens,
		msg.Usage.CompletionTokens,
		msg.Usage.TotalTokens,
		string(toolCalls),
		formatTime(msg.CreatedAt),
	); err != nil {
		return ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "appending message %s to session %s", msg.ID, sessionID)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), sessionID,
	)
	if err != nil {
		return ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "bumping session %s", sessionID)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "checking rows affected for session %s", sessionID)
	}
	if rows == 0 {
		return ibrerr.Errorf(ibrerr.CodeStoreSessionNotFound, "session %s not found", sessionID)
	}

	if err := tx.Commit(); err != nil {
		return ibrerr.Wrap(err, ibrerr.CodeStoreDatabaseFailure, "committing message append")
	}
	return nil
}

const messageColumns = `id, session_id, role, content, prompt_tokens, completion_tokens, total_tokens, tool_calls, created_at`

func (s *SessionStore) ListMessages(ctx context.Context, sessionID string) ([]*store.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE session_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "listing messages for session %s", sessionID)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *SessionStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*store.Message, error) {
	// Sub-select the N most recent, then re-order chronologically.
	q := `SELECT ` + messageColumns + ` FROM (
	SELECT ` + messageColumns + ` FROM messages WHERE session_id = ?
	ORDER BY created_at DESC LIMIT ?
) ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "getting recent messages for session %s", sessionID)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *SessionStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, ibrerr.Wrapf(err, ibrerr.CodeStoreDatabaseFailure, "counting messages for session %s", sessionID)
	}
	return count, nil
}

func scanMessages(rows *sql.Rows) ([]*store.Message, error) {
	var msgs []*store.Message
	for rows.Next() {
		var msg store.Message
		var toolCallsJSON, createdAt string
		if err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.Role,
			&msg.Content,
			&msg.Usage.PromptTokens,
			&msg.Usage.CompletionTokens,
			&msg.Usage.TotalTokens,
			&toolCallsJSON,
			&createdAt,
		); err != nil {
			return nil, ibrerr.Wrap(err, ibrerr.CodeStoreDatabaseFailure, "scanning message row")
		}
		if toolCallsJSON != "" && toolCallsJSON != "[]" {
			if err := json.Unmarshal([]byte(toolCallsJSON), &msg.ToolCalls); err != nil {
				return nil, ibrerr.Wrap(err, ibrerr.CodeStoreDatabaseFailure, "unmarshalling tool call log")
			}
		}
		msg.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, ibrerr.Wrap(err, ibrerr.CodeStoreDatabaseFailure, "iterating message rows")
	}
	return msgs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
