package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file, durable Store implementation backing the
// "Persistent(path)" journalBackend configuration option.
//
// It uses WAL mode so concurrent readers don't block the writer, and wraps
// every Append in a transaction spanning the events table and whichever
// index table (state_index, step_index, terminal) the event updates, so a
// crash mid-append can never leave the indexes inconsistent with the log.
//
// On open, SQLiteStore runs "PRAGMA integrity_check" and relies on
// SQLite's own WAL replay to discard a trailing incomplete transaction —
// this is the "persistent backend must detect and truncate trailing
// incomplete records on open" requirement (spec §9), satisfied by the
// storage engine's own recovery rather than a hand-rolled length-prefix
// scan (see DESIGN.md).
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed journal at
// path. Use ":memory:" for an ephemeral database that still exercises the
// SQL code path in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal: %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, "PRAGMA integrity_check"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: integrity_check: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			workflow_id TEXT NOT NULL,
			seq         INTEGER NOT NULL,
			kind        INTEGER NOT NULL,
			step_key    TEXT NOT NULL DEFAULT '',
			state_key   TEXT NOT NULL DEFAULT '',
			error_kind  TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL DEFAULT '',
			payload     TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMP NOT NULL,
			PRIMARY KEY (workflow_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS state_index (
			workflow_id TEXT NOT NULL,
			state_key   TEXT NOT NULL,
			payload     TEXT NOT NULL,
			PRIMARY KEY (workflow_id, state_key)
		)`,
		`CREATE TABLE IF NOT EXISTS step_index (
			workflow_id TEXT NOT NULL,
			step_key    TEXT NOT NULL,
			payload     TEXT NOT NULL,
			PRIMARY KEY (workflow_id, step_key)
		)`,
		`CREATE TABLE IF NOT EXISTS terminal (
			workflow_id TEXT PRIMARY KEY,
			kind        INTEGER NOT NULL,
			output      TEXT NOT NULL DEFAULT '',
			error_kind  TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("journal: create schema: %w", err)
		}
	}
	return nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, workflowID string, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE workflow_id = ?`, workflowID).Scan(&existing); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}

	var terminalCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM terminal WHERE workflow_id = ?`, workflowID).Scan(&terminalCount); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if terminalCount > 0 {
		return ErrTerminal
	}

	switch event.Kind {
	case EventStarted:
		if existing != 0 {
			return ErrAlreadyStarted
		}
	case EventSideEffectResult:
		var dup int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM step_index WHERE workflow_id = ? AND step_key = ?`, workflowID, event.StepKey).Scan(&dup); err != nil {
			return fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
		if dup > 0 {
			return ErrDuplicateStep
		}
	}

	seq := existing + 1
	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (workflow_id, seq, kind, step_key, state_key, error_kind, message, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		workflowID, seq, int(event.Kind), event.StepKey, event.StateKey, event.ErrorKind, event.Message, string(event.Payload), now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}

	switch event.Kind {
	case EventStateSet:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO state_index (workflow_id, state_key, payload) VALUES (?, ?, ?)
			 ON CONFLICT(workflow_id, state_key) DO UPDATE SET payload = excluded.payload`,
			workflowID, event.StateKey, string(event.Payload))
	case EventSideEffectResult:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO step_index (workflow_id, step_key, payload) VALUES (?, ?, ?)`,
			workflowID, event.StepKey, string(event.Payload))
	case EventCompleted:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO terminal (workflow_id, kind, output) VALUES (?, ?, ?)`,
			workflowID, int(TerminalCompleted), string(event.Payload))
	case EventFailed:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO terminal (workflow_id, kind, error_kind, message) VALUES (?, ?, ?, ?)`,
			workflowID, int(TerminalFailed), event.ErrorKind, event.Message)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, workflowID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, step_key, state_key, error_kind, message, payload, created_at
		 FROM events WHERE workflow_id = ? ORDER BY seq ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var e Event
		var kind int
		var payload string
		if err := rows.Scan(&e.Seq, &kind, &e.StepKey, &e.StateKey, &e.ErrorKind, &e.Message, &payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
		e.Kind = EventKind(kind)
		if payload != "" {
			e.Payload = json.RawMessage(payload)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return out, nil
}

// LatestState implements Store.
func (s *SQLiteStore) LatestState(ctx context.Context, workflowID, stateKey string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM state_index WHERE workflow_id = ? AND state_key = ?`, workflowID, stateKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return json.RawMessage(payload), true, nil
}

// StepResult implements Store.
func (s *SQLiteStore) StepResult(ctx context.Context, workflowID, stepKey string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM step_index WHERE workflow_id = ? AND step_key = ?`, workflowID, stepKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return json.RawMessage(payload), true, nil
}

// TerminalStatus implements Store.
func (s *SQLiteStore) TerminalStatus(ctx context.Context, workflowID string) (*TerminalStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kind int
	var output, errorKind, message string
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, output, error_kind, message FROM terminal WHERE workflow_id = ?`, workflowID).
		Scan(&kind, &output, &errorKind, &message)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}

	status := &TerminalStatus{Kind: TerminalKind(kind), ErrorKind: errorKind, Message: message}
	if output != "" {
		status.Output = json.RawMessage(output)
	}
	return status, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
