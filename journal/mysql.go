package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed Store for clustered deployments that
// centralize the journal instead of sharding it across each node's local
// disk (an alternative to routing every workflow to its SQLiteStore-backed
// owner). Schema mirrors SQLiteStore's events/state_index/step_index/
// terminal tables.
//
// DSN format: "user:pass@tcp(host:3306)/dbname?parseTime=true". Never
// hardcode credentials; read the DSN from configuration or environment.
type MySQLStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewMySQLStore opens a MySQL-backed journal and creates its schema if
// absent.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			workflow_id VARCHAR(255) NOT NULL,
			seq         INT NOT NULL,
			kind        INT NOT NULL,
			step_key    VARCHAR(255) NOT NULL DEFAULT '',
			state_key   VARCHAR(255) NOT NULL DEFAULT '',
			error_kind  VARCHAR(255) NOT NULL DEFAULT '',
			message     TEXT,
			payload     LONGTEXT,
			created_at  TIMESTAMP(6) NOT NULL,
			PRIMARY KEY (workflow_id, seq)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS state_index (
			workflow_id VARCHAR(255) NOT NULL,
			state_key   VARCHAR(255) NOT NULL,
			payload     LONGTEXT,
			PRIMARY KEY (workflow_id, state_key)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS step_index (
			workflow_id VARCHAR(255) NOT NULL,
			step_key    VARCHAR(255) NOT NULL,
			payload     LONGTEXT,
			PRIMARY KEY (workflow_id, step_key)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS terminal (
			workflow_id VARCHAR(255) PRIMARY KEY,
			kind        INT NOT NULL,
			output      LONGTEXT,
			error_kind  VARCHAR(255) NOT NULL DEFAULT '',
			message     TEXT
		) ENGINE=InnoDB`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("journal: create schema: %w", err)
		}
	}
	return nil
}

// Append implements Store. See SQLiteStore.Append for the transactional
// shape this mirrors.
func (s *MySQLStore) Append(ctx context.Context, workflowID string, event Event) error {
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
			 ON DUPLICATE KEY UPDATE payload = VALUES(payload)`,
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
func (s *MySQLStore) Load(ctx context.Context, workflowID string) ([]Event, error) {
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
		var payload, message sql.NullString
		if err := rows.Scan(&e.Seq, &kind, &e.StepKey, &e.StateKey, &e.ErrorKind, &message, &payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
		e.Kind = EventKind(kind)
		e.Message = message.String
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestState implements Store.
func (s *MySQLStore) LatestState(ctx context.Context, workflowID, stateKey string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM state_index WHERE workflow_id = ? AND state_key = ?`, workflowID, stateKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if !payload.Valid {
		return nil, true, nil
	}
	return json.RawMessage(payload.String), true, nil
}

// StepResult implements Store.
func (s *MySQLStore) StepResult(ctx context.Context, workflowID, stepKey string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM step_index WHERE workflow_id = ? AND step_key = ?`, workflowID, stepKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if !payload.Valid {
		return nil, true, nil
	}
	return json.RawMessage(payload.String), true, nil
}

// TerminalStatus implements Store.
func (s *MySQLStore) TerminalStatus(ctx context.Context, workflowID string) (*TerminalStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kind int
	var output, message sql.NullString
	var errorKind string
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, output, error_kind, message FROM terminal WHERE workflow_id = ?`, workflowID).
		Scan(&kind, &output, &errorKind, &message)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}

	status := &TerminalStatus{Kind: TerminalKind(kind), ErrorKind: errorKind, Message: message.String}
	if output.Valid {
		status.Output = json.RawMessage(output.String)
	}
	return status, nil
}

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
