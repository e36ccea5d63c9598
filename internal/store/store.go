// Package store persists sessions and turns in Postgres and serves the
// aggregate telemetry queries built on them.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MissVz/EQiLevel/internal/emotion"
	"github.com/MissVz/EQiLevel/internal/mcp"
)

// replySentinel is stored in place of an empty tutor reply; the reply column
// must never hold an empty string.
const replySentinel = "[no_reply]"

// TurnRecord is one completed turn as handed to LogTurn.
type TurnRecord struct {
	SessionID     string
	UserText      string
	ReplyText     string
	Emotion       emotion.Signal
	Performance   emotion.Performance
	State         mcp.ControlState
	Reward        float64
	ObjectiveCode string
}

// Store wraps the Postgres connection.
type Store struct {
	db *sql.DB
}

// Open connects via the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle (tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id             TEXT PRIMARY KEY,
			session_id     TEXT NOT NULL REFERENCES sessions(id),
			user_text      TEXT NOT NULL DEFAULT '',
			reply_text     TEXT NOT NULL,
			emotion        JSONB NOT NULL,
			performance    JSONB NOT NULL,
			mcp            JSONB NOT NULL,
			reward         DOUBLE PRECISION NOT NULL DEFAULT 0,
			objective_code TEXT,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at)`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Health runs a trivial query and reports (ok, error message).
func (s *Store) Health(ctx context.Context) (bool, string) {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// CreateSession inserts a new session row and returns its id.
func (s *Store) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id) VALUES ($1)`, id); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// SessionExists reports whether a session row is present.
func (s *Store) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// safeReply substitutes the sentinel for empty or whitespace-only replies.
func safeReply(reply string) string {
	if r := strings.TrimSpace(reply); r != "" {
		return r
	}
	return replySentinel
}

// LogTurn upserts the session row and inserts the turn. The reply string is
// never stored empty.
func (s *Store) LogTurn(ctx context.Context, rec TurnRecord) (string, error) {
	sid := rec.SessionID
	if sid == "" {
		sid = "default"
	}
	emJSON, err := json.Marshal(rec.Emotion)
	if err != nil {
		return "", err
	}
	perfJSON, err := json.Marshal(rec.Performance)
	if err != nil {
		return "", err
	}
	mcpJSON, err := json.Marshal(rec.State)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, sid); err != nil {
		return "", fmt.Errorf("ensure session: %w", err)
	}

	id := uuid.NewString()
	var objective sql.NullString
	if rec.ObjectiveCode != "" {
		objective = sql.NullString{String: rec.ObjectiveCode, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, user_text, reply_text, emotion, performance, mcp, reward, objective_code)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8, $9)`,
		id, sid, rec.UserText, safeReply(rec.ReplyText),
		string(emJSON), string(perfJSON), string(mcpJSON), rec.Reward, objective)
	if err != nil {
		return "", fmt.Errorf("insert turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
