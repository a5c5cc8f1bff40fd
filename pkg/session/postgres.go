package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps sessions in the sessions table
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates a session store on db
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

// EnsureSchema creates the sessions table if it does not exist
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id               TEXT PRIMARY KEY,
			pending_verifier TEXT,
			pending_state    TEXT,
			user_id          TEXT,
			created_at       TIMESTAMPTZ NOT NULL,
			expires_at       TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	return nil
}

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	verifier, state := pendingColumns(s)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, pending_verifier, pending_state, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, verifier, state, nullString(s.UserID), s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

const selectSession = `
	SELECT id, pending_verifier, pending_state, user_id, created_at, expires_at
	FROM sessions
	WHERE id = $1 AND expires_at > $2`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s                       Session
		verifier, state, userID sql.NullString
	)
	err := row.Scan(&s.ID, &verifier, &state, &userID, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if verifier.Valid && state.Valid {
		s.PendingLogin = &PendingLogin{CodeVerifier: verifier.String, State: state.String}
	}
	s.UserID = userID.String
	return &s, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	return scanSession(p.db.QueryRowContext(ctx, selectSession, id, p.now()))
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of mutate
func (p *PostgresStore) Update(ctx context.Context, id string, mutate func(*Session) error) (*Session, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	s, err := scanSession(tx.QueryRowContext(ctx, selectSession+" FOR UPDATE", id, p.now()))
	if err != nil {
		return nil, err
	}
	if err := mutate(s); err != nil {
		return nil, err
	}
	s.ID = id

	verifier, state := pendingColumns(s)
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET pending_verifier = $2, pending_state = $3, user_id = $4
		WHERE id = $1
	`, id, verifier, state, nullString(s.UserID))
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit session update: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

func pendingColumns(s *Session) (sql.NullString, sql.NullString) {
	if s.PendingLogin == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return nullString(s.PendingLogin.CodeVerifier), nullString(s.PendingLogin.State)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
