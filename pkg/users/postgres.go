package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/stockroom/pkg/auth"
)

// PostgresDirectory stores users in the users table
type PostgresDirectory struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresDirectory creates a directory on db
func NewPostgresDirectory(db *sql.DB) (*PostgresDirectory, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &PostgresDirectory{db: db, now: time.Now}, nil
}

// EnsureSchema creates the users table if it does not exist
func (d *PostgresDirectory) EnsureSchema(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id                TEXT PRIMARY KEY,
			email             TEXT,
			first_name        TEXT,
			last_name         TEXT,
			profile_image_url TEXT,
			role              TEXT NOT NULL DEFAULT 'viewer'
				CHECK (role IN ('viewer', 'manager', 'admin', 'super_admin')),
			created_at        TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

const userColumns = `id, email, first_name, last_name, profile_image_url, role, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u                                auth.User
		email, first, last, profileImage sql.NullString
	)
	if err := row.Scan(&u.ID, &email, &first, &last, &profileImage, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.FirstName = first.String
	u.LastName = last.String
	u.ProfileImageURL = profileImage.String
	return &u, nil
}

func (d *PostgresDirectory) Get(ctx context.Context, id string) (*auth.User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, auth.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// Upsert never writes role or created_at on conflict
func (d *PostgresDirectory) Upsert(ctx context.Context, p auth.Profile) (*auth.User, error) {
	if err := validateProfile(p); err != nil {
		return nil, err
	}
	now := d.now().UTC()
	u, err := scanUser(d.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, profile_image_url, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			profile_image_url = EXCLUDED.profile_image_url,
			updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		p.Subject, nullString(p.Email), nullString(p.FirstName), nullString(p.LastName),
		nullString(p.ProfileImageURL), auth.RoleViewer, now))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return u, nil
}

func (d *PostgresDirectory) UpdateRole(ctx context.Context, id string, role auth.Role) (*auth.User, auth.Role, error) {
	if err := validateRole(role); err != nil {
		return nil, 0, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var previous auth.Role
	err = tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("user %s: %w", id, auth.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read user role: %w", err)
	}

	u, err := scanUser(tx.QueryRowContext(ctx, `
		UPDATE users SET role = $2, updated_at = $3 WHERE id = $1
		RETURNING `+userColumns, id, role, d.now().UTC()))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to update user role: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit role update: %w", err)
	}
	return u, previous, nil
}

func (d *PostgresDirectory) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
