// Package userstore provides a sqlite-backed oidc.IdentityBinder: it maps
// verified subject identities to local user records and issues local
// session tokens for authenticated browsers.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/transmitsecurity/bindid-go/oidc"
)

// DefaultSessionDuration is how long an established local session stays
// valid.
const DefaultSessionDuration = 48 * time.Hour

// SQLiteBinder implements oidc.IdentityBinder on a sqlite database.
type SQLiteBinder struct {
	db              *sql.DB
	sessionDuration time.Duration
}

var _ oidc.IdentityBinder = (*SQLiteBinder)(nil)

// NewSQLiteBinder opens (creating if needed) the sqlite database at dsn
// and ensures the schema exists.
func NewSQLiteBinder(dsn string) (*SQLiteBinder, error) {
	const op = "userstore.NewSQLiteBinder"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to open database: %w", op, err)
	}
	// Pragmas safe for simple single-process usage
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("%s: unable to set journal mode: %w", op, err)
	}
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("%s: unable to init schema: %w", op, err)
	}
	return &SQLiteBinder{
		db:              db,
		sessionDuration: DefaultSessionDuration,
	}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    login TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    given_name TEXT,
    family_name TEXT,
    subject_identity TEXT UNIQUE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_users_subject_identity ON users(subject_identity);

CREATE TABLE IF NOT EXISTS local_sessions (
    token TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_local_sessions_expires_at ON local_sessions(expires_at);
`)
	return err
}

// Close closes the underlying database.
func (b *SQLiteBinder) Close() error { return b.db.Close() }

// FindUserBySubjectIdentity implements oidc.IdentityBinder.  Returns
// (nil, nil) when no user is mapped to subjectIdentity.
func (b *SQLiteBinder) FindUserBySubjectIdentity(ctx context.Context, subjectIdentity string) (*oidc.User, error) {
	const op = "userstore.SQLiteBinder.FindUserBySubjectIdentity"
	row := b.db.QueryRowContext(ctx,
		`SELECT id, login, email FROM users WHERE subject_identity = ?`, subjectIdentity)
	var u oidc.User
	if err := row.Scan(&u.ID, &u.Login, &u.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: query failed: %w", op, err)
	}
	return &u, nil
}

// CreateUser implements oidc.IdentityBinder.  A verified email claim is
// required.  When a user with the same email already exists, the subject
// identity is attached to that user instead of creating a duplicate
// account.
func (b *SQLiteBinder) CreateUser(ctx context.Context, subjectIdentity string, claims oidc.Claims) (*oidc.User, error) {
	const op = "userstore.SQLiteBinder.CreateUser"
	email := claims.VerifiedEmail()
	if email == "" {
		return nil, fmt.Errorf("%s: claims carry no verified email: %w", op, oidc.ErrNoVerifiedEmail)
	}

	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: unable to begin tx: %w", op, oidc.ErrUserCreationFailed)
	}
	defer func() { _ = tx.Rollback() }()

	// Adopt an existing account with the same email rather than creating a
	// duplicate.
	row := tx.QueryRowContext(ctx, `SELECT id, login, email FROM users WHERE email = ?`, email)
	var existing oidc.User
	switch err := row.Scan(&existing.ID, &existing.Login, &existing.Email); {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET subject_identity = ? WHERE id = ?`, subjectIdentity, existing.ID); err != nil {
			return nil, fmt.Errorf("%s: unable to update user: %w", op, oidc.ErrUserCreationFailed)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%s: unable to commit: %w", op, oidc.ErrUserCreationFailed)
		}
		return &existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s: query failed: %w", op, oidc.ErrUserCreationFailed)
	}

	id, err := oidc.NewID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate user id: %w", op, oidc.ErrUserCreationFailed)
	}
	u := &oidc.User{
		ID:    id,
		Login: email,
		Email: email,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, login, email, given_name, family_name, subject_identity) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Login, u.Email, claims.GivenName(), claims.FamilyName(), subjectIdentity); err != nil {
		return nil, fmt.Errorf("%s: unable to insert user: %w", op, oidc.ErrUserCreationFailed)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: unable to commit: %w", op, oidc.ErrUserCreationFailed)
	}
	return u, nil
}

// EstablishLocalSession implements oidc.IdentityBinder.  It issues a fresh
// random session token for the user with a bounded lifetime.  The token
// response and claims are accepted for interface compatibility; this store
// deliberately persists neither.
func (b *SQLiteBinder) EstablishLocalSession(ctx context.Context, user *oidc.User, _ *oidc.TokenResponse, _ oidc.Claims) error {
	const op = "userstore.SQLiteBinder.EstablishLocalSession"
	if user == nil || user.ID == "" {
		return fmt.Errorf("%s: user is invalid: %w", op, oidc.ErrInvalidUser)
	}
	token, err := oidc.NewID()
	if err != nil {
		return fmt.Errorf("%s: unable to generate session token: %w", op, err)
	}
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO local_sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, user.ID, time.Now().Add(b.sessionDuration).UTC()); err != nil {
		return fmt.Errorf("%s: unable to insert session: %w", op, err)
	}
	return nil
}

// SessionUser returns the user a live session token belongs to, or
// (nil, nil) when the token is unknown or expired.
func (b *SQLiteBinder) SessionUser(ctx context.Context, token string) (*oidc.User, error) {
	const op = "userstore.SQLiteBinder.SessionUser"
	row := b.db.QueryRowContext(ctx, `
SELECT u.id, u.login, u.email
FROM local_sessions s JOIN users u ON u.id = s.user_id
WHERE s.token = ? AND s.expires_at > ?`, token, time.Now().UTC())
	var u oidc.User
	if err := row.Scan(&u.ID, &u.Login, &u.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: query failed: %w", op, err)
	}
	return &u, nil
}
