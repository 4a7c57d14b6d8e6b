package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/relaywire/relayd/internal/core"
	"github.com/relaywire/relayd/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		handle        TEXT NOT NULL UNIQUE,
		username      TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'user',
		kind          TEXT NOT NULL DEFAULT 'user',
		provider_site TEXT NOT NULL DEFAULT '',
		banned        BOOLEAN NOT NULL DEFAULT 0,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// New opens (creating if needed) the SQLite database at dbPath and applies
// the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new account.
func (s *SQLiteStore) CreateUser(ctx context.Context, identity core.Identity, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (handle, username, password_hash, role, kind, provider_site, banned)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		identity.Handle,
		identity.Username,
		passwordHash,
		string(identity.Role),
		string(identity.Kind),
		identity.ProviderSite,
		identity.Banned,
	)
	if err != nil {
		var sqErr sqlite3.Error
		if errors.As(err, &sqErr) && sqErr.Code == sqlite3.ErrConstraint {
			return nil, store.ErrExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getUserByID(ctx, id)
}

// GetUserByHandle retrieves an account by its unique handle.
func (s *SQLiteStore) GetUserByHandle(ctx context.Context, handle string) (*store.User, error) {
	return s.getUser(ctx, "WHERE handle = ?", handle)
}

// SetBanned flips the banned flag on an account. Already-issued tokens keep
// the old flag until they expire; bans take full effect within the token TTL.
func (s *SQLiteStore) SetBanned(ctx context.Context, handle string, banned bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET banned = ? WHERE handle = ?`, banned, handle)
	if err != nil {
		return fmt.Errorf("update banned: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) getUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, "WHERE id = ?", id)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, handle, username, password_hash, role, kind, provider_site, banned, created_at
		FROM users
	` + where

	var (
		user core.Identity
		out  store.User
		role string
		kind string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&out.ID,
		&user.Handle,
		&user.Username,
		&out.PasswordHash,
		&role,
		&kind,
		&user.ProviderSite,
		&user.Banned,
		&out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	user.Role = core.Role(role)
	user.Kind = core.AccountKind(kind)
	out.Identity = user
	return &out, nil
}
