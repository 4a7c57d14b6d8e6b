package store

import (
	"context"
	"errors"
	"time"

	"github.com/relaywire/relayd/internal/core"
)

var (
	// ErrNotFound is returned when a user lookup misses.
	ErrNotFound = errors.New("user not found")
	// ErrExists is returned when an insert collides with a taken handle.
	ErrExists = errors.New("user already exists")
)

// User is a persisted account. The embedded Identity is what ends up inside
// issued tokens; the password hash never leaves this layer.
type User struct {
	ID           int64
	Identity     core.Identity
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore persists accounts for the login front door. The relay core never
// touches it directly; identities travel inside tokens.
type UserStore interface {
	CreateUser(ctx context.Context, identity core.Identity, passwordHash string) (*User, error)
	GetUserByHandle(ctx context.Context, handle string) (*User, error)
	SetBanned(ctx context.Context, handle string, banned bool) error
}

// Store is the full persistence interface the application wires up.
type Store interface {
	UserStore
	Close() error
}
