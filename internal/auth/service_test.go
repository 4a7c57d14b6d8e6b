package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaywire/relayd/internal/core"
	"github.com/relaywire/relayd/internal/store"
	"github.com/relaywire/relayd/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return NewService(st, &JWTConfig{
		Secret: []byte("test-secret"),
		Issuer: "relayd-test",
		TTL:    time.Minute,
	})
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.Register(ctx, "alice", "Alice Cooper", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	identity, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate registered token: %v", err)
	}
	if identity.Handle != "alice" || identity.Username != "Alice Cooper" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	token, err = svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.ValidateToken(token); err != nil {
		t.Fatalf("validate login token: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ab", "", "password123"); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "", "short"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}

	if _, err := svc.Register(ctx, "alice", "", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "", "password123"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

// collidingStore simulates a handle taken between the pre-insert check and
// the insert itself, as happens when two registrations race.
type collidingStore struct{}

func (collidingStore) CreateUser(context.Context, core.Identity, string) (*store.User, error) {
	return nil, store.ErrExists
}

func (collidingStore) GetUserByHandle(context.Context, string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (collidingStore) SetBanned(context.Context, string, bool) error {
	return nil
}

func TestRegisterHandleTakenAtInsert(t *testing.T) {
	svc := NewService(collidingStore{}, &JWTConfig{
		Secret: []byte("test-secret"),
		Issuer: "relayd-test",
		TTL:    time.Minute,
	})

	if _, err := svc.Register(context.Background(), "alice", "", "password123"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists when the insert collides, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown handle, got %v", err)
	}
}
