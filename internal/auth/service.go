package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/relaywire/relayd/internal/core"
	"github.com/relaywire/relayd/internal/store"
)

var (
	// ErrInvalidCredentials is returned when handle/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when registering an already-taken handle.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidHandle is returned when a handle doesn't meet constraints.
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrInvalidPassword is returned when a password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrBanned is returned when a banned account attempts to log in.
	ErrBanned = errors.New("account banned")
)

// Service provides login, registration and token validation. Token
// validation is pure: it touches only the signing secret, never the store.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user account and returns a signed token.
func (s *Service) Register(ctx context.Context, handle, username, password string) (string, error) {
	handle = strings.TrimSpace(handle)
	if len(handle) < 3 || len(handle) > 32 {
		return "", ErrInvalidHandle
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}
	if username = strings.TrimSpace(username); username == "" {
		username = handle
	}

	if existing, err := s.store.GetUserByHandle(ctx, handle); err == nil && existing != nil {
		return "", ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	identity := core.Identity{
		Username: username,
		Handle:   handle,
		Role:     core.RoleUser,
		Kind:     core.AccountUser,
	}
	user, err := s.store.CreateUser(ctx, identity, hashedPassword)
	if err != nil {
		// The handle check above is not atomic with the insert; a
		// concurrent registration surfaces here as a duplicate.
		if errors.Is(err, store.ErrExists) {
			return "", ErrUserExists
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Identity)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// Login validates credentials and returns a signed token carrying the
// stored identity.
func (s *Service) Login(ctx context.Context, handle, password string) (string, error) {
	user, err := s.store.GetUserByHandle(ctx, handle)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}

	if user.Identity.Banned {
		return "", ErrBanned
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Identity)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken is the identity gate shared by the socket handshake and the
// ingress endpoint.
func (s *Service) ValidateToken(tokenString string) (core.Identity, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
