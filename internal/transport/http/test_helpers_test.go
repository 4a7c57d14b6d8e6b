package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaywire/relayd/internal/auth"
	"github.com/relaywire/relayd/internal/config"
	"github.com/relaywire/relayd/internal/core"
	"github.com/relaywire/relayd/internal/store/sqlite"
)

// testEnv bundles everything a transport test needs.
type testEnv struct {
	ts   *httptest.Server
	bus  *core.Bus
	auth *auth.Service
	jwt  *auth.JWTConfig
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// token issues a signed token for an arbitrary identity, bypassing the
// login flow.
func (e *testEnv) token(t *testing.T, identity core.Identity) string {
	t.Helper()

	token, err := auth.GenerateToken(e.jwt, 1, identity)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func identityFor(handle string) core.Identity {
	return core.Identity{
		Username: handle,
		Handle:   handle,
		Role:     core.RoleUser,
		Kind:     core.AccountUser,
	}
}

func startTestServer(t *testing.T, busCapacity int) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret: []byte("test-secret"),
		Issuer: "relayd-test",
		TTL:    time.Minute,
	}
	authService := auth.NewService(st, jwtConfig)

	bus := core.NewBus(busCapacity)
	t.Cleanup(bus.Close)

	logger := zerolog.Nop()
	server := NewServer(bus, authService, st, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, bus: bus, auth: authService, jwt: jwtConfig}
}
