package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaywire/relayd/internal/auth"
	"github.com/relaywire/relayd/internal/config"
	"github.com/relaywire/relayd/internal/core"
	"github.com/relaywire/relayd/internal/store"
	"github.com/relaywire/relayd/internal/store/sqlite"
	transporthttp "github.com/relaywire/relayd/internal/transport/http"
)

// App wires together the bus, the auth service and the transport layer.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	bus             *core.Bus
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	bus := core.NewBus(cfg.BusCapacity)
	server := transporthttp.NewServer(bus, authService, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		bus:             bus,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()
	a.log.Info().Str("addr", a.server.Addr).Msg("relay listening")

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the bus and the store. Closing the bus is what ends every
// live session: each subscriber observes the closed bus on its next receive.
func (a *App) cleanup() {
	a.bus.Close()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
