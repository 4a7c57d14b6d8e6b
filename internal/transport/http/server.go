package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/relaywire/relayd/internal/auth"
	"github.com/relaywire/relayd/internal/config"
	"github.com/relaywire/relayd/internal/core"
	"github.com/relaywire/relayd/internal/store"
)

// NewServer builds the HTTP server: the REST front door under /api and the
// relay socket under /ws, on one listener. The socket handler hangs off the
// outer mux, not gin: the upgrade hijacks the connection, which gin's
// buffered response writer refuses once the 101 is recorded.
func NewServer(bus *core.Bus, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(authService, cfg.LoginRateLimit, logger)
	ingress := NewIngressHandlers(bus, authService, logger)
	users := NewUserHandlers(st, logger)

	router.GET("/api", api.Health)
	router.POST("/api/login", api.Login)
	router.POST("/api/register", api.Register)

	// Submit checks the body before the token, so it validates the token
	// itself instead of going through the auth middleware.
	router.POST("/api/messages/:channel", ingress.Submit)

	authed := router.Group("/", TokenAuthMiddleware(authService, logger))
	authed.GET("/api/me", users.Me)
	authed.POST("/api/users/:handle/ban", users.Ban)
	authed.POST("/api/users/:handle/unban", users.Unban)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(bus, authService, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
