package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/relaywire/relayd/internal/auth"
)

// ContextKeyIdentity is the gin context key holding the validated identity.
const ContextKeyIdentity = "identity"

// headerAuthToken carries the raw token on authenticated REST calls.
const headerAuthToken = "X-Auth-Token"

// TokenAuthMiddleware validates the X-Auth-Token header and stores the
// resulting identity in the request context.
func TokenAuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(headerAuthToken)
		if token == "" {
			logger.Debug().Msg("missing auth token header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "either missing a token (X-Auth-Token) or an invalid token"})
			c.Abort()
			return
		}

		identity, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "either missing a token (X-Auth-Token) or an invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextKeyIdentity, identity)
		c.Next()
	}
}

// LoggerMiddleware logs HTTP requests after they complete.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
