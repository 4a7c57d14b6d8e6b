package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/relaywire/relayd/internal/core"
	"github.com/relaywire/relayd/internal/store"
)

// UserHandlers provides authenticated user operations.
type UserHandlers struct {
	store store.UserStore
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		log:   logger,
	}
}

// Me returns the identity carried by the caller's token.
// GET /api/me
func (h *UserHandlers) Me(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		h.log.Error().Msg("identity missing from context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, identity)
}

// Ban flips the banned flag on an account. Moderator tier or above.
// Already-issued tokens still validate until they expire; the flag lands
// in tokens issued after the next login.
// POST /api/users/:handle/ban
func (h *UserHandlers) Ban(c *gin.Context) {
	h.setBanned(c, true)
}

// Unban clears the banned flag on an account. Moderator tier or above.
// POST /api/users/:handle/unban
func (h *UserHandlers) Unban(c *gin.Context) {
	h.setBanned(c, false)
}

func (h *UserHandlers) setBanned(c *gin.Context, banned bool) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if !identity.Role.AtLeast(core.RoleModerator) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "moderator tier required"})
		return
	}

	handle := c.Param("handle")
	if err := h.store.SetBanned(c.Request.Context(), handle, banned); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no such user"})
			return
		}
		h.log.Error().Err(err).Str("handle", handle).Msg("failed to update banned flag")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().
		Str("handle", handle).
		Bool("banned", banned).
		Str("by", identity.Handle).
		Msg("banned flag updated")
	c.JSON(http.StatusOK, gin.H{"error": false})
}

func callerIdentity(c *gin.Context) (core.Identity, bool) {
	value, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return core.Identity{}, false
	}
	identity, ok := value.(core.Identity)
	return identity, ok
}
