package http

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relaywire/relayd/internal/auth"
	"github.com/relaywire/relayd/internal/core"
)

// IngressHandlers is the out-of-band publish path: an authenticated caller
// posts raw text to a channel and it is injected straight onto the bus,
// bypassing any socket session.
type IngressHandlers struct {
	bus         *core.Bus
	authService *auth.Service
	log         *zerolog.Logger
}

// NewIngressHandlers creates a new ingress handlers instance.
func NewIngressHandlers(bus *core.Bus, authService *auth.Service, logger *zerolog.Logger) *IngressHandlers {
	return &IngressHandlers{
		bus:         bus,
		authService: authService,
		log:         logger,
	}
}

// SubmitResponse acknowledges an accepted submission. The submission id
// also appears in the server logs, so callers can quote it when reporting
// a delivery problem.
type SubmitResponse struct {
	Error        bool   `json:"error"`
	SubmissionID string `json:"submission_id"`
}

// Submit publishes a message to a channel. The request body is the raw
// message text; the sender identity comes from re-validating the token.
// POST /api/messages/:channel
func (h *IngressHandlers) Submit(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read body"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "body length cannot be 0"})
		return
	}

	identity, err := h.authService.ValidateToken(c.GetHeader(headerAuthToken))
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "either missing a token (X-Auth-Token) or an invalid token"})
		return
	}

	channel := c.Param("channel")
	submissionID := uuid.NewString()
	h.bus.Publish(core.Envelope{
		Channel: channel,
		Content: string(body),
		Sender:  identity,
	})

	h.log.Debug().
		Str("submission_id", submissionID).
		Str("channel", channel).
		Str("handle", identity.Handle).
		Int("bytes", len(body)).
		Msg("message submitted")

	c.JSON(http.StatusOK, SubmitResponse{SubmissionID: submissionID})
}
