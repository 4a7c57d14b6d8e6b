package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/relaywire/relayd/internal/auth"
)

// APIHandlers provides the REST front door: login, registration, health.
type APIHandlers struct {
	authService *auth.Service
	loginLimit  *rateLimiter
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance. loginLimit caps login
// and registration attempts per minute; <= 0 disables the cap.
func NewAPIHandlers(authService *auth.Service, loginLimit int, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		loginLimit:  newRateLimiter(loginLimit),
		log:         logger,
	}
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Handle   string `json:"handle" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Handle   string `json:"handle" binding:"required,min=3,max=32"`
	Username string `json:"username"`
	Password string `json:"password" binding:"required,min=6"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string `json:"token"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health reports service liveness.
// GET /api
func (h *APIHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "relayd is running",
	})
}

// Login handles user login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	if !h.loginLimit.allow() {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many attempts, slow down"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Handle, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		case errors.Is(err, auth.ErrBanned):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "account banned"})
		default:
			h.log.Error().Err(err).Str("handle", req.Handle).Msg("failed to login user")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("handle", req.Handle).Msg("user logged in")
	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

// Register handles user registration.
// POST /api/register
func (h *APIHandlers) Register(c *gin.Context) {
	if !h.loginLimit.allow() {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many attempts, slow down"})
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Register(c.Request.Context(), req.Handle, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists"})
		case errors.Is(err, auth.ErrInvalidHandle), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Str("handle", req.Handle).Msg("failed to register user")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("handle", req.Handle).Msg("user registered")
	c.JSON(http.StatusCreated, AuthResponse{Token: token})
}
