package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kupantip/chat-server/internal/auth"
)

// RegisterRequest is the body for POST /api/auth/register.
type RegisterRequest struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// LoginRequest is the body for POST /api/auth/login.
type LoginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// AuthResponse carries the issued token.
type AuthResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Msg: "invalid request body"})
		return
	}

	token, err := s.auth.Register(c.Request.Context(), req.Handle, req.DisplayName, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Code: "user_exists", Msg: "handle already taken"})
		case errors.Is(err, auth.ErrInvalidHandle), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Msg: err.Error()})
		default:
			s.log.Error().Err(err).Msg("register failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Msg: "registration failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{Token: token})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Msg: "invalid request body"})
		return
	}

	token, err := s.auth.Login(c.Request.Context(), req.Handle, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Code: "unauthorized", Msg: "invalid credentials"})
			return
		}
		s.log.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Msg: "login failed"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

func (s *Server) handleGuest(c *gin.Context) {
	token, sessionID, err := s.auth.CreateGuestUser(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("guest creation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Msg: "guest creation failed"})
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{Token: token, SessionID: sessionID})
}
