package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kupantip/chat-server/internal/auth"
	"github.com/kupantip/chat-server/internal/metrics"
)

const (
	// ContextKeyUserID is the gin context key for the authenticated user id.
	ContextKeyUserID = "user_id"
	// ContextKeyHandle is the gin context key for the user's handle.
	ContextKeyHandle = "handle"
	// ContextKeyDisplayName is the gin context key for the user's display name.
	ContextKeyDisplayName = "display_name"
	// ContextKeyIsGuest is the gin context key for guest status.
	ContextKeyIsGuest = "is_guest"
)

// ErrorResponse is the JSON error body returned by all endpoints.
type ErrorResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// AuthMiddleware validates a bearer JWT and stores the claims in the
// request context.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Code: "unauthorized", Msg: "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Code: "unauthorized", Msg: "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Code: "unauthorized", Msg: "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyHandle, claims.Handle)
		c.Set(ContextKeyDisplayName, claims.DisplayName)
		c.Set(ContextKeyIsGuest, claims.IsGuest)

		c.Next()
	}
}

// LoggerMiddleware logs each HTTP request after it completes.
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

func metricsMiddleware() gin.HandlerFunc {
	return metrics.GinMiddleware()
}

func currentUserID(c *gin.Context) int64 {
	id, _ := c.Get(ContextKeyUserID)
	userID, _ := id.(int64)
	return userID
}
