// Package http exposes the chat service over HTTP: REST endpoints under
// /chat, auth endpoints under /api/auth, and the realtime channel at /ws.
package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kupantip/chat-server/internal/auth"
	"github.com/kupantip/chat-server/internal/config"
	"github.com/kupantip/chat-server/internal/core"
	"github.com/kupantip/chat-server/internal/store"
)

// Server bundles the router with its collaborators.
type Server struct {
	Handler stdhttp.Handler

	hub   *core.Hub
	auth  *auth.Service
	store store.Store
	cfg   *config.Config
	log   *zerolog.Logger
}

// NewServer builds the gin router with all routes wired.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		hub:   hub,
		auth:  authService,
		store: st,
		cfg:   cfg,
		log:   logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(metricsMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", s.handleWS)

	api := router.Group("/api")
	{
		api.POST("/auth/register", s.handleRegister)
		api.POST("/auth/login", s.handleLogin)
		api.POST("/auth/guest", s.handleGuest)
	}

	chat := router.Group("/chat")
	chat.Use(AuthMiddleware(authService, logger))
	{
		chat.GET("/rooms", s.handleListRooms)
		chat.POST("/rooms", s.handleCreateRoom)
		chat.POST("/rooms/direct", s.handleCreateDirectRoom)
		chat.GET("/rooms/:id", s.handleGetRoom)
		chat.PATCH("/rooms/:id", s.handleRenameRoom)
		chat.GET("/rooms/:id/messages", s.handleListMessages)
		chat.POST("/rooms/:id/read", s.handleMarkRead)
	}

	s.Handler = router
	return s
}

// HTTPServer wraps the handler in a configured stdlib server.
func (s *Server) HTTPServer() *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
