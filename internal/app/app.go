// Package app wires configuration, storage, auth, the hub and the HTTP
// transport into a runnable service.
package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kupantip/chat-server/internal/auth"
	"github.com/kupantip/chat-server/internal/config"
	"github.com/kupantip/chat-server/internal/core"
	"github.com/kupantip/chat-server/internal/presence"
	"github.com/kupantip/chat-server/internal/store"
	"github.com/kupantip/chat-server/internal/store/sqlite"
	transporthttp "github.com/kupantip/chat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	presence        presence.Tracker
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	var tracker presence.Tracker
	if cfg.RedisAddr != "" {
		tracker, err = presence.NewRedis(context.Background(), cfg.RedisAddr, 0)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init presence: %w", err)
		}
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("presence tracker on redis")
	} else {
		tracker = presence.NewMemory(0)
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	hub := core.NewHub(st, tracker, logger)
	if cfg.HistoryLimit > 0 {
		hub.HistoryLimit = cfg.HistoryLimit
	}

	server := transporthttp.NewServer(hub, authService, st, cfg, logger)

	return &App{
		server:          server.HTTPServer(),
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		presence:        tracker,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

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

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.presence != nil {
		if err := a.presence.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close presence tracker")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
