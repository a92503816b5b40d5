package http

import (
	"context"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kupantip/chat-server/internal/auth"
	"github.com/kupantip/chat-server/internal/config"
	"github.com/kupantip/chat-server/internal/core"
	"github.com/kupantip/chat-server/internal/store"
	"github.com/kupantip/chat-server/internal/store/sqlite"
)

// createTestStore creates an in-memory SQLite store with the schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func createTestAuthService(st store.Store, jwtSecret string) *auth.Service {
	return auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	})
}

type testEnv struct {
	server  *Server
	ts      *httptest.Server
	store   store.Store
	auth    *auth.Service
	baseURL string
}

// startTestServer wires a full server around an in-memory store and
// running hub.
func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(st, "test-secret")

	logger := zerolog.Nop()
	hub := core.NewHub(st, nil, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	server := NewServer(hub, authService, st, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		server:  server,
		ts:      ts,
		store:   st,
		auth:    authService,
		baseURL: ts.URL,
	}
}

// registerUser registers a user and returns the bearer token.
func registerUser(t *testing.T, env *testEnv, handle, displayName string) string {
	t.Helper()
	token, err := env.auth.Register(context.Background(), handle, displayName, "password123")
	if err != nil {
		t.Fatalf("failed to register %s: %v", handle, err)
	}
	return token
}

func parseID(t *testing.T, id string) int64 {
	t.Helper()
	parsed, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		t.Fatalf("parse id %q: %v", id, err)
	}
	return parsed
}

// saveMessage persists a message directly, bypassing the hub.
func saveMessage(t *testing.T, env *testEnv, roomID, senderID int64, content string) {
	t.Helper()
	msg := store.Message{RoomID: roomID, SenderID: senderID, Content: content}
	if err := env.store.SaveMessage(context.Background(), &msg); err != nil {
		t.Fatalf("save message: %v", err)
	}
}
