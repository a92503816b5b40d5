// Smoke test against a running server: obtains a guest token, opens the
// realtime channel, sends one message into a fresh group room and waits
// for its echo.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kupantip/chat-server/internal/proto"
	"github.com/kupantip/chat-server/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	authClient := session.NewAuthClient(*server, nil)
	token, _, err := authClient.Guest(ctx)
	if err != nil {
		return fmt.Errorf("guest token: %w", err)
	}

	rest := session.NewClient(*server, token, nil)
	room, err := rest.CreateRoom(ctx, "smoke", nil)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	coord := session.New(session.Config{
		URL:   strings.Replace(*server, "http", "ws", 1) + "/ws",
		Token: token,
	})
	defer coord.Close()

	echo := make(chan proto.MessageData, 1)
	coord.OnMessage(func(m proto.MessageData) {
		select {
		case echo <- m:
		default:
		}
	})

	if err := coord.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	coord.JoinRoom(room.ID)

	if !coord.SendMessage(room.ID, *text) {
		return fmt.Errorf("send rejected")
	}

	select {
	case m := <-echo:
		fmt.Printf("ok: room=%s id=%s content=%q\n", m.RoomID, m.ID, m.Content)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("no echo before timeout: %w", ctx.Err())
	}
}
