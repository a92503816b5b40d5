// Command chat is an interactive terminal client for the kuchat server,
// built on the session package.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kupantip/chat-server/internal/log"
	"github.com/kupantip/chat-server/internal/notify"
	"github.com/kupantip/chat-server/internal/proto"
	"github.com/kupantip/chat-server/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	server   string
	token    string
	handle   string
	password string
	guest    bool
	room     string
	logLevel string
}

func newRootCmd() *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:           "chat",
		Short:         "Terminal client for the kuchat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	root.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	root.Flags().StringVar(&opts.token, "token", "", "bearer token (skips login)")
	root.Flags().StringVar(&opts.handle, "handle", "", "handle to log in with")
	root.Flags().StringVar(&opts.password, "password", "", "password to log in with")
	root.Flags().BoolVar(&opts.guest, "guest", false, "join as a guest")
	root.Flags().StringVar(&opts.room, "room", "", "room id to join on start")
	root.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cobra.OnFinalize(stop)
	root.SetContext(ctx)
	return root
}

func run(ctx context.Context, opts options) error {
	logger := log.New(opts.logLevel)

	token, err := resolveToken(ctx, opts)
	if err != nil {
		return err
	}

	rest := session.NewClient(opts.server, token, nil)

	wsURL := strings.Replace(opts.server, "http", "ws", 1) + "/ws"
	coord := session.New(session.Config{URL: wsURL, Token: token, Logger: logger})
	defer coord.Close()

	coord.OnMessage(func(m proto.MessageData) {
		fmt.Printf("[%s] %s: %s\n", m.RoomID, m.SenderDisplayName, m.Content)
	})
	coord.OnTyping(func(d proto.UserTypingData) {
		if d.IsTyping {
			fmt.Printf("[%s] %s is typing...\n", d.RoomID, d.UserDisplayName)
		}
	})
	coord.OnPresence(func(online bool, d proto.PresenceData) {
		state := "offline"
		if online {
			state = "online"
		}
		fmt.Printf("* user %d is %s\n", d.UserID, state)
	})
	coord.OnHistory(func(h proto.HistoryData) {
		for _, m := range h.Messages {
			fmt.Printf("[%s] %s: %s\n", m.RoomID, m.SenderDisplayName, m.Content)
		}
	})
	coord.OnError(func(e proto.Error) {
		fmt.Printf("! server error: %s (%s)\n", e.Msg, e.Code)
	})
	coord.OnStateChange(func(s session.State) {
		fmt.Printf("* connection %s\n", s)
	})

	if err := coord.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	bus := notify.NewBus()
	unread := session.NewUnreadCounter(rest, bus, logger, 0)
	unread.OnChange(func(total int) {
		fmt.Printf("* %d unread messages\n", total)
	})
	go unread.Run(ctx)

	typing := session.NewTypingController(coord, 0)
	defer typing.Stop()

	activeRoom := opts.room
	if activeRoom == "" {
		if rooms, err := rest.ListRooms(ctx); err == nil && len(rooms) > 0 {
			activeRoom = rooms[0].ID
		}
	}
	if activeRoom != "" {
		coord.JoinRoom(activeRoom)
		fmt.Printf("* joined room %s\n", activeRoom)
	}

	fmt.Println("Commands: /rooms, /join <id>, /read, /quit. Anything else is sent as a message.")
	return inputLoop(ctx, rest, coord, typing, bus, &activeRoom)
}

func resolveToken(ctx context.Context, opts options) (string, error) {
	if opts.token != "" {
		return opts.token, nil
	}

	authClient := session.NewAuthClient(opts.server, nil)
	if opts.guest {
		token, _, err := authClient.Guest(ctx)
		if err != nil {
			return "", fmt.Errorf("guest login: %w", err)
		}
		return token, nil
	}
	if opts.handle != "" {
		token, err := authClient.Login(ctx, opts.handle, opts.password)
		if err != nil {
			return "", fmt.Errorf("login: %w", err)
		}
		return token, nil
	}
	return "", fmt.Errorf("provide --token, --handle/--password, or --guest")
}

func inputLoop(ctx context.Context, rest *session.Client, coord *session.Coordinator, typing *session.TypingController, bus *notify.Bus, activeRoom *string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case line == "/quit":
				return nil
			case line == "/rooms":
				printRooms(ctx, rest)
			case line == "/read":
				if *activeRoom != "" {
					reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
					if err := rest.MarkRead(reqCtx, *activeRoom); err != nil {
						fmt.Printf("! mark read: %v\n", err)
					}
					cancel()
					bus.Publish(notify.TopicRefreshUnread, nil)
				}
			case strings.HasPrefix(line, "/join "):
				room := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
				if room != "" {
					typing.Stop()
					coord.JoinRoom(room)
					*activeRoom = room
					fmt.Printf("* joined room %s\n", room)
				}
			default:
				if *activeRoom == "" {
					fmt.Println("! join a room first (/join <id>)")
					continue
				}
				typing.HandleInputChange(*activeRoom)
				if coord.SendMessage(*activeRoom, line) {
					typing.MessageSent()
				} else {
					fmt.Println("! message not sent")
				}
			}
		}
	}
}

func printRooms(ctx context.Context, rest *session.Client) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rooms, err := rest.ListRooms(reqCtx)
	if err != nil {
		fmt.Printf("! list rooms: %v\n", err)
		return
	}
	for _, room := range rooms {
		marker := " "
		if room.UnreadCount > 0 {
			marker = "*"
		}
		fmt.Printf("%s %s  %s (%d unread)\n", marker, room.ID, room.Name, room.UnreadCount)
	}
}
