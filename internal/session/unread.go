package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kupantip/chat-server/internal/notify"
)

// DefaultUnreadPollInterval is how often the unread total is refetched
// when no explicit refresh arrives.
const DefaultUnreadPollInterval = 30 * time.Second

type roomLister interface {
	ListRooms(ctx context.Context) ([]Room, error)
}

// UnreadCounter maintains the total unread message count across all of
// the user's rooms. The total is always a sum over a fresh room-list
// snapshot, never an incremental adjustment, so it cannot drift.
//
// Concurrent refreshes may race; whichever resolves last overwrites the
// total. A failed fetch keeps the previous value.
type UnreadCounter struct {
	client   roomLister
	bus      *notify.Bus
	log      zerolog.Logger
	interval time.Duration

	mu       sync.Mutex
	total    int
	onChange []func(int)
}

// NewUnreadCounter builds a counter polling via client. The bus is
// optional; when present, publishes on notify.TopicRefreshUnread trigger
// an immediate refetch. A non-positive interval falls back to
// DefaultUnreadPollInterval.
func NewUnreadCounter(client roomLister, bus *notify.Bus, logger *zerolog.Logger, interval time.Duration) *UnreadCounter {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	if interval <= 0 {
		interval = DefaultUnreadPollInterval
	}
	return &UnreadCounter{client: client, bus: bus, log: log, interval: interval}
}

// Total returns the last successfully computed unread total.
func (u *UnreadCounter) Total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total
}

// OnChange registers a handler invoked with the new total after each
// successful refresh.
func (u *UnreadCounter) OnChange(fn func(total int)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onChange = append(u.onChange, fn)
}

// Run refreshes immediately, then on every tick and on every refresh
// signal, until ctx is done.
func (u *UnreadCounter) Run(ctx context.Context) {
	if u.bus != nil {
		cancel := u.bus.Subscribe(notify.TopicRefreshUnread, func(any) {
			u.Refresh(ctx)
		})
		defer cancel()
	}

	u.Refresh(ctx)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.Refresh(ctx)
		}
	}
}

// Refresh refetches the room list and recomputes the total. On failure
// the previous total stands and the error is only logged.
func (u *UnreadCounter) Refresh(ctx context.Context) {
	rooms, err := u.client.ListRooms(ctx)
	if err != nil {
		u.log.Warn().Err(err).Msg("unread refresh failed, keeping previous total")
		return
	}

	total := 0
	for _, room := range rooms {
		total += room.UnreadCount
	}

	u.mu.Lock()
	changed := total != u.total
	u.total = total
	handlers := append([]func(int){}, u.onChange...)
	u.mu.Unlock()

	if changed {
		for _, fn := range handlers {
			fn(total)
		}
	}
}
