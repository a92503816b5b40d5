// Package presence tracks which users currently hold a live connection.
package presence

import (
	"context"
	"sync"
	"time"
)

// Tracker records online users. Implementations must be safe for
// concurrent use.
type Tracker interface {
	// SetOnline marks the user as online, refreshing any expiry.
	SetOnline(ctx context.Context, userID int64) error

	// SetOffline clears the user's online mark.
	SetOffline(ctx context.Context, userID int64) error

	// IsOnline reports whether the user is currently marked online.
	IsOnline(ctx context.Context, userID int64) (bool, error)

	// Close releases any underlying resources.
	Close() error
}

// Memory is an in-process Tracker. Entries expire after ttl so a
// crashed connection does not pin a user online forever.
type Memory struct {
	mu     sync.Mutex
	online map[int64]time.Time
	ttl    time.Duration
}

// NewMemory creates an in-memory tracker. ttl <= 0 disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		online: make(map[int64]time.Time),
		ttl:    ttl,
	}
}

// SetOnline marks the user as online.
func (m *Memory) SetOnline(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[userID] = time.Now()
	return nil
}

// SetOffline clears the user's online mark.
func (m *Memory) SetOffline(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.online, userID)
	return nil
}

// IsOnline reports whether the user is marked online and not expired.
func (m *Memory) IsOnline(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen, ok := m.online[userID]
	if !ok {
		return false, nil
	}
	if m.ttl > 0 && time.Since(seen) > m.ttl {
		delete(m.online, userID)
		return false, nil
	}
	return true, nil
}

// Close is a no-op for the in-memory tracker.
func (m *Memory) Close() error {
	return nil
}
