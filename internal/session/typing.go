package session

import (
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last keystroke the typing
// indicator is retracted.
const DefaultTypingIdle = 2 * time.Second

type typingRelay interface {
	SendTyping(roomID string, isTyping bool)
}

// TypingController debounces keystrokes into at most one typing:true per
// idle-to-active transition, with typing:false after the idle window or
// when a message is sent. Callers invoke HandleInputChange on every
// keystroke; the controller decides what actually goes on the wire.
type TypingController struct {
	relay typingRelay
	idle  time.Duration

	mu     sync.Mutex
	active bool
	room   string
	timer  *time.Timer
}

// NewTypingController wires a controller to a relay. A non-positive idle
// falls back to DefaultTypingIdle.
func NewTypingController(relay typingRelay, idle time.Duration) *TypingController {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingController{relay: relay, idle: idle}
}

// HandleInputChange records a keystroke in roomID. The first keystroke of
// a burst emits typing:true; subsequent ones only push the idle deadline.
// Switching rooms mid-burst retracts the indicator in the old room first.
func (t *TypingController) HandleInputChange(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active && t.room == roomID {
		t.timer.Reset(t.idle)
		return
	}
	if t.active {
		t.relay.SendTyping(t.room, false)
		t.timer.Stop()
	}

	t.active = true
	t.room = roomID
	t.relay.SendTyping(roomID, true)
	t.timer = time.AfterFunc(t.idle, t.expire)
}

func (t *TypingController) expire() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return
	}
	t.active = false
	t.relay.SendTyping(t.room, false)
}

// MessageSent retracts the typing indicator immediately. Sending a
// message implies the burst is over.
func (t *TypingController) MessageSent() {
	t.stop()
}

// Stop retracts any outstanding indicator, for use on room switches and
// teardown.
func (t *TypingController) Stop() {
	t.stop()
}

func (t *TypingController) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return
	}
	t.timer.Stop()
	t.active = false
	t.relay.SendTyping(t.room, false)
}
