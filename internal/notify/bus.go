// Package notify provides a small in-process publish/subscribe bus with
// named topics. It replaces ambient global event listeners with an explicit
// registry that components receive by injection.
package notify

import "sync"

// TopicRefreshUnread asks the unread aggregator to refetch immediately.
// Published after actions that change read state (send, mark-read).
const TopicRefreshUnread = "chat.refresh-unread"

// Handler receives the payload published on a topic.
type Handler func(payload any)

// Bus is a synchronous topic-based dispatcher. Handlers run on the
// publisher's goroutine, in subscription order.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[int]Handler
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers a handler for a topic and returns a cancel func.
// Cancel is idempotent.
func (b *Bus) Subscribe(topic string, fn Handler) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.next
	b.next++
	b.subs[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish delivers the payload to all current subscribers of the topic.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
}
