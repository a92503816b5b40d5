package notify

import "testing"

func TestBusPublishReachesSubscribers(t *testing.T) {
	bus := NewBus()

	var got []any
	cancel := bus.Subscribe(TopicRefreshUnread, func(payload any) {
		got = append(got, payload)
	})
	defer cancel()

	bus.Publish(TopicRefreshUnread, nil)
	bus.Publish(TopicRefreshUnread, "again")

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[1] != "again" {
		t.Errorf("unexpected payload: %v", got[1])
	}
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := NewBus()

	calls := 0
	cancel := bus.Subscribe("topic", func(any) { calls++ })

	bus.Publish("topic", nil)
	cancel()
	cancel() // idempotent
	bus.Publish("topic", nil)

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestBusTopicsAreIndependent(t *testing.T) {
	bus := NewBus()

	aCalls, bCalls := 0, 0
	bus.Subscribe("a", func(any) { aCalls++ })
	bus.Subscribe("b", func(any) { bCalls++ })

	bus.Publish("a", nil)

	if aCalls != 1 || bCalls != 0 {
		t.Fatalf("expected a=1 b=0, got a=%d b=%d", aCalls, bCalls)
	}
}
