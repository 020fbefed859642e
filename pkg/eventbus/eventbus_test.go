package eventbus

import (
	"testing"
	"time"
)

func TestEarlyBufferDrainsOnFirstAttach(t *testing.T) {
	b := New(16, 16)
	b.Publish("proxy-started", "1", "a")
	b.Publish("proxy-started", "2", "b")

	sub := b.Subscribe("proxy-started")
	defer sub.Unsubscribe()

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.Events:
			got = append(got, ev.ID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for drained early-buffer events")
		}
	}
	if got[0] != "1" || got[1] != "2" {
		t.Errorf("drained order = %v, want [1 2]", got)
	}
}

func TestEarlyBufferDiscardedAfterFirstAttach(t *testing.T) {
	b := New(16, 16)
	sub1 := b.Subscribe("mock-served")
	sub1.Unsubscribe()

	b.Publish("mock-served", "x", "payload")

	sub2 := b.Subscribe("mock-served")
	defer sub2.Unsubscribe()

	select {
	case ev := <-sub2.Events:
		t.Fatalf("second subscriber should not see pre-subscribe publish as a replayed early-buffer event, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishDeliversToActiveSubscriber(t *testing.T) {
	b := New(16, 16)
	sub := b.Subscribe("database-query")
	defer sub.Unsubscribe()

	b.Publish("database-query", "req-1", map[string]any{"query": "SELECT 1"})

	select {
	case ev := <-sub.Events:
		if ev.ID != "req-1" {
			t.Errorf("ID = %q, want req-1", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishNonBlockingOnFullSubscriber(t *testing.T) {
	b := New(1, 1)
	sub := b.Subscribe("outgoing-request")
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish("outgoing-request", "id", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked a producer on a full subscriber buffer")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(16, 16)
	sub := b.Subscribe("proxy-stopped")
	sub.Unsubscribe()

	b.Publish("proxy-stopped", "id", "payload")

	select {
	case ev, ok := <-sub.Events:
		if ok {
			t.Fatalf("received event after unsubscribe: %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
	}
}
