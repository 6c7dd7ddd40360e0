package eventbus

import (
	"testing"
	"time"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	b := New()
	sub := b.Subscribe(EventJobProgress)
	defer sub.Unsubscribe()

	b.Publish(Event{Type: EventJobProgress, Payload: JobProgressPayload{ItemID: "item-1", Stage: "EMBEDDING"}})

	select {
	case ev := <-sub.Events():
		payload, ok := ev.Payload.(JobProgressPayload)
		if !ok || payload.ItemID != "item-1" {
			t.Fatalf("unexpected payload: %#v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeFiltersByTopic(t *testing.T) {
	b := New()
	sub := b.Subscribe(EventJobComplete)
	defer sub.Unsubscribe()

	b.Publish(Event{Type: EventJobProgress, Payload: JobProgressPayload{}})
	b.Publish(Event{Type: EventJobComplete, Payload: JobCompletePayload{ItemID: "item-2"}})

	select {
	case ev := <-sub.Events():
		if ev.Type != EventJobComplete {
			t.Fatalf("expected job_complete, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected second event: %#v", ev)
		}
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Events()
	if ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestSlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := New()
	sub := b.Subscribe(EventJobProgress)
	defer sub.Unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Type: EventJobProgress, Payload: JobProgressPayload{ItemID: "flood"}})
	}
	// Must not deadlock or panic; that's the assertion.
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	b := New()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	b.Close()

	if _, ok := <-sub1.Events(); ok {
		t.Fatal("expected sub1 channel closed")
	}
	if _, ok := <-sub2.Events(); ok {
		t.Fatal("expected sub2 channel closed")
	}

	// Publish after close should be a no-op, not a panic.
	b.Publish(Event{Type: EventError})
}
