package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("inbox.", 10)
	defer unsub()

	b.Publish(Event{Kind: "inbox.updated", Timestamp: time.Now(), Payload: "x"})

	select {
	case evt := <-ch:
		if evt.Kind != "inbox.updated" {
			t.Errorf("got kind %q, want inbox.updated", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("stream.", 10)
	defer unsub()

	b.Publish(Event{Kind: "sync.completed"})
	b.Publish(Event{Kind: "stream.connected"})

	select {
	case evt := <-ch:
		if evt.Kind != "stream.connected" {
			t.Errorf("got kind %q, want stream.connected", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmptyPrefixMatchesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	b.Publish(Event{Kind: "sync.completed"})
	b.Publish(Event{Kind: "stream.connected"})

	for _, want := range []string{"sync.completed", "stream.connected"} {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("got kind %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("inbox.", 10)
	unsub()

	b.Publish(Event{Kind: "inbox.updated"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("inbox.", 1)
	defer unsub()

	b.Publish(Event{Kind: "inbox.one"})
	b.Publish(Event{Kind: "inbox.two"})

	evt := <-ch
	if evt.Kind != "inbox.one" {
		t.Errorf("got %q, want inbox.one", evt.Kind)
	}
	select {
	case evt := <-ch:
		t.Errorf("second event should have been dropped, got %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
