package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mzahid/dialdesk/internal/bus"
	"github.com/mzahid/dialdesk/internal/inbox"
)

func newTestStore(b *bus.Bus) *inbox.Store {
	clock := inbox.Clock{Now: time.Now, Loc: time.UTC}
	return inbox.NewStore("+15550000000", clock, nil, b, nil)
}

// newTestListener wires a listener with instant reconnect waits.
func newTestListener(url string, store *inbox.Store, b *bus.Bus) *Listener {
	l := NewListener(url, store, b, nil)
	l.sleep = func(ctx context.Context, d time.Duration) bool {
		return ctx.Err() == nil
	}
	return l
}

func sseHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			fl.Flush()
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListenerMergesPushedFrames(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		`{"type":"connected"}`,
		`{"type":"heartbeat"}`,
		`{"type":"message","phone":"+15551234567","name":"Asim","message":{"id":"SM1","content":"hello","sender":"contact","timestamp":"2024-01-10T10:00:00Z","type":"text"}}`,
		`{"type":"call","phone":"+15551234567","message":{"id":"CA1","content":"Missed call","sender":"contact","timestamp":"2024-01-10T10:05:00Z","type":"call_log","callType":"missed"}}`,
	))
	defer srv.Close()

	store := newTestStore(nil)
	l := newTestListener(srv.URL, store, nil)
	l.Start(context.Background())
	defer l.Stop()

	waitFor(t, func() bool {
		c, ok := store.Get("15551234567")
		return ok && len(c.Messages) == 2
	})

	conv, _ := store.Get("15551234567")
	if conv.Name != "Asim" {
		t.Fatalf("name = %q, want Asim", conv.Name)
	}
	if conv.Kind != inbox.KindCall {
		t.Fatalf("kind = %q, want call after call frame", conv.Kind)
	}
	if conv.CallStatus != inbox.CallMissed {
		t.Fatalf("call status = %q, want missed", conv.CallStatus)
	}
	if conv.UnreadCount != 1 {
		// Only the text message counts as unread inbound content.
		t.Fatalf("unread count = %d, want 1", conv.UnreadCount)
	}
}

func TestListenerDropsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		`{not json`,
		`{"type":"message","phone":"","message":{"id":"SM0"}}`,
		`{"type":"wormhole"}`,
		`{"type":"message","phone":"+15559999999","message":{"id":"SM2","content":"still here","sender":"contact","timestamp":"2024-01-10T10:00:00Z","type":"text"}}`,
	))
	defer srv.Close()

	store := newTestStore(nil)
	l := newTestListener(srv.URL, store, nil)
	l.Start(context.Background())
	defer l.Stop()

	waitFor(t, func() bool { return store.Len() == 1 })
	if _, ok := store.Get("15559999999"); !ok {
		t.Fatal("valid frame after malformed ones was not merged")
	}
}

func TestListenerDuplicateOfPolledMessageIsNoOp(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		`{"type":"message","phone":"+15551234567","message":{"id":"SM1","content":"hello","sender":"contact","timestamp":"2024-01-10T10:00:00Z","type":"text"}}`,
	))
	defer srv.Close()

	store := newTestStore(nil)
	// Poll already delivered the same message.
	store.Merge([]inbox.Delta{{
		Phone: "+15551234567",
		Kind:  inbox.KindMessage,
		Messages: []inbox.Message{{
			ID: "SM1", Content: "hello", Sender: inbox.SenderContact,
			Timestamp: "2024-01-10T10:00:00Z", Type: inbox.TypeText,
		}},
	}})

	l := newTestListener(srv.URL, store, nil)
	l.Start(context.Background())
	l.Stop()

	conv, _ := store.Get("15551234567")
	if len(conv.Messages) != 1 {
		t.Fatalf("messages = %d, want 1 (push duplicate discarded)", len(conv.Messages))
	}
	if conv.UnreadCount != 1 {
		t.Fatalf("unread count = %d, want 1", conv.UnreadCount)
	}
}

func TestListenerFallsBackAfterRepeatedFailures(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := bus.New()
	events, cancel := b.Subscribe("stream.", 16)
	defer cancel()

	store := newTestStore(nil)
	l := newTestListener(srv.URL, store, b)
	l.Start(context.Background())

	var got []string
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			got = append(got, ev.Kind)
		case <-deadline:
			t.Fatalf("no stream.fallback, events so far: %v", got)
		}
		if len(got) > 0 && got[len(got)-1] == "stream.fallback" {
			break
		}
	}

	l.Stop()
	if attempts != maxAttempts {
		t.Fatalf("connection attempts = %d, want %d", attempts, maxAttempts)
	}
	for _, k := range got {
		if k == "stream.connected" {
			t.Fatal("reported connected on a failing stream")
		}
	}
}

func TestBackoffSchedule(t *testing.T) {
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i, w := range want {
		if got := backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}
