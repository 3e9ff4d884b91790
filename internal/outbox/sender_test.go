package outbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mzahid/dialdesk/internal/bus"
	"github.com/mzahid/dialdesk/internal/inbox"
	"github.com/mzahid/dialdesk/internal/store"
)

// mockSender records calls and returns configurable results.
type mockSender struct {
	mu    sync.Mutex
	calls []sendCall
	err   error
}

type sendCall struct {
	To   string
	Body string
}

func (m *mockSender) SendMessage(_ context.Context, to, body, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sendCall{To: to, Body: body})
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("SM%03d", len(m.calls)), nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testInbox() *inbox.Store {
	clock := inbox.Clock{Now: time.Now, Loc: time.UTC}
	return inbox.NewStore("+15550000000", clock, nil, nil, nil)
}

func TestSenderDrainsQueue(t *testing.T) {
	db := testDB(t)
	ib := testInbox()
	b := bus.New()
	mock := &mockSender{}
	s := NewSender(db, ib, mock, b, nil)

	ch, unsub := b.Subscribe("outbox.send_ack", 10)
	defer unsub()

	if err := db.QueueOutbox("c1", "+15551234567", "hello"); err != nil {
		t.Fatal(err)
	}

	s.processPending(context.Background())

	if len(mock.calls) != 1 || mock.calls[0].Body != "hello" {
		t.Fatalf("provider calls = %+v, want one hello", mock.calls)
	}

	select {
	case evt := <-ch:
		payload := evt.Payload.(map[string]string)
		if payload["client_msg_id"] != "c1" || payload["provider_sid"] != "SM001" {
			t.Errorf("ack payload = %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no send_ack event")
	}

	// Optimistic insert landed in the inbox as an own, read message.
	conv, ok := ib.Get("15551234567")
	if !ok || len(conv.Messages) != 1 {
		t.Fatalf("inbox conversation = (%+v, %v)", conv, ok)
	}
	if conv.Messages[0].Sender != inbox.SenderSelf || !conv.Messages[0].Read {
		t.Errorf("optimistic message = %+v, want own read message", conv.Messages[0])
	}
	if conv.Unread {
		t.Error("own queued message marked the conversation unread")
	}

	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Fatalf("pending after drain = %d, want 0", len(pending))
	}
}

func TestSenderMarksFailures(t *testing.T) {
	db := testDB(t)
	ib := testInbox()
	b := bus.New()
	mock := &mockSender{err: fmt.Errorf("undeliverable")}
	s := NewSender(db, ib, mock, b, nil)

	ch, unsub := b.Subscribe("outbox.send_failed", 10)
	defer unsub()

	if err := db.QueueOutbox("c1", "+15551234567", "hello"); err != nil {
		t.Fatal(err)
	}

	s.processPending(context.Background())

	select {
	case evt := <-ch:
		payload := evt.Payload.(map[string]string)
		if payload["error"] != "undeliverable" {
			t.Errorf("failure payload = %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no send_failed event")
	}

	// Failed entries leave the queue; they are not retried blindly.
	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Fatalf("pending after failure = %d, want 0", len(pending))
	}
}

func TestSenderPreservesQueueOrder(t *testing.T) {
	db := testDB(t)
	mock := &mockSender{}
	s := NewSender(db, testInbox(), mock, nil, nil)

	for i := 1; i <= 3; i++ {
		if err := db.QueueOutbox(fmt.Sprintf("c%d", i), "+15551234567", fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	s.processPending(context.Background())

	if len(mock.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(mock.calls))
	}
	for i, c := range mock.calls {
		want := fmt.Sprintf("msg %d", i+1)
		if c.Body != want {
			t.Errorf("call %d body = %q, want %q", i, c.Body, want)
		}
	}
}

func TestStartRequeuesStuckEntries(t *testing.T) {
	db := testDB(t)
	mock := &mockSender{}
	s := NewSender(db, testInbox(), mock, nil, nil)

	if err := db.QueueOutbox("c1", "+15551234567", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending("c1"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer func() { cancel(); s.Stop() }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		pending, err := db.PendingOutbox()
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) == 0 && mock.callCount() > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stuck entry never drained; pending=%d calls=%d", len(pending), mock.callCount())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
