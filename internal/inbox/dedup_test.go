package inbox

import (
	"testing"
	"time"

	"github.com/mzahid/dialdesk/internal/timefmt"
)

var testNow = time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

func testClock() Clock {
	return Clock{
		Now: func() time.Time { return testNow },
		Loc: timefmt.LoadLocation("Asia/Karachi"),
	}
}

func ts(offset time.Duration) string {
	return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC).Add(offset).Format(time.RFC3339)
}

func textMsg(id, content string, sender Sender, offset time.Duration) Message {
	return Message{ID: id, Content: content, Sender: sender, Timestamp: ts(offset), Type: TypeText}
}

func TestExistsIDMatch(t *testing.T) {
	c := testClock()
	existing := []Message{textMsg("A", "hi", SenderContact, 0)}
	// Same id, completely different content and time: still a duplicate.
	candidate := Message{ID: "A", Content: "other", Sender: SenderSelf, Timestamp: ts(time.Hour), Type: TypeText}
	if !c.Exists(existing, candidate) {
		t.Error("identity match should win regardless of content")
	}
}

func TestExistsWindowBoundary(t *testing.T) {
	c := testClock()
	existing := []Message{textMsg("A", "hi", SenderContact, 0)}

	within := textMsg("B", "hi", SenderContact, 119*time.Second)
	if !c.Exists(existing, within) {
		t.Error("119s apart with same content key should be a duplicate")
	}

	outside := textMsg("C", "hi", SenderContact, 121*time.Second)
	if c.Exists(existing, outside) {
		t.Error("121s apart should be kept as a second message")
	}
}

func TestExistsContentKeyMismatch(t *testing.T) {
	c := testClock()
	existing := []Message{textMsg("A", "hi", SenderContact, 0)}

	tests := []Message{
		textMsg("B", "hi there", SenderContact, time.Second),
		textMsg("C", "hi", SenderSelf, time.Second),
		{ID: "D", Content: "hi", Sender: SenderContact, Timestamp: ts(time.Second), Type: TypeCallLog},
	}
	for _, m := range tests {
		if c.Exists(existing, m) {
			t.Errorf("message %s should not be a duplicate", m.ID)
		}
	}
}

func TestDeduplicateAndSortOrders(t *testing.T) {
	c := testClock()
	msgs := []Message{
		textMsg("C", "three", SenderContact, 10*time.Minute),
		textMsg("A", "one", SenderContact, 0),
		textMsg("B", "two", SenderSelf, 5*time.Minute),
	}
	got := c.DeduplicateAndSort(msgs)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i, id := range []string{"A", "B", "C"} {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestDeduplicateKeepsEarlierRecord(t *testing.T) {
	c := testClock()
	msgs := []Message{
		textMsg("A", "hi", SenderContact, 0),
		textMsg("B", "hi", SenderContact, 30*time.Second),
	}
	got := c.DeduplicateAndSort(msgs)
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	if got[0].ID != "A" {
		t.Errorf("kept %s, want the earlier-stored A", got[0].ID)
	}
}

func TestDeduplicateAndSortIdempotent(t *testing.T) {
	c := testClock()
	msgs := []Message{
		textMsg("A", "hi", SenderContact, 0),
		textMsg("B", "hi", SenderContact, 30*time.Second),
		textMsg("C", "hi", SenderContact, 10*time.Minute),
		textMsg("D", "bye", SenderSelf, time.Minute),
		{ID: "E", Content: "later", Sender: SenderContact, Timestamp: "5 min ago", Type: TypeText},
	}
	once := c.DeduplicateAndSort(msgs)
	twice := c.DeduplicateAndSort(once)
	if len(once) != len(twice) {
		t.Fatalf("idempotence broken: %d then %d messages", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("position %d differs: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestUnparsableTimestampsSortFirst(t *testing.T) {
	c := testClock()
	msgs := []Message{
		textMsg("A", "one", SenderContact, 0),
		{ID: "B", Content: "two", Sender: SenderContact, Timestamp: "5 min ago", Type: TypeText},
	}
	got := c.DeduplicateAndSort(msgs)
	if got[0].ID != "B" {
		t.Errorf("unparsable timestamp should sort before parsable ones, got %s first", got[0].ID)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct{ in, want string }{
		{"+1 (555) 123-4567", "15551234567"},
		{"+15551234567", "15551234567"},
		{"client:agent_device", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsDeviceAddress(t *testing.T) {
	if !IsDeviceAddress("client:agent_device") {
		t.Error("client: prefix should be detected")
	}
	if IsDeviceAddress("+15551234567") {
		t.Error("plain number is not a device address")
	}
}
