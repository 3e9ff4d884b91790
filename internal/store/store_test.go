package store

import (
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestContactUpsertAndLookup(t *testing.T) {
	db := testDB(t)

	c := &Contact{Name: "Asim Raza", Phone: "+1 (555) 123-4567", Email: "asim@example.com"}
	if err := db.UpsertContact(c); err != nil {
		t.Fatal(err)
	}
	if c.NormalizedPhone != "15551234567" {
		t.Errorf("normalized phone = %q, want 15551234567", c.NormalizedPhone)
	}

	// A differently formatted number hits the same row.
	got, err := db.GetContactByPhone("15551234567")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "Asim Raza" {
		t.Fatalf("contact = %+v, want Asim Raza", got)
	}

	// Re-upsert with a new name updates rather than duplicates.
	if err := db.UpsertContact(&Contact{Name: "Asim R.", Phone: "1-555-123-4567"}); err != nil {
		t.Fatal(err)
	}
	all, err := db.ListContacts()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("contacts = %d, want 1", len(all))
	}
}

func TestContactUpsertRejectsEmptyPhone(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertContact(&Contact{Name: "Nobody", Phone: "ext. office"}); err == nil {
		t.Fatal("expected error for contact with no digits in phone")
	}
}

func TestNameByPhoneResolver(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertContact(&Contact{Name: "Saved Name", Phone: "+15557654321"}); err != nil {
		t.Fatal(err)
	}

	name, ok := db.NameByPhone("15557654321")
	if !ok || name != "Saved Name" {
		t.Errorf("NameByPhone = (%q, %v), want (Saved Name, true)", name, ok)
	}
	if _, ok := db.NameByPhone("19990000000"); ok {
		t.Error("NameByPhone should miss for unsaved number")
	}
}

func TestTemplateCRUD(t *testing.T) {
	db := testDB(t)

	tpl := &Template{Title: "Follow up", Body: "Hi, just following up on our call."}
	if err := db.SaveTemplate(tpl); err != nil {
		t.Fatal(err)
	}
	if tpl.ID == 0 {
		t.Fatal("SaveTemplate did not assign an id")
	}

	tpl.Body = "Hi, following up."
	if err := db.SaveTemplate(tpl); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetTemplate(tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Body != "Hi, following up." {
		t.Fatalf("template = %+v, want updated body", got)
	}

	if err := db.DeleteTemplate(tpl.ID); err != nil {
		t.Fatal(err)
	}
	if got, _ := db.GetTemplate(tpl.ID); got != nil {
		t.Error("template survived delete")
	}
}

func TestFilterSaveReplacesByName(t *testing.T) {
	db := testDB(t)

	if err := db.SaveFilter(&Filter{Name: "unread", Query: `{"unread":true}`}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveFilter(&Filter{Name: "unread", Query: `{"unread":true,"type":"call"}`}); err != nil {
		t.Fatal(err)
	}

	filters, err := db.ListFilters()
	if err != nil {
		t.Fatal(err)
	}
	if len(filters) != 1 {
		t.Fatalf("filters = %d, want 1", len(filters))
	}
	if filters[0].Query != `{"unread":true,"type":"call"}` {
		t.Errorf("query = %q, want replaced query", filters[0].Query)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("c1", "+15551234567", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox("c2", "+15551234567", "again"); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].ClientMsgID != "c1" {
		t.Fatalf("pending = %+v, want c1 then c2", pending)
	}

	if err := db.MarkOutboxSending("c1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("c1", "SM123"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxFailed("c2", "provider rejected"); err != nil {
		t.Fatal(err)
	}

	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after transitions = %d, want 0", len(pending))
	}
}

func TestRequeueStuckSending(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("c1", "+15551234567", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending("c1"); err != nil {
		t.Fatal(err)
	}

	n, err := db.RequeueStuckSending()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("requeued = %d, want 1", n)
	}
	pending, _ := db.PendingOutbox()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
}

func TestUserAuth(t *testing.T) {
	db := testDB(t)

	u, err := db.CreateUser("zara", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID == 0 {
		t.Fatal("user id not assigned")
	}

	if _, err := db.Authenticate("zara", "hunter2"); err != nil {
		t.Errorf("valid login: %v", err)
	}
	if _, err := db.Authenticate("zara", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("bad password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := db.Authenticate("nobody", "hunter2"); err != ErrInvalidCredentials {
		t.Errorf("unknown user error = %v, want ErrInvalidCredentials", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	db := testDB(t)

	u, err := db.CreateUser("zara", "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	token, err := db.CreateSession(u.ID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.SessionUser(token)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Username != "zara" {
		t.Fatalf("session user = %+v, want zara", got)
	}

	if err := db.DeleteSession(token); err != nil {
		t.Fatal(err)
	}
	if got, _ := db.SessionUser(token); got != nil {
		t.Error("session survived logout")
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	db := testDB(t)

	u, err := db.CreateUser("zara", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	token, err := db.CreateSession(u.ID, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if got, _ := db.SessionUser(token); got != nil {
		t.Error("expired session still resolved")
	}
}
