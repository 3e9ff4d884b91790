package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mzahid/dialdesk/internal/inbox"
)

// UpsertContact inserts or updates a contact keyed by normalized phone.
// The normalized form is derived here so callers can pass numbers in any
// formatting.
func (db *DB) UpsertContact(c *Contact) error {
	c.NormalizedPhone = inbox.NormalizePhone(c.Phone)
	if c.NormalizedPhone == "" {
		return fmt.Errorf("contact %q has no usable phone number", c.Name)
	}
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO contacts (name, phone, normalized_phone, email, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_phone) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
			phone = excluded.phone,
			email = CASE WHEN excluded.email != '' THEN excluded.email ELSE contacts.email END,
			notes = CASE WHEN excluded.notes != '' THEN excluded.notes ELSE contacts.notes END,
			updated_at = excluded.updated_at`,
		c.Name, c.Phone, c.NormalizedPhone, c.Email, c.Notes, now, now)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil && c.ID == 0 {
		c.ID = id
	}
	return nil
}

// GetContactByPhone returns the contact for a phone number in any
// formatting, or nil when none is saved.
func (db *DB) GetContactByPhone(phone string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`
		SELECT id, name, phone, normalized_phone, email, notes
		FROM contacts WHERE normalized_phone = ?`, inbox.NormalizePhone(phone)).
		Scan(&c.ID, &c.Name, &c.Phone, &c.NormalizedPhone, &c.Email, &c.Notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns all contacts ordered by name.
func (db *DB) ListContacts() ([]Contact, error) {
	rows, err := db.Query(`
		SELECT id, name, phone, normalized_phone, email, notes
		FROM contacts ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.NormalizedPhone, &c.Email, &c.Notes); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// DeleteContact removes a contact by id.
func (db *DB) DeleteContact(id int64) error {
	_, err := db.Exec(`DELETE FROM contacts WHERE id = ?`, id)
	return err
}

// NameByPhone looks up the saved name for a normalized phone number. It
// satisfies the inbox's contact resolver, making saved names the
// name-of-record during merges.
func (db *DB) NameByPhone(normalized string) (string, bool) {
	var name string
	err := db.QueryRow(`SELECT name FROM contacts WHERE normalized_phone = ?`, normalized).Scan(&name)
	if err != nil || name == "" {
		return "", false
	}
	return name, true
}

var _ inbox.ContactResolver = (*DB)(nil)
