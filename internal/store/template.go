package store

import (
	"database/sql"
	"time"
)

// SaveTemplate inserts a new template or updates an existing one.
func (db *DB) SaveTemplate(t *Template) error {
	now := time.Now().UnixMilli()
	if t.ID == 0 {
		res, err := db.Exec(`
			INSERT INTO templates (title, body, created_at, updated_at)
			VALUES (?, ?, ?, ?)`, t.Title, t.Body, now, now)
		if err != nil {
			return err
		}
		t.ID, _ = res.LastInsertId()
		return nil
	}
	_, err := db.Exec(`UPDATE templates SET title = ?, body = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Body, now, t.ID)
	return err
}

// GetTemplate returns a template by id, or nil when absent.
func (db *DB) GetTemplate(id int64) (*Template, error) {
	var t Template
	err := db.QueryRow(`SELECT id, title, body FROM templates WHERE id = ?`, id).
		Scan(&t.ID, &t.Title, &t.Body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTemplates returns all templates ordered by title.
func (db *DB) ListTemplates() ([]Template, error) {
	rows, err := db.Query(`SELECT id, title, body FROM templates ORDER BY title COLLATE NOCASE ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var templates []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Title, &t.Body); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// DeleteTemplate removes a template by id.
func (db *DB) DeleteTemplate(id int64) error {
	_, err := db.Exec(`DELETE FROM templates WHERE id = ?`, id)
	return err
}
