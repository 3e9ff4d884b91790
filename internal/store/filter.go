package store

import (
	"database/sql"
	"time"
)

// SaveFilter stores a named inbox filter, replacing any previous filter
// with the same name.
func (db *DB) SaveFilter(f *Filter) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO filters (name, query, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET query = excluded.query`,
		f.Name, f.Query, now)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil && f.ID == 0 {
		f.ID = id
	}
	return nil
}

// GetFilter returns a saved filter by name, or nil when absent.
func (db *DB) GetFilter(name string) (*Filter, error) {
	var f Filter
	err := db.QueryRow(`SELECT id, name, query FROM filters WHERE name = ?`, name).
		Scan(&f.ID, &f.Name, &f.Query)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFilters returns all saved filters ordered by name.
func (db *DB) ListFilters() ([]Filter, error) {
	rows, err := db.Query(`SELECT id, name, query FROM filters ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var filters []Filter
	for rows.Next() {
		var f Filter
		if err := rows.Scan(&f.ID, &f.Name, &f.Query); err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, rows.Err()
}

// DeleteFilter removes a saved filter by name.
func (db *DB) DeleteFilter(name string) error {
	_, err := db.Exec(`DELETE FROM filters WHERE name = ?`, name)
	return err
}
