package store

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCredentials is returned for a bad username/password pair. One
// error for both cases so login responses don't leak which part was wrong.
var ErrInvalidCredentials = fmt.Errorf("invalid username or password")

// DefaultSessionTTL is how long a login session stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

// CreateUser registers a dashboard account. The password is stored as
// sha256(salt+password) with a random per-user salt.
func (db *DB) CreateUser(username, password string) (*User, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)

	res, err := db.Exec(`
		INSERT INTO users (username, password_hash, salt, created_at)
		VALUES (?, ?, ?, ?)`,
		username, hashPassword(saltHex, password), saltHex, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create user %q: %w", username, err)
	}
	id, _ := res.LastInsertId()
	return &User{ID: id, Username: username}, nil
}

// Authenticate checks a username/password pair and returns the user.
func (db *DB) Authenticate(username, password string) (*User, error) {
	var (
		u    User
		hash string
		salt string
	)
	err := db.QueryRow(`SELECT id, username, password_hash, salt FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &hash, &salt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(hash), []byte(hashPassword(salt, password))) != 1 {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// UserCount returns the number of registered accounts.
func (db *DB) UserCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CreateSession issues a new session token for a user.
func (db *DB) CreateSession(userID int64, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	token := uuid.NewString()
	expires := time.Now().Add(ttl).UnixMilli()
	if _, err := db.Exec(`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expires); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// SessionUser resolves a session token to its user. Expired sessions are
// deleted on sight and report as absent.
func (db *DB) SessionUser(token string) (*User, error) {
	var (
		u       User
		expires int64
	)
	err := db.QueryRow(`
		SELECT u.id, u.username, s.expires_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.token = ?`, token).
		Scan(&u.ID, &u.Username, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().UnixMilli() >= expires {
		_, _ = db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
		return nil, nil
	}
	return &u, nil
}

// DeleteSession logs a session out.
func (db *DB) DeleteSession(token string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}

func hashPassword(saltHex, password string) string {
	sum := sha256.Sum256([]byte(saltHex + password))
	return hex.EncodeToString(sum[:])
}
