package database

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// User is a registered account
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUser inserts a new user and returns it
func (db *DB) CreateUser(username, passwordHash string) (*User, error) {
	id := db.nextID()
	now := nowMillis()

	_, err := db.writeConn.Exec(
		"INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)",
		id, username, passwordHash, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	return &User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.UnixMilli(now),
	}, nil
}

// UserByUsername looks up a user by username
func (db *DB) UserByUsername(username string) (*User, error) {
	return db.scanUser(db.conn.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	))
}

// UserByID looks up a user by ID
func (db *DB) UserByID(id int64) (*User, error) {
	return db.scanUser(db.conn.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?",
		id,
	))
}

func (db *DB) scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = time.UnixMilli(createdAt)
	return &u, nil
}
