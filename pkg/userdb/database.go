package userdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already exists")
)

// Role values stored in the users table.
const (
	RoleMember = 0
	RoleAdmin  = 1
)

// User is one account record.
type User struct {
	Username    string
	DisplayName string
	Role        int
	IsBanned    bool
	IsMuted     bool
	CreatedAt   string
}

// DB wraps the SQLite account and message-history store.
type DB struct {
	conn *sql.DB
}

// Open opens the SQLite database at the given path, applies pending
// migrations and seeds the default admin account.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; WAL lets readers proceed alongside it
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := db.seedDefaultAdmin(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to seed admin account: %w", err)
	}

	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// seedDefaultAdmin creates the built-in admin account on first run so a
// fresh server is administrable. The password should be changed via
// CHANGE_PASSWORD immediately after setup.
func (db *DB) seedDefaultAdmin() error {
	exists, err := db.UserExists("admin")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := db.RegisterUser("admin", "admin", "Administrator"); err != nil {
		return err
	}
	return db.SetRole("admin", RoleAdmin)
}
