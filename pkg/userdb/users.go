package userdb

import (
	"database/sql"
	"fmt"
)

// RegisterUser creates a new account. The display name defaults to the
// username when empty. Returns ErrUsernameTaken on conflict.
func (db *DB) RegisterUser(username, password, displayName string) error {
	if displayName == "" {
		displayName = username
	}

	_, err := db.conn.Exec(
		"INSERT INTO users (username, password_hash, display_name) VALUES (?, ?, ?)",
		username, hashPassword(password, username), displayName,
	)
	if err != nil {
		// UNIQUE constraint on username
		var exists bool
		if checkErr := db.conn.QueryRow(
			"SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", username,
		).Scan(&exists); checkErr == nil && exists {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to register user: %w", err)
	}
	return nil
}

// Authenticate verifies a username/password pair.
func (db *DB) Authenticate(username, password string) (bool, error) {
	var storedHash string
	err := db.conn.QueryRow(
		"SELECT password_hash FROM users WHERE username = ?", username,
	).Scan(&storedHash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return verifyPassword(password, username, storedHash), nil
}

// ChangePassword updates the password after verifying the old one.
func (db *DB) ChangePassword(username, oldPassword, newPassword string) (bool, error) {
	ok, err := db.Authenticate(username, oldPassword)
	if err != nil || !ok {
		return false, err
	}

	_, err = db.conn.Exec(
		"UPDATE users SET password_hash = ? WHERE username = ?",
		hashPassword(newPassword, username), username,
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// UserExists reports whether the username is registered.
func (db *DB) UserExists(username string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", username,
	).Scan(&exists)
	return exists, err
}

// GetUser returns a single account record.
func (db *DB) GetUser(username string) (*User, error) {
	user := &User{}
	err := db.conn.QueryRow(
		"SELECT username, display_name, role, is_banned, is_muted, created_at FROM users WHERE username = ?",
		username,
	).Scan(&user.Username, &user.DisplayName, &user.Role, &user.IsBanned, &user.IsMuted, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DisplayName returns the account's display name, or the username itself
// when the account cannot be read.
func (db *DB) DisplayName(username string) string {
	var displayName string
	err := db.conn.QueryRow(
		"SELECT display_name FROM users WHERE username = ?", username,
	).Scan(&displayName)
	if err != nil {
		return username
	}
	return displayName
}

// Role returns the account's role, RoleMember for unknown users.
func (db *DB) Role(username string) int {
	var role int
	if err := db.conn.QueryRow(
		"SELECT role FROM users WHERE username = ?", username,
	).Scan(&role); err != nil {
		return RoleMember
	}
	return role
}

// IsAdmin reports whether the account holds the admin role.
func (db *DB) IsAdmin(username string) bool {
	return db.Role(username) == RoleAdmin
}

// IsBanned reports whether the account is banned.
func (db *DB) IsBanned(username string) bool {
	return db.boolFlag(username, "is_banned")
}

// IsMuted reports whether the account is muted.
func (db *DB) IsMuted(username string) bool {
	return db.boolFlag(username, "is_muted")
}

func (db *DB) boolFlag(username, column string) bool {
	var value bool
	query := fmt.Sprintf("SELECT %s FROM users WHERE username = ?", column)
	if err := db.conn.QueryRow(query, username).Scan(&value); err != nil {
		return false
	}
	return value
}

// SetBanned updates the banned flag. Returns false for unknown users.
func (db *DB) SetBanned(username string, banned bool) (bool, error) {
	return db.updateFlag(username, "is_banned", banned)
}

// SetMuted updates the muted flag. Returns false for unknown users.
func (db *DB) SetMuted(username string, muted bool) (bool, error) {
	return db.updateFlag(username, "is_muted", muted)
}

func (db *DB) updateFlag(username, column string, value bool) (bool, error) {
	query := fmt.Sprintf("UPDATE users SET %s = ? WHERE username = ?", column)
	res, err := db.conn.Exec(query, value, username)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SetRole updates the account role. Returns an error for unknown users.
func (db *DB) SetRole(username string, role int) error {
	res, err := db.conn.Exec("UPDATE users SET role = ? WHERE username = ?", role, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AllUsers returns every account ordered by creation time.
func (db *DB) AllUsers() ([]*User, error) {
	rows, err := db.conn.Query(
		"SELECT username, display_name, role, is_banned, is_muted, created_at FROM users ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		if err := rows.Scan(&user.Username, &user.DisplayName, &user.Role, &user.IsBanned, &user.IsMuted, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// BannedUsers returns the usernames of all banned accounts.
func (db *DB) BannedUsers() ([]string, error) {
	return db.flaggedUsers("is_banned")
}

// MutedUsers returns the usernames of all muted accounts.
func (db *DB) MutedUsers() ([]string, error) {
	return db.flaggedUsers("is_muted")
}

func (db *DB) flaggedUsers(column string) ([]string, error) {
	query := fmt.Sprintf("SELECT username FROM users WHERE %s = 1 ORDER BY username", column)
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usernames := []string{}
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, err
		}
		usernames = append(usernames, username)
	}
	return usernames, rows.Err()
}

// LogMessage records a delivered chat message in the history table.
// messageType is "global" or "private".
func (db *DB) LogMessage(sender, receiver, content, messageType string) error {
	_, err := db.conn.Exec(
		"INSERT INTO messages (sender, receiver, content, message_type) VALUES (?, ?, ?, ?)",
		sender, receiver, content, messageType,
	)
	return err
}
