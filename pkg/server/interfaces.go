package server

import "github.com/aeolun/flatchat/pkg/userdb"

// UserStore defines the account-store operations the server consumes.
// The concrete implementation is pkg/userdb; tests substitute an
// in-memory fake. Every call is synchronous; a store failure surfaces to
// the client as an ERROR response, never as a retry.
type UserStore interface {
	RegisterUser(username, password, displayName string) error
	Authenticate(username, password string) (bool, error)
	ChangePassword(username, oldPassword, newPassword string) (bool, error)

	UserExists(username string) (bool, error)
	GetUser(username string) (*userdb.User, error)
	DisplayName(username string) string

	IsAdmin(username string) bool
	IsBanned(username string) bool
	IsMuted(username string) bool

	SetBanned(username string, banned bool) (bool, error)
	SetMuted(username string, muted bool) (bool, error)
	SetRole(username string, role int) error

	AllUsers() ([]*userdb.User, error)
	BannedUsers() ([]string, error)
	MutedUsers() ([]string, error)

	LogMessage(sender, receiver, content, messageType string) error
}
