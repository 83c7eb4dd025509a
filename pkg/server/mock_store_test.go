package server

import (
	"sync"

	"github.com/aeolun/flatchat/pkg/userdb"
)

// mockStore is a simple in-memory UserStore for testing
type mockStore struct {
	mu       sync.RWMutex
	users    map[string]*mockUser
	messages []mockLoggedMessage
}

type mockUser struct {
	password    string
	displayName string
	role        int
	banned      bool
	muted       bool
}

type mockLoggedMessage struct {
	sender, receiver, content, messageType string
}

func newMockStore() *mockStore {
	return &mockStore{users: make(map[string]*mockUser)}
}

// addUser seeds an account directly, bypassing validation
func (m *mockStore) addUser(username, password string, role int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[username] = &mockUser{password: password, displayName: username, role: role}
}

func (m *mockStore) RegisterUser(username, password, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return userdb.ErrUsernameTaken
	}
	if displayName == "" {
		displayName = username
	}
	m.users[username] = &mockUser{password: password, displayName: displayName}
	return nil
}

func (m *mockStore) Authenticate(username, password string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	return ok && u.password == password, nil
}

func (m *mockStore) ChangePassword(username, oldPassword, newPassword string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok || u.password != oldPassword {
		return false, nil
	}
	u.password = newPassword
	return true, nil
}

func (m *mockStore) UserExists(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[username]
	return ok, nil
}

func (m *mockStore) GetUser(username string) (*userdb.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return nil, userdb.ErrUserNotFound
	}
	return &userdb.User{
		Username:    username,
		DisplayName: u.displayName,
		Role:        u.role,
		IsBanned:    u.banned,
		IsMuted:     u.muted,
	}, nil
}

func (m *mockStore) DisplayName(username string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[username]; ok {
		return u.displayName
	}
	return username
}

func (m *mockStore) IsAdmin(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	return ok && u.role == userdb.RoleAdmin
}

func (m *mockStore) IsBanned(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	return ok && u.banned
}

func (m *mockStore) IsMuted(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	return ok && u.muted
}

func (m *mockStore) SetBanned(username string, banned bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return false, nil
	}
	u.banned = banned
	return true, nil
}

func (m *mockStore) SetMuted(username string, muted bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return false, nil
	}
	u.muted = muted
	return true, nil
}

func (m *mockStore) SetRole(username string, role int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return userdb.ErrUserNotFound
	}
	u.role = role
	return nil
}

func (m *mockStore) AllUsers() ([]*userdb.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]*userdb.User, 0, len(m.users))
	for username, u := range m.users {
		users = append(users, &userdb.User{
			Username:    username,
			DisplayName: u.displayName,
			Role:        u.role,
			IsBanned:    u.banned,
			IsMuted:     u.muted,
		})
	}
	return users, nil
}

func (m *mockStore) BannedUsers() ([]string, error) {
	return m.flagged(func(u *mockUser) bool { return u.banned })
}

func (m *mockStore) MutedUsers() ([]string, error) {
	return m.flagged(func(u *mockUser) bool { return u.muted })
}

func (m *mockStore) flagged(match func(*mockUser) bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	usernames := []string{}
	for username, u := range m.users {
		if match(u) {
			usernames = append(usernames, username)
		}
	}
	return usernames, nil
}

func (m *mockStore) LogMessage(sender, receiver, content, messageType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, mockLoggedMessage{sender, receiver, content, messageType})
	return nil
}

func (m *mockStore) loggedMessages() []mockLoggedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]mockLoggedMessage(nil), m.messages...)
}
