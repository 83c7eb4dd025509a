package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aeolun/flatchat/pkg/protocol"
)

// SafeConn wraps a net.Conn with automatic write synchronization. Two
// goroutines may try to write to the same session concurrently (its own
// receive loop replying, and another session's broadcast); serializing
// whole frames under one mutex guarantees they never interleave.
type SafeConn struct {
	conn      net.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewSafeConn wraps a transport connection.
func NewSafeConn(conn net.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteMessage encodes the message and writes the complete frame while
// holding the write lock.
func (c *SafeConn) WriteMessage(msg protocol.Message) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

// Read reads raw bytes from the transport. Only the session's own
// receive loop calls this.
func (c *SafeConn) Read(b []byte) (int, error) {
	return c.conn.Read(b)
}

// Close closes the transport exactly once.
func (c *SafeConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address.
func (c *SafeConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Session represents one active client connection.
type Session struct {
	ID   uint64
	Conn *SafeConn
	Addr string

	// buffer is owned exclusively by the session's receive loop.
	buffer protocol.Buffer

	mu            sync.RWMutex // protects username, displayName, authenticated
	username      string
	displayName   string
	authenticated bool

	// active is checked cooperatively once per receive-loop iteration;
	// clearing it requests self-termination but never preempts a read.
	active atomic.Bool

	// Fixed-window rate limiting, touched only by the owning receive loop.
	rateWindowStart time.Time
	rateCount       int
}

// Username returns the authenticated username, empty when unauthenticated.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// DisplayName returns the authenticated display name.
func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

// IsAuthenticated reports whether the session has logged in.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

func (s *Session) setAuthenticated(username, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.displayName = displayName
	s.authenticated = true
}

func (s *Session) clearAuthentication() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = ""
	s.displayName = ""
	s.authenticated = false
}

// Active reports whether the receive loop should keep running.
func (s *Session) Active() bool {
	return s.active.Load()
}

func (s *Session) setInactive() {
	s.active.Store(false)
}

// allowSend applies the fixed-window rate limit: up to max messages per
// window. The first send of a new window resets the counter.
func (s *Session) allowSend(max int, window time.Duration) bool {
	now := time.Now()
	if now.Sub(s.rateWindowStart) >= window {
		s.rateWindowStart = now
		s.rateCount = 1
		return true
	}

	s.rateCount++
	return s.rateCount <= max
}

// SessionManager is the registry of all live sessions plus the
// username→session index. It is the single source of truth for who is
// online. Both structures share one lock; the lock is never held across
// a blocking network write (SafeConn serializes those per session).
type SessionManager struct {
	mu        sync.RWMutex
	sessions  map[uint64]*Session
	usernames map[string]uint64
	nextID    uint64
	metrics   *Metrics
}

// NewSessionManager creates an empty registry.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:  make(map[uint64]*Session),
		usernames: make(map[string]uint64),
		nextID:    1,
	}
}

// SetMetrics attaches metrics to the session manager.
func (sm *SessionManager) SetMetrics(metrics *Metrics) {
	sm.metrics = metrics
}

// CreateSession registers a new session for an accepted connection.
func (sm *SessionManager) CreateSession(conn net.Conn) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sess := &Session{
		ID:   sm.nextID,
		Conn: NewSafeConn(conn),
		Addr: conn.RemoteAddr().String(),
	}
	sess.active.Store(true)
	sm.nextID++
	sm.sessions[sess.ID] = sess

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(len(sm.sessions))
		sm.metrics.RecordSessionCreated()
	}

	return sess
}

// GetSession returns a session by ID.
func (sm *SessionManager) GetSession(sessionID uint64) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sess, ok := sm.sessions[sessionID]
	return sess, ok
}

// RemoveSession drops all registry references to a session. Called by the
// owning receive loop during teardown; the loop itself closes the
// transport.
func (sm *SessionManager) RemoveSession(sessionID uint64) {
	sm.mu.Lock()
	sess, ok := sm.sessions[sessionID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	delete(sm.sessions, sessionID)
	for username, id := range sm.usernames {
		if id == sessionID {
			delete(sm.usernames, username)
		}
	}
	sessionCount := len(sm.sessions)
	sm.mu.Unlock()

	sess.setInactive()

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(sessionCount)
		sm.metrics.RecordSessionDisconnected()
	}
}

// BindUsername records that a session now holds a username. Login rejects
// duplicates beforehand via IsOnline, keeping the invariant that a
// username maps to exactly one live authenticated session.
func (sm *SessionManager) BindUsername(username string, sessionID uint64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.usernames[username] = sessionID
}

// ReleaseUsername removes a username from the index.
func (sm *SessionManager) ReleaseUsername(username string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.usernames, username)
}

// IsOnline reports whether a username is currently bound to a session.
func (sm *SessionManager) IsOnline(username string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.usernames[username]
	return ok
}

// OnlineUsers returns the usernames of all authenticated sessions.
func (sm *SessionManager) OnlineUsers() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	users := make([]string, 0, len(sm.usernames))
	for username := range sm.usernames {
		users = append(users, username)
	}
	return users
}

// CountSessions returns the number of live sessions, authenticated or not.
func (sm *SessionManager) CountSessions() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Broadcast sends a message to every authenticated session except the
// excluded one (0 excludes nobody). Returns the number of sessions the
// message was delivered to. Sessions whose transport rejects the write
// are marked inactive; their own receive loops clean them up.
func (sm *SessionManager) Broadcast(msg protocol.Message, excludeID uint64) int {
	start := time.Now()
	delivered := 0

	sm.mu.RLock()
	for _, sess := range sm.sessions {
		if sess.ID == excludeID || !sess.IsAuthenticated() {
			continue
		}
		if err := sess.Conn.WriteMessage(msg); err != nil {
			debugLog.Printf("session %d: broadcast write failed (%s): %v", sess.ID, msg.Type, err)
			sess.setInactive()
			continue
		}
		delivered++
	}
	sm.mu.RUnlock()

	if sm.metrics != nil {
		sm.metrics.RecordBroadcastFanout(delivered)
		sm.metrics.RecordBroadcastDuration(time.Since(start).Seconds())
		sm.metrics.RecordMessageSent(msg.Type.String())
	}

	return delivered
}

// SendToUser delivers a message to the named user's session. Returns
// false when the user is not online or logged out between the index
// lookup and the send; a dangling index entry is treated the same as a
// miss, never as a fault.
func (sm *SessionManager) SendToUser(username string, msg protocol.Message) bool {
	sm.mu.RLock()
	sessionID, ok := sm.usernames[username]
	var sess *Session
	if ok {
		sess, ok = sm.sessions[sessionID]
	}
	sm.mu.RUnlock()

	if !ok || sess == nil {
		return false
	}

	if err := sess.Conn.WriteMessage(msg); err != nil {
		debugLog.Printf("session %d: direct write failed (%s): %v", sess.ID, msg.Type, err)
		sess.setInactive()
		return false
	}

	if sm.metrics != nil {
		sm.metrics.RecordMessageSent(msg.Type.String())
	}
	return true
}

// Kick forcibly logs a user out: the index entry is removed and the
// session is marked inactive with its authentication cleared. The
// transport is not closed here; the owning receive loop observes the
// inactive flag and exits on its own, so no other goroutine ever races a
// close against an in-flight read.
func (sm *SessionManager) Kick(username string) bool {
	sm.mu.Lock()
	sessionID, ok := sm.usernames[username]
	var sess *Session
	if ok {
		delete(sm.usernames, username)
		sess, ok = sm.sessions[sessionID]
	}
	sm.mu.Unlock()

	if !ok || sess == nil {
		return false
	}

	sess.setInactive()
	sess.clearAuthentication()
	return true
}

// CloseAll marks every session inactive and closes its transport. Only
// server shutdown calls this; closing the transports is what unblocks
// receive loops still waiting on reads.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, sess := range sm.sessions {
		sess.setInactive()
		sess.Conn.Close()
	}
	sm.sessions = make(map[uint64]*Session)
	sm.usernames = make(map[string]uint64)
}
