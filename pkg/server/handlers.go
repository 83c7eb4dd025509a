package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aeolun/flatchat/pkg/protocol"
	"github.com/aeolun/flatchat/pkg/userdb"
)

func (s *Server) send(sess *Session, msg protocol.Message) {
	if err := sess.Conn.WriteMessage(msg); err != nil {
		debugLog.Printf("session %d: reply write failed (%s): %v", sess.ID, msg.Type, err)
		sess.setInactive()
		return
	}
	if s.metrics != nil {
		s.metrics.RecordMessageSent(msg.Type.String())
	}
}

func (s *Server) sendOk(sess *Session, content, extra string) {
	s.send(sess, protocol.NewOkResponse(content, extra))
}

func (s *Server) sendError(sess *Session, reason string) {
	s.send(sess, protocol.NewErrorResponse(reason))
}

// requireAuth replies with an error and returns false when the session
// has not logged in.
func (s *Server) requireAuth(sess *Session) bool {
	if !sess.IsAuthenticated() {
		s.sendError(sess, "Must be logged in")
		return false
	}
	return true
}

// requireAdmin checks authentication first, then the admin role.
func (s *Server) requireAdmin(sess *Session) bool {
	if !s.requireAuth(sess) {
		return false
	}
	if !s.store.IsAdmin(sess.Username()) {
		s.sendError(sess, "Admin privileges required")
		return false
	}
	return true
}

func validUsername(username string) bool {
	return len(username) >= 3 && len(username) <= 20
}

func (s *Server) handleRegister(sess *Session, msg protocol.Message) {
	var creds protocol.Credentials
	if err := json.Unmarshal([]byte(msg.Content), &creds); err != nil {
		s.sendError(sess, "Invalid registration payload")
		return
	}

	if !validUsername(creds.Username) {
		s.sendError(sess, "Username must be 3-20 characters")
		return
	}
	if len(creds.Password) < 4 {
		s.sendError(sess, "Password must be at least 4 characters")
		return
	}

	if err := s.store.RegisterUser(creds.Username, creds.Password, ""); err != nil {
		if errors.Is(err, userdb.ErrUsernameTaken) {
			s.sendError(sess, "Username already exists")
			return
		}
		errorLog.Printf("session %d: register failed: %v", sess.ID, err)
		s.sendError(sess, "Registration failed")
		return
	}

	errorLog.Printf("User registered: %s", creds.Username)
	s.sendOk(sess, "Registration successful", "")
}

func (s *Server) handleLogin(sess *Session, msg protocol.Message) {
	var creds protocol.Credentials
	if err := json.Unmarshal([]byte(msg.Content), &creds); err != nil {
		s.sendError(sess, "Invalid login payload")
		return
	}

	if sess.IsAuthenticated() {
		s.sendError(sess, "Already logged in")
		return
	}

	ok, err := s.store.Authenticate(creds.Username, creds.Password)
	if err != nil {
		errorLog.Printf("session %d: authenticate failed: %v", sess.ID, err)
		s.sendError(sess, "Login failed")
		return
	}
	if !ok {
		s.sendError(sess, "Invalid username or password")
		return
	}

	if s.store.IsBanned(creds.Username) {
		s.sendError(sess, "You are banned from this server")
		return
	}
	if s.sessions.IsOnline(creds.Username) {
		s.sendError(sess, "User already logged in from another location")
		return
	}

	displayName := s.store.DisplayName(creds.Username)
	sess.setAuthenticated(creds.Username, displayName)
	s.sessions.BindUsername(creds.Username, sess.ID)
	errorLog.Printf("User logged in: %s (session %d)", creds.Username, sess.ID)

	extra, _ := json.Marshal(map[string]any{
		"username":    creds.Username,
		"displayName": displayName,
		"role":        boolToRole(s.store.IsAdmin(creds.Username)),
		"isMuted":     s.store.IsMuted(creds.Username),
	})
	s.sendOk(sess, "Login successful", string(extra))

	s.sessions.Broadcast(protocol.NewUserStatusMessage(creds.Username, protocol.StatusOnline), 0)
	s.send(sess, protocol.NewOnlineListMessage(s.sessions.OnlineUsers()))
}

func boolToRole(isAdmin bool) int {
	if isAdmin {
		return userdb.RoleAdmin
	}
	return userdb.RoleMember
}

func (s *Server) handleLogout(sess *Session) {
	if !s.requireAuth(sess) {
		return
	}

	username := sess.Username()
	s.sessions.ReleaseUsername(username)
	sess.clearAuthentication()
	errorLog.Printf("User logged out: %s", username)

	s.sendOk(sess, "Logged out", "")
	s.sessions.Broadcast(protocol.NewUserStatusMessage(username, protocol.StatusOffline), sess.ID)
}

func (s *Server) handleChangePassword(sess *Session, msg protocol.Message) {
	if !s.requireAuth(sess) {
		return
	}

	var change protocol.PasswordChange
	if err := json.Unmarshal([]byte(msg.Content), &change); err != nil {
		s.sendError(sess, "Invalid password change payload")
		return
	}
	if len(change.NewPassword) < 4 {
		s.sendError(sess, "Password must be at least 4 characters")
		return
	}

	ok, err := s.store.ChangePassword(sess.Username(), change.OldPassword, change.NewPassword)
	if err != nil {
		errorLog.Printf("session %d: password change failed: %v", sess.ID, err)
		s.sendError(sess, "Password change failed")
		return
	}
	if !ok {
		s.sendError(sess, "Old password is incorrect")
		return
	}

	s.sendOk(sess, "Password changed", "")
}

func (s *Server) handleGlobalMessage(sess *Session, msg protocol.Message) {
	if !s.requireAuth(sess) {
		return
	}
	username := sess.Username()

	if s.store.IsMuted(username) {
		s.sendError(sess, "You are muted and cannot send messages")
		return
	}
	if !sess.allowSend(s.config.MessageRateLimit, s.config.RateLimitWindow) {
		if s.metrics != nil {
			s.metrics.RecordRateLimitRejection()
		}
		s.sendError(sess, "Rate limit exceeded. Please wait before sending more messages.")
		return
	}
	if msg.Content == "" {
		s.sendError(sess, "Empty message")
		return
	}

	// The sender receives the broadcast too; that echo is the delivery
	// confirmation.
	out := protocol.NewGlobalMessage(username, msg.Content)
	s.sessions.Broadcast(out, 0)

	if err := s.store.LogMessage(username, "", msg.Content, "global"); err != nil {
		errorLog.Printf("Failed to log global message from %s: %v", username, err)
	}
}

func (s *Server) handlePrivateMessage(sess *Session, msg protocol.Message) {
	if !s.requireAuth(sess) {
		return
	}
	username := sess.Username()

	if s.store.IsMuted(username) {
		s.sendError(sess, "You are muted and cannot send messages")
		return
	}
	if !sess.allowSend(s.config.MessageRateLimit, s.config.RateLimitWindow) {
		if s.metrics != nil {
			s.metrics.RecordRateLimitRejection()
		}
		s.sendError(sess, "Rate limit exceeded. Please wait before sending more messages.")
		return
	}
	if msg.Receiver == "" {
		s.sendError(sess, "No receiver specified")
		return
	}
	if msg.Receiver == username {
		s.sendError(sess, "Cannot message yourself")
		return
	}
	if msg.Content == "" {
		s.sendError(sess, "Empty message")
		return
	}

	out := protocol.NewPrivateMessage(username, msg.Receiver, msg.Content)
	if !s.sessions.SendToUser(msg.Receiver, out) {
		s.sendError(sess, "User not online: "+msg.Receiver)
		return
	}

	// Echo to the sender so both ends display the same record.
	s.send(sess, out)

	if err := s.store.LogMessage(username, msg.Receiver, msg.Content, "private"); err != nil {
		errorLog.Printf("Failed to log private message from %s: %v", username, err)
	}
}

func (s *Server) handleOnlineList(sess *Session) {
	if !s.requireAuth(sess) {
		return
	}
	s.send(sess, protocol.NewOnlineListMessage(s.sessions.OnlineUsers()))
}

func (s *Server) handleUserInfo(sess *Session, msg protocol.Message) {
	if !s.requireAuth(sess) {
		return
	}

	target := msg.Receiver
	if target == "" {
		target = sess.Username()
	}

	user, err := s.store.GetUser(target)
	if err != nil {
		if errors.Is(err, userdb.ErrUserNotFound) {
			s.sendError(sess, "User not found: "+target)
			return
		}
		errorLog.Printf("session %d: user lookup failed: %v", sess.ID, err)
		s.sendError(sess, "User lookup failed")
		return
	}

	extra, _ := json.Marshal(map[string]any{
		"username":    user.Username,
		"displayName": user.DisplayName,
		"role":        user.Role,
		"isBanned":    user.IsBanned,
		"isMuted":     user.IsMuted,
		"isOnline":    s.sessions.IsOnline(user.Username),
		"createdAt":   user.CreatedAt,
	})
	s.send(sess, protocol.Message{
		Type:     protocol.TypeUserInfo,
		Receiver: user.Username,
		Extra:    string(extra),
	})
}

// moderationTarget validates the common preconditions of the admin
// commands: target named, target exists, and admins are immune.
func (s *Server) moderationTarget(sess *Session, msg protocol.Message, action string) (string, bool) {
	target := msg.Receiver
	if target == "" {
		s.sendError(sess, "No target specified")
		return "", false
	}

	exists, err := s.store.UserExists(target)
	if err != nil {
		errorLog.Printf("session %d: user lookup failed: %v", sess.ID, err)
		s.sendError(sess, "User lookup failed")
		return "", false
	}
	if !exists {
		s.sendError(sess, "User not found: "+target)
		return "", false
	}
	if s.store.IsAdmin(target) {
		s.sendError(sess, fmt.Sprintf("Cannot %s an admin", action))
		return "", false
	}
	return target, true
}

// notify sends an out-of-band moderation notification to the target if
// it is online. Delivery is best effort.
func (s *Server) notify(target string, msgType protocol.MessageType, content string) {
	s.sessions.SendToUser(target, protocol.Message{
		Type:      msgType,
		Receiver:  target,
		Content:   content,
		Timestamp: protocol.Now(),
	})
}

func (s *Server) handleKickUser(sess *Session, msg protocol.Message) {
	if !s.requireAdmin(sess) {
		return
	}
	target, ok := s.moderationTarget(sess, msg, "kick")
	if !ok {
		return
	}

	// Notify before Kick: once kicked, the target session no longer
	// resolves through the username index.
	s.notify(target, protocol.TypeKicked, "You have been kicked by "+sess.Username())
	if !s.sessions.Kick(target) {
		s.sendError(sess, "User not online: "+target)
		return
	}

	errorLog.Printf("User %s kicked by %s", target, sess.Username())
	s.sendOk(sess, "User kicked: "+target, "")
	s.sessions.Broadcast(protocol.NewUserStatusMessage(target, protocol.StatusOffline), 0)
}

func (s *Server) handleBanUser(sess *Session, msg protocol.Message) {
	if !s.requireAdmin(sess) {
		return
	}
	target, ok := s.moderationTarget(sess, msg, "ban")
	if !ok {
		return
	}

	if _, err := s.store.SetBanned(target, true); err != nil {
		errorLog.Printf("session %d: ban failed: %v", sess.ID, err)
		s.sendError(sess, "Ban failed")
		return
	}

	// A banned user who is online is also disconnected.
	s.notify(target, protocol.TypeBanned, "You have been banned by "+sess.Username())
	if s.sessions.Kick(target) {
		s.sessions.Broadcast(protocol.NewUserStatusMessage(target, protocol.StatusOffline), 0)
	}

	errorLog.Printf("User %s banned by %s", target, sess.Username())
	s.sendOk(sess, "User banned: "+target, "")
}

func (s *Server) handleUnbanUser(sess *Session, msg protocol.Message) {
	if !s.requireAdmin(sess) {
		return
	}

	target := msg.Receiver
	if target == "" {
		s.sendError(sess, "No target specified")
		return
	}

	changed, err := s.store.SetBanned(target, false)
	if err != nil {
		errorLog.Printf("session %d: unban failed: %v", sess.ID, err)
		s.sendError(sess, "Unban failed")
		return
	}
	if !changed {
		s.sendError(sess, "User not found: "+target)
		return
	}

	errorLog.Printf("User %s unbanned by %s", target, sess.Username())
	s.sendOk(sess, "User unbanned: "+target, "")
}

func (s *Server) handleMuteUser(sess *Session, msg protocol.Message) {
	if !s.requireAdmin(sess) {
		return
	}
	target, ok := s.moderationTarget(sess, msg, "mute")
	if !ok {
		return
	}

	if _, err := s.store.SetMuted(target, true); err != nil {
		errorLog.Printf("session %d: mute failed: %v", sess.ID, err)
		s.sendError(sess, "Mute failed")
		return
	}

	s.notify(target, protocol.TypeMuted, "You have been muted by "+sess.Username())
	errorLog.Printf("User %s muted by %s", target, sess.Username())
	s.sendOk(sess, "User muted: "+target, "")
}

func (s *Server) handleUnmuteUser(sess *Session, msg protocol.Message) {
	if !s.requireAdmin(sess) {
		return
	}

	target := msg.Receiver
	if target == "" {
		s.sendError(sess, "No target specified")
		return
	}

	changed, err := s.store.SetMuted(target, false)
	if err != nil {
		errorLog.Printf("session %d: unmute failed: %v", sess.ID, err)
		s.sendError(sess, "Unmute failed")
		return
	}
	if !changed {
		s.sendError(sess, "User not found: "+target)
		return
	}

	s.notify(target, protocol.TypeUnmuted, "You have been unmuted by "+sess.Username())
	errorLog.Printf("User %s unmuted by %s", target, sess.Username())
	s.sendOk(sess, "User unmuted: "+target, "")
}

func (s *Server) handlePromoteUser(sess *Session, msg protocol.Message) {
	if !s.requireAdmin(sess) {
		return
	}

	target := msg.Receiver
	if target == "" {
		s.sendError(sess, "No target specified")
		return
	}
	if s.store.IsAdmin(target) {
		s.sendError(sess, "User is already an admin")
		return
	}

	if err := s.store.SetRole(target, userdb.RoleAdmin); err != nil {
		if errors.Is(err, userdb.ErrUserNotFound) {
			s.sendError(sess, "User not found: "+target)
			return
		}
		errorLog.Printf("session %d: promote failed: %v", sess.ID, err)
		s.sendError(sess, "Promote failed")
		return
	}

	errorLog.Printf("User %s promoted to admin by %s", target, sess.Username())
	s.sendOk(sess, "User promoted: "+target, "")
}

func (s *Server) handleDemoteUser(sess *Session, msg protocol.Message) {
	if !s.requireAdmin(sess) {
		return
	}

	target := msg.Receiver
	if target == "" {
		s.sendError(sess, "No target specified")
		return
	}
	if target == sess.Username() {
		s.sendError(sess, "Cannot demote yourself")
		return
	}
	if !s.store.IsAdmin(target) {
		s.sendError(sess, "User is not an admin")
		return
	}

	if err := s.store.SetRole(target, userdb.RoleMember); err != nil {
		if errors.Is(err, userdb.ErrUserNotFound) {
			s.sendError(sess, "User not found: "+target)
			return
		}
		errorLog.Printf("session %d: demote failed: %v", sess.ID, err)
		s.sendError(sess, "Demote failed")
		return
	}

	errorLog.Printf("User %s demoted by %s", target, sess.Username())
	s.sendOk(sess, "User demoted: "+target, "")
}

func (s *Server) handleGetAllUsers(sess *Session) {
	if !s.requireAdmin(sess) {
		return
	}

	users, err := s.store.AllUsers()
	if err != nil {
		errorLog.Printf("session %d: user list failed: %v", sess.ID, err)
		s.sendError(sess, "User list failed")
		return
	}

	type userSummary struct {
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
		Role        int    `json:"role"`
		IsBanned    bool   `json:"isBanned"`
		IsMuted     bool   `json:"isMuted"`
		IsOnline    bool   `json:"isOnline"`
	}
	summaries := make([]userSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, userSummary{
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Role:        u.Role,
			IsBanned:    u.IsBanned,
			IsMuted:     u.IsMuted,
			IsOnline:    s.sessions.IsOnline(u.Username),
		})
	}

	extra, _ := json.Marshal(summaries)
	s.sendOk(sess, "All users", string(extra))
}

func (s *Server) handleGetBannedList(sess *Session) {
	if !s.requireAdmin(sess) {
		return
	}

	banned, err := s.store.BannedUsers()
	if err != nil {
		errorLog.Printf("session %d: banned list failed: %v", sess.ID, err)
		s.sendError(sess, "Banned list failed")
		return
	}

	extra, _ := json.Marshal(banned)
	s.sendOk(sess, "Banned users", string(extra))
}

func (s *Server) handleGetMutedList(sess *Session) {
	if !s.requireAdmin(sess) {
		return
	}

	muted, err := s.store.MutedUsers()
	if err != nil {
		errorLog.Printf("session %d: muted list failed: %v", sess.ID, err)
		s.sendError(sess, "Muted list failed")
		return
	}

	extra, _ := json.Marshal(muted)
	s.sendOk(sess, "Muted users", string(extra))
}

func (s *Server) handlePing(sess *Session) {
	s.send(sess, protocol.Message{Type: protocol.TypePong, Timestamp: protocol.Now()})
}
