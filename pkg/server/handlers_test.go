package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/flatchat/pkg/protocol"
	"github.com/aeolun/flatchat/pkg/userdb"
)

func TestRegister(t *testing.T) {
	srv, store := testServer(t)
	sess, conn := connectSession(t, srv)

	t.Run("success", func(t *testing.T) {
		srv.dispatch(sess, protocol.NewRegisterMessage("alice", "secret1"))
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeOk, reply.Type)
		assert.Equal(t, "Registration successful", reply.Content)

		exists, err := store.UserExists("alice")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("duplicate username", func(t *testing.T) {
		srv.dispatch(sess, protocol.NewRegisterMessage("alice", "other"))
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "Username already exists", reply.Content)
	})

	t.Run("username too short", func(t *testing.T) {
		srv.dispatch(sess, protocol.NewRegisterMessage("ab", "secret1"))
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "Username must be 3-20 characters", reply.Content)
	})

	t.Run("password too short", func(t *testing.T) {
		srv.dispatch(sess, protocol.NewRegisterMessage("bob", "abc"))
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "Password must be at least 4 characters", reply.Content)
	})

	t.Run("malformed payload", func(t *testing.T) {
		srv.dispatch(sess, protocol.Message{Type: protocol.TypeRegister, Content: "not json"})
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
	})
}

func TestLogin(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("alice", "secret1", userdb.RoleMember)

	t.Run("success", func(t *testing.T) {
		sess, conn := connectSession(t, srv)
		srv.dispatch(sess, protocol.NewLoginMessage("alice", "secret1"))

		msgs := conn.receivedMessages(t)
		require.Len(t, msgs, 3)

		assert.Equal(t, protocol.TypeOk, msgs[0].Type)
		assert.Equal(t, "Login successful", msgs[0].Content)

		var info map[string]any
		require.NoError(t, json.Unmarshal([]byte(msgs[0].Extra), &info))
		assert.Equal(t, "alice", info["username"])

		// The login session is not excluded from its own status broadcast
		assert.Equal(t, protocol.TypeUserStatus, msgs[1].Type)
		assert.Equal(t, "alice", msgs[1].Sender)

		assert.Equal(t, protocol.TypeOnlineList, msgs[2].Type)
		var roster []string
		require.NoError(t, json.Unmarshal([]byte(msgs[2].Extra), &roster))
		assert.Equal(t, []string{"alice"}, roster)

		assert.True(t, sess.IsAuthenticated())
		assert.True(t, srv.sessions.IsOnline("alice"))

		srv.dispatch(sess, protocol.Message{Type: protocol.TypeLogout})
	})

	t.Run("wrong password", func(t *testing.T) {
		sess, conn := connectSession(t, srv)
		srv.dispatch(sess, protocol.NewLoginMessage("alice", "wrong"))
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "Invalid username or password", reply.Content)
		assert.False(t, sess.IsAuthenticated())
	})

	t.Run("unknown user", func(t *testing.T) {
		sess, conn := connectSession(t, srv)
		srv.dispatch(sess, protocol.NewLoginMessage("nobody", "whatever"))
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "Invalid username or password", reply.Content)
	})

	t.Run("banned user", func(t *testing.T) {
		store.addUser("outcast", "pass1", userdb.RoleMember)
		_, err := store.SetBanned("outcast", true)
		require.NoError(t, err)

		sess, conn := connectSession(t, srv)
		srv.dispatch(sess, protocol.NewLoginMessage("outcast", "pass1"))
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "You are banned from this server", reply.Content)
	})

	t.Run("second session for same account", func(t *testing.T) {
		first, firstConn := connectSession(t, srv)
		loginSession(t, srv, first, firstConn, "alice", "secret1")

		second, conn := connectSession(t, srv)
		srv.dispatch(second, protocol.NewLoginMessage("alice", "secret1"))
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "User already logged in from another location", reply.Content)

		// The original session is untouched
		assert.True(t, first.IsAuthenticated())
		assert.True(t, srv.sessions.IsOnline("alice"))
	})
}

func TestLogout(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("alice", "secret1", userdb.RoleMember)

	sess, conn := connectSession(t, srv)

	t.Run("before login", func(t *testing.T) {
		srv.dispatch(sess, protocol.Message{Type: protocol.TypeLogout})
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "Must be logged in", reply.Content)
	})

	t.Run("after login", func(t *testing.T) {
		loginSession(t, srv, sess, conn, "alice", "secret1")

		srv.dispatch(sess, protocol.Message{Type: protocol.TypeLogout})
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeOk, reply.Type)
		assert.Equal(t, "Logged out", reply.Content)

		assert.False(t, sess.IsAuthenticated())
		assert.False(t, srv.sessions.IsOnline("alice"))
		// The connection survives logout
		assert.True(t, sess.Active())
	})
}

func TestChangePassword(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("alice", "oldpass", userdb.RoleMember)

	sess, conn := connectSession(t, srv)
	loginSession(t, srv, sess, conn, "alice", "oldpass")

	t.Run("wrong old password", func(t *testing.T) {
		srv.dispatch(sess, protocol.NewChangePasswordMessage("wrong", "newpass"))
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "Old password is incorrect", reply.Content)
	})

	t.Run("success", func(t *testing.T) {
		srv.dispatch(sess, protocol.NewChangePasswordMessage("oldpass", "newpass"))
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeOk, reply.Type)

		ok, err := store.Authenticate("alice", "newpass")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestGlobalMessage(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("alice", "pass1", userdb.RoleMember)
	store.addUser("bob", "pass1", userdb.RoleMember)

	alice, aliceConn := connectSession(t, srv)
	loginSession(t, srv, alice, aliceConn, "alice", "pass1")

	bob, bobConn := connectSession(t, srv)
	loginSession(t, srv, bob, bobConn, "bob", "pass1")
	aliceConn.receivedMessages(t) // drain bob's login broadcast

	t.Run("requires auth", func(t *testing.T) {
		stranger, strangerConn := connectSession(t, srv)
		srv.dispatch(stranger, protocol.Message{Type: protocol.TypeMsgGlobal, Content: "hi"})
		reply := strangerConn.lastMessage(t)
		assert.Equal(t, "Must be logged in", reply.Content)
	})

	t.Run("delivered to everyone including sender", func(t *testing.T) {
		srv.dispatch(alice, protocol.Message{Type: protocol.TypeMsgGlobal, Content: "hello all"})

		for _, conn := range []*mockConn{aliceConn, bobConn} {
			msg := conn.lastMessage(t)
			assert.Equal(t, protocol.TypeMsgGlobal, msg.Type)
			assert.Equal(t, "alice", msg.Sender)
			assert.Equal(t, "hello all", msg.Content)
			assert.NotEmpty(t, msg.Timestamp)
		}

		logged := store.loggedMessages()
		require.Len(t, logged, 1)
		assert.Equal(t, "global", logged[0].messageType)
	})

	t.Run("empty content rejected", func(t *testing.T) {
		srv.dispatch(alice, protocol.Message{Type: protocol.TypeMsgGlobal})
		reply := aliceConn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "Empty message", reply.Content)
	})

	t.Run("muted sender rejected", func(t *testing.T) {
		_, err := store.SetMuted("alice", true)
		require.NoError(t, err)
		defer store.SetMuted("alice", false)

		srv.dispatch(alice, protocol.Message{Type: protocol.TypeMsgGlobal, Content: "hi"})
		reply := aliceConn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "You are muted and cannot send messages", reply.Content)
	})
}

func TestPrivateMessage(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("alice", "pass1", userdb.RoleMember)
	store.addUser("bob", "pass1", userdb.RoleMember)

	alice, aliceConn := connectSession(t, srv)
	loginSession(t, srv, alice, aliceConn, "alice", "pass1")

	bob, bobConn := connectSession(t, srv)
	loginSession(t, srv, bob, bobConn, "bob", "pass1")
	aliceConn.receivedMessages(t)

	t.Run("delivered to receiver and echoed to sender", func(t *testing.T) {
		srv.dispatch(alice, protocol.Message{
			Type:     protocol.TypeMsgPrivate,
			Receiver: "bob",
			Content:  "psst",
		})

		got := bobConn.lastMessage(t)
		assert.Equal(t, protocol.TypeMsgPrivate, got.Type)
		assert.Equal(t, "alice", got.Sender)
		assert.Equal(t, "bob", got.Receiver)
		assert.Equal(t, "psst", got.Content)

		echo := aliceConn.lastMessage(t)
		assert.Equal(t, got, echo)

		logged := store.loggedMessages()
		require.Len(t, logged, 1)
		assert.Equal(t, "private", logged[0].messageType)
	})

	t.Run("offline receiver", func(t *testing.T) {
		srv.dispatch(alice, protocol.Message{
			Type:     protocol.TypeMsgPrivate,
			Receiver: "carol",
			Content:  "anyone there",
		})
		reply := aliceConn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "User not online: carol", reply.Content)
	})

	t.Run("missing receiver", func(t *testing.T) {
		srv.dispatch(alice, protocol.Message{Type: protocol.TypeMsgPrivate, Content: "hi"})
		reply := aliceConn.lastMessage(t)
		assert.Equal(t, "No receiver specified", reply.Content)
	})

	t.Run("self as receiver", func(t *testing.T) {
		srv.dispatch(alice, protocol.Message{Type: protocol.TypeMsgPrivate, Receiver: "alice", Content: "hi"})
		reply := aliceConn.lastMessage(t)
		assert.Equal(t, "Cannot message yourself", reply.Content)
	})
}

func TestRateLimit(t *testing.T) {
	srv, store := testServer(t)
	srv.config.MessageRateLimit = 3
	srv.config.RateLimitWindow = time.Hour // never expires during the test
	store.addUser("alice", "pass1", userdb.RoleMember)

	alice, aliceConn := connectSession(t, srv)
	loginSession(t, srv, alice, aliceConn, "alice", "pass1")

	for i := 0; i < 3; i++ {
		srv.dispatch(alice, protocol.Message{Type: protocol.TypeMsgGlobal, Content: "spam"})
		msg := aliceConn.lastMessage(t)
		assert.Equal(t, protocol.TypeMsgGlobal, msg.Type, "message %d should pass", i+1)
	}

	srv.dispatch(alice, protocol.Message{Type: protocol.TypeMsgGlobal, Content: "spam"})
	reply := aliceConn.lastMessage(t)
	assert.Equal(t, protocol.TypeError, reply.Type)
	assert.Equal(t, "Rate limit exceeded. Please wait before sending more messages.", reply.Content)
}

func TestRateLimitWindowReset(t *testing.T) {
	srv, store := testServer(t)
	srv.config.MessageRateLimit = 2
	srv.config.RateLimitWindow = 50 * time.Millisecond
	store.addUser("alice", "pass1", userdb.RoleMember)

	alice, aliceConn := connectSession(t, srv)
	loginSession(t, srv, alice, aliceConn, "alice", "pass1")

	for i := 0; i < 2; i++ {
		srv.dispatch(alice, protocol.Message{Type: protocol.TypeMsgGlobal, Content: "x"})
	}
	srv.dispatch(alice, protocol.Message{Type: protocol.TypeMsgGlobal, Content: "x"})
	reply := aliceConn.lastMessage(t)
	assert.Equal(t, protocol.TypeError, reply.Type)

	time.Sleep(60 * time.Millisecond)

	srv.dispatch(alice, protocol.Message{Type: protocol.TypeMsgGlobal, Content: "fresh window"})
	msg := aliceConn.lastMessage(t)
	assert.Equal(t, protocol.TypeMsgGlobal, msg.Type)
}

func TestOnlineList(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("alice", "pass1", userdb.RoleMember)
	store.addUser("bob", "pass1", userdb.RoleMember)

	alice, aliceConn := connectSession(t, srv)
	loginSession(t, srv, alice, aliceConn, "alice", "pass1")
	bob, bobConn := connectSession(t, srv)
	loginSession(t, srv, bob, bobConn, "bob", "pass1")
	aliceConn.receivedMessages(t)

	srv.dispatch(alice, protocol.Message{Type: protocol.TypeOnlineList})
	reply := aliceConn.lastMessage(t)
	require.Equal(t, protocol.TypeOnlineList, reply.Type)

	var roster []string
	require.NoError(t, json.Unmarshal([]byte(reply.Extra), &roster))
	assert.ElementsMatch(t, []string{"alice", "bob"}, roster)
}

func TestUserInfo(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("alice", "pass1", userdb.RoleMember)
	store.addUser("bob", "pass1", userdb.RoleMember)

	alice, aliceConn := connectSession(t, srv)
	loginSession(t, srv, alice, aliceConn, "alice", "pass1")

	t.Run("other user", func(t *testing.T) {
		srv.dispatch(alice, protocol.Message{Type: protocol.TypeUserInfo, Receiver: "bob"})
		reply := aliceConn.lastMessage(t)
		require.Equal(t, protocol.TypeUserInfo, reply.Type)

		var info map[string]any
		require.NoError(t, json.Unmarshal([]byte(reply.Extra), &info))
		assert.Equal(t, "bob", info["username"])
		assert.Equal(t, false, info["isOnline"])
	})

	t.Run("self when no target", func(t *testing.T) {
		srv.dispatch(alice, protocol.Message{Type: protocol.TypeUserInfo})
		reply := aliceConn.lastMessage(t)

		var info map[string]any
		require.NoError(t, json.Unmarshal([]byte(reply.Extra), &info))
		assert.Equal(t, "alice", info["username"])
		assert.Equal(t, true, info["isOnline"])
	})

	t.Run("unknown user", func(t *testing.T) {
		srv.dispatch(alice, protocol.Message{Type: protocol.TypeUserInfo, Receiver: "ghost"})
		reply := aliceConn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "User not found: ghost", reply.Content)
	})
}

func TestModerationRequiresAdmin(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("alice", "pass1", userdb.RoleMember)

	alice, aliceConn := connectSession(t, srv)
	loginSession(t, srv, alice, aliceConn, "alice", "pass1")

	adminOnly := []protocol.MessageType{
		protocol.TypeKickUser, protocol.TypeBanUser, protocol.TypeUnbanUser,
		protocol.TypeMuteUser, protocol.TypeUnmuteUser,
		protocol.TypePromoteUser, protocol.TypeDemoteUser,
		protocol.TypeGetAllUsers, protocol.TypeGetBannedList, protocol.TypeGetMutedList,
	}
	for _, msgType := range adminOnly {
		srv.dispatch(alice, protocol.Message{Type: msgType, Receiver: "bob"})
		reply := aliceConn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type, "%s should be rejected", msgType)
		assert.Equal(t, "Admin privileges required", reply.Content)
	}
}

func TestKickUser(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("root", "pass1", userdb.RoleAdmin)
	store.addUser("alice", "pass1", userdb.RoleMember)

	admin, adminConn := connectSession(t, srv)
	loginSession(t, srv, admin, adminConn, "root", "pass1")

	alice, aliceConn := connectSession(t, srv)
	loginSession(t, srv, alice, aliceConn, "alice", "pass1")
	adminConn.receivedMessages(t)

	srv.dispatch(admin, protocol.Message{Type: protocol.TypeKickUser, Receiver: "alice"})

	// Target gets the notification before losing its session
	notice := aliceConn.lastMessage(t)
	assert.Equal(t, protocol.TypeKicked, notice.Type)
	assert.Equal(t, "You have been kicked by root", notice.Content)

	msgs := adminConn.receivedMessages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, protocol.TypeOk, msgs[0].Type)
	assert.Equal(t, "User kicked: alice", msgs[0].Content)
	assert.Equal(t, protocol.TypeUserStatus, msgs[1].Type)

	assert.False(t, srv.sessions.IsOnline("alice"))
	assert.False(t, alice.Active())
	assert.False(t, alice.IsAuthenticated())

	t.Run("offline target", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypeKickUser, Receiver: "alice"})
		reply := adminConn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "User not online: alice", reply.Content)
	})
}

func TestBanUser(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("root", "pass1", userdb.RoleAdmin)
	store.addUser("alice", "pass1", userdb.RoleMember)
	store.addUser("other", "pass1", userdb.RoleAdmin)

	admin, adminConn := connectSession(t, srv)
	loginSession(t, srv, admin, adminConn, "root", "pass1")

	alice, aliceConn := connectSession(t, srv)
	loginSession(t, srv, alice, aliceConn, "alice", "pass1")
	adminConn.receivedMessages(t)

	t.Run("bans and disconnects online target", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypeBanUser, Receiver: "alice"})

		notice := aliceConn.lastMessage(t)
		assert.Equal(t, protocol.TypeBanned, notice.Type)
		assert.Equal(t, "You have been banned by root", notice.Content)

		assert.True(t, store.IsBanned("alice"))
		assert.False(t, srv.sessions.IsOnline("alice"))
		assert.False(t, alice.Active())

		msgs := adminConn.receivedMessages(t)
		require.Len(t, msgs, 2)
		assert.Equal(t, protocol.TypeUserStatus, msgs[0].Type)
		assert.Equal(t, protocol.TypeOk, msgs[1].Type)
		assert.Equal(t, "User banned: alice", msgs[1].Content)
	})

	t.Run("cannot ban an admin", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypeBanUser, Receiver: "other"})
		reply := adminConn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "Cannot ban an admin", reply.Content)
	})

	t.Run("unban", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypeUnbanUser, Receiver: "alice"})
		reply := adminConn.lastMessage(t)
		assert.Equal(t, protocol.TypeOk, reply.Type)
		assert.Equal(t, "User unbanned: alice", reply.Content)
		assert.False(t, store.IsBanned("alice"))
	})

	t.Run("unban unknown user", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypeUnbanUser, Receiver: "ghost"})
		reply := adminConn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "User not found: ghost", reply.Content)
	})
}

func TestMuteUnmute(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("root", "pass1", userdb.RoleAdmin)
	store.addUser("alice", "pass1", userdb.RoleMember)

	admin, adminConn := connectSession(t, srv)
	loginSession(t, srv, admin, adminConn, "root", "pass1")

	alice, aliceConn := connectSession(t, srv)
	loginSession(t, srv, alice, aliceConn, "alice", "pass1")
	adminConn.receivedMessages(t)

	srv.dispatch(admin, protocol.Message{Type: protocol.TypeMuteUser, Receiver: "alice"})
	notice := aliceConn.lastMessage(t)
	assert.Equal(t, protocol.TypeMuted, notice.Type)
	assert.Equal(t, "You have been muted by root", notice.Content)
	assert.True(t, store.IsMuted("alice"))

	reply := adminConn.lastMessage(t)
	assert.Equal(t, "User muted: alice", reply.Content)

	// Muted user stays online but cannot chat
	assert.True(t, srv.sessions.IsOnline("alice"))
	srv.dispatch(alice, protocol.Message{Type: protocol.TypeMsgGlobal, Content: "hi"})
	assert.Equal(t, "You are muted and cannot send messages", aliceConn.lastMessage(t).Content)

	srv.dispatch(admin, protocol.Message{Type: protocol.TypeUnmuteUser, Receiver: "alice"})
	notice = aliceConn.lastMessage(t)
	assert.Equal(t, protocol.TypeUnmuted, notice.Type)
	assert.False(t, store.IsMuted("alice"))
}

func TestPromoteDemote(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("root", "pass1", userdb.RoleAdmin)
	store.addUser("alice", "pass1", userdb.RoleMember)

	admin, adminConn := connectSession(t, srv)
	loginSession(t, srv, admin, adminConn, "root", "pass1")

	t.Run("promote", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypePromoteUser, Receiver: "alice"})
		reply := adminConn.lastMessage(t)
		assert.Equal(t, protocol.TypeOk, reply.Type)
		assert.Equal(t, "User promoted: alice", reply.Content)
		assert.True(t, store.IsAdmin("alice"))
	})

	t.Run("promote an admin", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypePromoteUser, Receiver: "alice"})
		reply := adminConn.lastMessage(t)
		assert.Equal(t, "User is already an admin", reply.Content)
	})

	t.Run("demote", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypeDemoteUser, Receiver: "alice"})
		reply := adminConn.lastMessage(t)
		assert.Equal(t, "User demoted: alice", reply.Content)
		assert.False(t, store.IsAdmin("alice"))
	})

	t.Run("demote a member", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypeDemoteUser, Receiver: "alice"})
		reply := adminConn.lastMessage(t)
		assert.Equal(t, "User is not an admin", reply.Content)
	})

	t.Run("cannot demote yourself", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypeDemoteUser, Receiver: "root"})
		reply := adminConn.lastMessage(t)
		assert.Equal(t, "Cannot demote yourself", reply.Content)
	})
}

func TestAdminQueries(t *testing.T) {
	srv, store := testServer(t)
	store.addUser("root", "pass1", userdb.RoleAdmin)
	store.addUser("alice", "pass1", userdb.RoleMember)
	store.addUser("bob", "pass1", userdb.RoleMember)
	store.SetBanned("alice", true)
	store.SetMuted("bob", true)

	admin, adminConn := connectSession(t, srv)
	loginSession(t, srv, admin, adminConn, "root", "pass1")

	t.Run("all users", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypeGetAllUsers})
		reply := adminConn.lastMessage(t)
		require.Equal(t, protocol.TypeOk, reply.Type)

		var users []map[string]any
		require.NoError(t, json.Unmarshal([]byte(reply.Extra), &users))
		assert.Len(t, users, 3)
	})

	t.Run("banned list", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypeGetBannedList})
		reply := adminConn.lastMessage(t)

		var banned []string
		require.NoError(t, json.Unmarshal([]byte(reply.Extra), &banned))
		assert.Equal(t, []string{"alice"}, banned)
	})

	t.Run("muted list", func(t *testing.T) {
		srv.dispatch(admin, protocol.Message{Type: protocol.TypeGetMutedList})
		reply := adminConn.lastMessage(t)

		var muted []string
		require.NoError(t, json.Unmarshal([]byte(reply.Extra), &muted))
		assert.Equal(t, []string{"bob"}, muted)
	})
}

func TestPingAndUnknownCommand(t *testing.T) {
	srv, _ := testServer(t)
	sess, conn := connectSession(t, srv)

	t.Run("ping works unauthenticated", func(t *testing.T) {
		srv.dispatch(sess, protocol.NewPingMessage())
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypePong, reply.Type)
		assert.NotEmpty(t, reply.Timestamp)
	})

	t.Run("unknown type", func(t *testing.T) {
		srv.dispatch(sess, protocol.Message{Type: protocol.MessageType(999)})
		reply := conn.lastMessage(t)
		assert.Equal(t, protocol.TypeError, reply.Type)
		assert.Equal(t, "Unknown command", reply.Content)
	})
}
