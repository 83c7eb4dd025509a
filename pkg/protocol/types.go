package protocol

// MessageType identifies what a Message means and which of its fields
// carry data. The numeric values are the wire contract and must not be
// renumbered.
type MessageType int

const (
	// Auth
	TypeRegister       MessageType = 1
	TypeLogin          MessageType = 2
	TypeLogout         MessageType = 3
	TypeChangePassword MessageType = 4

	// Chat
	TypeMsgGlobal  MessageType = 10
	TypeMsgPrivate MessageType = 11

	// Presence
	TypeOnlineList MessageType = 20
	TypeUserStatus MessageType = 21
	TypeUserInfo   MessageType = 22

	// Moderation (admin only)
	TypeKickUser    MessageType = 30
	TypeBanUser     MessageType = 31
	TypeUnbanUser   MessageType = 32
	TypeMuteUser    MessageType = 33
	TypeUnmuteUser  MessageType = 34
	TypePromoteUser MessageType = 35
	TypeDemoteUser  MessageType = 36

	// Admin queries
	TypeGetAllUsers   MessageType = 40
	TypeGetBannedList MessageType = 41
	TypeGetMutedList  MessageType = 42

	// Notifications
	TypeKicked  MessageType = 50
	TypeBanned  MessageType = 51
	TypeMuted   MessageType = 52
	TypeUnmuted MessageType = 53

	// Responses
	TypeOk    MessageType = 100
	TypeError MessageType = 101

	// Heartbeat
	TypePing MessageType = 200
	TypePong MessageType = 201
)

// UserStatus values carried in the extra payload of TypeUserStatus messages.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

var typeNames = map[MessageType]string{
	TypeRegister:       "REGISTER",
	TypeLogin:          "LOGIN",
	TypeLogout:         "LOGOUT",
	TypeChangePassword: "CHANGE_PASSWORD",
	TypeMsgGlobal:      "MSG_GLOBAL",
	TypeMsgPrivate:     "MSG_PRIVATE",
	TypeOnlineList:     "ONLINE_LIST",
	TypeUserStatus:     "USER_STATUS",
	TypeUserInfo:       "USER_INFO",
	TypeKickUser:       "KICK_USER",
	TypeBanUser:        "BAN_USER",
	TypeUnbanUser:      "UNBAN_USER",
	TypeMuteUser:       "MUTE_USER",
	TypeUnmuteUser:     "UNMUTE_USER",
	TypePromoteUser:    "PROMOTE_USER",
	TypeDemoteUser:     "DEMOTE_USER",
	TypeGetAllUsers:    "GET_ALL_USERS",
	TypeGetBannedList:  "GET_BANNED_LIST",
	TypeGetMutedList:   "GET_MUTED_LIST",
	TypeKicked:         "KICKED",
	TypeBanned:         "BANNED",
	TypeMuted:          "MUTED",
	TypeUnmuted:        "UNMUTED",
	TypeOk:             "OK",
	TypeError:          "ERROR",
	TypePing:           "PING",
	TypePong:           "PONG",
}

// String returns the protocol name of the message type, or "UNKNOWN"
// for values outside the enumeration.
func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Known reports whether the type value is part of the enumeration.
func (t MessageType) Known() bool {
	_, ok := typeNames[t]
	return ok
}
