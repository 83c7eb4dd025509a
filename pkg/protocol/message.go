package protocol

import (
	"encoding/json"
	"time"
)

// TimestampFormat is the human-readable timestamp layout used on the wire.
const TimestampFormat = "2006-01-02 15:04:05"

// Message is the unit of communication. The payload is a flat JSON object
// with exactly these six fields; unused fields are empty strings, never
// omitted, so that every implementation sees the same field set.
type Message struct {
	Type      MessageType `json:"type"`
	Sender    string      `json:"sender"`
	Receiver  string      `json:"receiver"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp"`
	Extra     string      `json:"extra"`
}

// Now returns the current time formatted for the timestamp field.
func Now() string {
	return time.Now().Format(TimestampFormat)
}

// Credentials is the nested payload carried in the content field of
// REGISTER and LOGIN messages.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PasswordChange is the nested payload of CHANGE_PASSWORD messages.
type PasswordChange struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// NewGlobalMessage creates a broadcast chat message.
func NewGlobalMessage(sender, content string) Message {
	return Message{
		Type:      TypeMsgGlobal,
		Sender:    sender,
		Content:   content,
		Timestamp: Now(),
	}
}

// NewPrivateMessage creates a direct chat message.
func NewPrivateMessage(sender, receiver, content string) Message {
	return Message{
		Type:      TypeMsgPrivate,
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Timestamp: Now(),
	}
}

// NewUserStatusMessage announces a user going online or offline.
func NewUserStatusMessage(username, status string) Message {
	extra, _ := json.Marshal(map[string]string{"status": status})
	return Message{
		Type:   TypeUserStatus,
		Sender: username,
		Extra:  string(extra),
	}
}

// NewOnlineListMessage carries the current roster in extra as a JSON array.
func NewOnlineListMessage(usernames []string) Message {
	if usernames == nil {
		usernames = []string{}
	}
	extra, _ := json.Marshal(usernames)
	return Message{
		Type:  TypeOnlineList,
		Extra: string(extra),
	}
}

// NewOkResponse creates a success acknowledgment. extra may carry a
// machine-readable payload distinct from the human-readable content.
func NewOkResponse(content, extra string) Message {
	return Message{
		Type:    TypeOk,
		Content: content,
		Extra:   extra,
	}
}

// NewErrorResponse creates an error reply naming the violated condition.
func NewErrorResponse(reason string) Message {
	return Message{
		Type:    TypeError,
		Content: reason,
	}
}

// NewLoginMessage creates a LOGIN request with credentials nested in content.
func NewLoginMessage(username, password string) Message {
	content, _ := json.Marshal(Credentials{Username: username, Password: password})
	return Message{Type: TypeLogin, Content: string(content)}
}

// NewRegisterMessage creates a REGISTER request.
func NewRegisterMessage(username, password string) Message {
	content, _ := json.Marshal(Credentials{Username: username, Password: password})
	return Message{Type: TypeRegister, Content: string(content)}
}

// NewChangePasswordMessage creates a CHANGE_PASSWORD request.
func NewChangePasswordMessage(oldPassword, newPassword string) Message {
	content, _ := json.Marshal(PasswordChange{OldPassword: oldPassword, NewPassword: newPassword})
	return Message{Type: TypeChangePassword, Content: string(content)}
}

// NewPingMessage creates a heartbeat request.
func NewPingMessage() Message {
	return Message{Type: TypePing}
}
