// Package client implements the connection side of the chat protocol:
// dialing, frame reassembly and typed send helpers. It has no UI; the
// cmd/client binary layers a line-oriented interface on top.
package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aeolun/flatchat/pkg/protocol"
)

// Client is a single connection to a chat server. Incoming messages are
// delivered on the Messages channel; Send methods are safe for
// concurrent use.
type Client struct {
	conn    net.Conn
	writeMu sync.Mutex

	messages chan protocol.Message

	closeOnce sync.Once
	done      chan struct{}

	errMu   sync.Mutex
	readErr error
}

// Dial connects to a server over TCP.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return newClient(conn), nil
}

// DialWebSocket connects to a server's WebSocket endpoint, e.g.
// "ws://host:port/ws". Frames travel as binary WebSocket messages.
func DialWebSocket(url string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return newClient(newWSConn(ws)), nil
}

func newClient(conn net.Conn) *Client {
	c := &Client{
		conn:     conn,
		messages: make(chan protocol.Message, 64),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Messages returns the channel of incoming messages. It is closed when
// the connection ends.
func (c *Client) Messages() <-chan protocol.Message {
	return c.messages
}

// Err returns the error that ended the read loop, nil before that or
// after a clean local Close.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.messages)

	var buffer protocol.Buffer
	readBuf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(readBuf)
		if err != nil {
			select {
			case <-c.done:
				// Local close, not a failure
			default:
				c.errMu.Lock()
				c.readErr = err
				c.errMu.Unlock()
			}
			return
		}

		buffer.Append(readBuf[:n])
		for buffer.HasComplete() {
			msg, ok := buffer.Extract()
			if !ok {
				break
			}
			select {
			case c.messages <- msg:
			case <-c.done:
				return
			}
		}
	}
}

// Send writes one message to the server.
func (c *Client) Send(msg protocol.Message) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

// Register creates a new account.
func (c *Client) Register(username, password string) error {
	return c.Send(protocol.NewRegisterMessage(username, password))
}

// Login authenticates this connection.
func (c *Client) Login(username, password string) error {
	return c.Send(protocol.NewLoginMessage(username, password))
}

// Logout ends the authenticated state without closing the connection.
func (c *Client) Logout() error {
	return c.Send(protocol.Message{Type: protocol.TypeLogout})
}

// ChangePassword replaces the account password.
func (c *Client) ChangePassword(oldPassword, newPassword string) error {
	return c.Send(protocol.NewChangePasswordMessage(oldPassword, newPassword))
}

// SendGlobal sends a message to everyone online.
func (c *Client) SendGlobal(content string) error {
	return c.Send(protocol.Message{Type: protocol.TypeMsgGlobal, Content: content})
}

// SendPrivate sends a direct message to one user.
func (c *Client) SendPrivate(receiver, content string) error {
	return c.Send(protocol.Message{Type: protocol.TypeMsgPrivate, Receiver: receiver, Content: content})
}

// RequestOnlineList asks for the current roster.
func (c *Client) RequestOnlineList() error {
	return c.Send(protocol.Message{Type: protocol.TypeOnlineList})
}

// RequestUserInfo asks for a user's profile; empty username means self.
func (c *Client) RequestUserInfo(username string) error {
	return c.Send(protocol.Message{Type: protocol.TypeUserInfo, Receiver: username})
}

// Ping sends a heartbeat.
func (c *Client) Ping() error {
	return c.Send(protocol.NewPingMessage())
}

// Admin sends a moderation or admin query command targeting a user.
func (c *Client) Admin(msgType protocol.MessageType, target string) error {
	return c.Send(protocol.Message{Type: msgType, Receiver: target})
}
