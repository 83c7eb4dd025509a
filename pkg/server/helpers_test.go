package server

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aeolun/flatchat/pkg/protocol"
)

// mockConn is an in-memory net.Conn that records everything written to
// it. Reads block forever until Close; handler tests drive dispatch
// directly and never read.
type mockConn struct {
	mu       sync.Mutex
	written  bytes.Buffer
	closed   chan struct{}
	closeOne sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{closed: make(chan struct{})}
}

func (c *mockConn) Read(b []byte) (int, error) {
	<-c.closed
	return 0, io.EOF
}

func (c *mockConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	return c.written.Write(b)
}

func (c *mockConn) Close() error {
	c.closeOne.Do(func() { close(c.closed) })
	return nil
}

// receivedMessages decodes every frame written to the connection so far
// and resets the capture.
func (c *mockConn) receivedMessages(t *testing.T) []protocol.Message {
	t.Helper()
	c.mu.Lock()
	data := append([]byte(nil), c.written.Bytes()...)
	c.written.Reset()
	c.mu.Unlock()

	var msgs []protocol.Message
	reader := bytes.NewReader(data)
	for reader.Len() > 0 {
		msg, err := protocol.ReadMessage(reader)
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	return msgs
}

// lastMessage returns the most recent frame, failing if none arrived.
func (c *mockConn) lastMessage(t *testing.T) protocol.Message {
	t.Helper()
	msgs := c.receivedMessages(t)
	require.NotEmpty(t, msgs, "expected at least one reply")
	return msgs[len(msgs)-1]
}

type mockAddr struct{}

func (mockAddr) Network() string { return "mock" }
func (mockAddr) String() string  { return "mock:0" }

func (c *mockConn) LocalAddr() net.Addr                { return mockAddr{} }
func (c *mockConn) RemoteAddr() net.Addr               { return mockAddr{} }
func (c *mockConn) SetDeadline(t time.Time) error      { return nil }
func (c *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *mockConn) SetWriteDeadline(t time.Time) error { return nil }

// testServer builds a server with an in-memory store and no listeners.
func testServer(t *testing.T) (*Server, *mockStore) {
	t.Helper()
	store := newMockStore()
	srv := NewServer(DefaultServerConfig(), store, nil)
	return srv, store
}

// connectSession registers a fresh mock connection as a session.
func connectSession(t *testing.T, srv *Server) (*Session, *mockConn) {
	t.Helper()
	conn := newMockConn()
	sess := srv.sessions.CreateSession(conn)
	t.Cleanup(func() { conn.Close() })
	return sess, conn
}

// loginSession authenticates a session as an existing store user.
func loginSession(t *testing.T, srv *Server, sess *Session, conn *mockConn, username, password string) {
	t.Helper()
	srv.dispatch(sess, protocol.NewLoginMessage(username, password))
	msgs := conn.receivedMessages(t)
	require.NotEmpty(t, msgs)
	require.Equal(t, protocol.TypeOk, msgs[0].Type, "login should succeed: %s", msgs[0].Content)
}
