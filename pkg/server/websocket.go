package server

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aeolun/flatchat/pkg/protocol"
)

// WebSocketConn adapts a WebSocket connection to implement net.Conn.
// Frames arrive as binary WebSocket messages carrying the same
// length-prefixed encoding as the TCP transport, so the connection
// handler works on both unchanged.
type WebSocketConn struct {
	ws      *websocket.Conn
	readBuf bytes.Buffer
	readMu  sync.Mutex
	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  protocol.MaxMessageSize,
	WriteBufferSize: protocol.MaxMessageSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// startWebSocket runs an HTTP server whose /ws endpoint feeds upgraded
// connections into the normal connection handler.
func (s *Server) startWebSocket() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)

	addr := fmt.Sprintf(":%d", s.config.WebSocketPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on websocket port %d: %w", s.config.WebSocketPort, err)
	}
	s.wsServer = &http.Server{Handler: mux}
	errorLog.Printf("WebSocket endpoint listening on %s/ws", listener.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.wsServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errorLog.Printf("WebSocket server stopped: %v", err)
		}
	}()
	return nil
}

// HandleWebSocket upgrades an HTTP request and runs it as a session.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		errorLog.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	if s.config.MaxClients > 0 && s.sessions.CountSessions() >= s.config.MaxClients {
		errorLog.Printf("Rejecting %s: client limit %d reached", ws.RemoteAddr(), s.config.MaxClients)
		ws.Close()
		return
	}

	conn := NewWebSocketConn(ws)
	debugLog.Printf("WebSocket connection from %s", conn.RemoteAddr())
	go s.handleConnection(conn)
}

// NewWebSocketConn creates a new WebSocket connection adapter
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

// Read implements net.Conn.Read
func (c *WebSocketConn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.readBuf.Len() > 0 {
		return c.readBuf.Read(b)
	}

	messageType, data, err := c.ws.ReadMessage()
	if err != nil {
		return 0, err
	}

	// Only binary messages carry protocol frames
	if messageType != websocket.BinaryMessage {
		return 0, io.ErrUnexpectedEOF
	}

	c.readBuf.Write(data)
	return c.readBuf.Read(b)
}

// Write implements net.Conn.Write
func (c *WebSocketConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return 0, net.ErrClosed
	}
	c.closeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close implements net.Conn.Close
func (c *WebSocketConn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.ws.Close()
}

// LocalAddr implements net.Conn.LocalAddr
func (c *WebSocketConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

// RemoteAddr implements net.Conn.RemoteAddr
func (c *WebSocketConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// SetDeadline implements net.Conn.SetDeadline
func (c *WebSocketConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

// SetReadDeadline implements net.Conn.SetReadDeadline
func (c *WebSocketConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// SetWriteDeadline implements net.Conn.SetWriteDeadline
func (c *WebSocketConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
