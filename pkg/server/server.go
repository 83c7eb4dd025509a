package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aeolun/flatchat/pkg/protocol"
)

// ServerConfig holds the runtime settings for a Server.
type ServerConfig struct {
	TCPPort          int
	WebSocketPort    int
	MaxClients       int
	MessageRateLimit int
	RateLimitWindow  time.Duration
}

// DefaultServerConfig returns the settings used when no config file exists.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		TCPPort:          9000,
		WebSocketPort:    0,
		MaxClients:       100,
		MessageRateLimit: 10,
		RateLimitWindow:  time.Second,
	}
}

// Server accepts TCP (and optionally WebSocket) connections and routes
// chat messages between authenticated sessions.
type Server struct {
	config   ServerConfig
	store    UserStore
	sessions *SessionManager
	metrics  *Metrics

	listener net.Listener
	wsServer *http.Server

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a server. metrics may be nil to disable instrumentation.
func NewServer(config ServerConfig, store UserStore, metrics *Metrics) *Server {
	sessions := NewSessionManager()
	sessions.SetMetrics(metrics)

	return &Server{
		config:   config,
		store:    store,
		sessions: sessions,
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}
}

// Sessions exposes the session registry.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Start begins listening. It returns once the listeners are bound; the
// accept loops run on their own goroutines.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.TCPPort))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.TCPPort, err)
	}
	s.listener = listener
	errorLog.Printf("Chat server listening on %s", listener.Addr())

	s.wg.Add(1)
	go s.acceptLoop()

	if s.config.WebSocketPort > 0 {
		if err := s.startWebSocket(); err != nil {
			listener.Close()
			return err
		}
	}

	return nil
}

// Addr returns the bound TCP address. Useful with TCPPort 0 in tests.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop shuts the server down: stop accepting, close every session's
// transport to unblock reads, and wait for the accept loop to drain.
func (s *Server) Stop() {
	close(s.shutdown)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.wsServer != nil {
		s.wsServer.Close()
	}
	s.sessions.CloseAll()
	s.wg.Wait()
	errorLog.Printf("Chat server stopped")
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			errorLog.Printf("Accept failed: %v", err)
			continue
		}

		if s.config.MaxClients > 0 && s.sessions.CountSessions() >= s.config.MaxClients {
			errorLog.Printf("Rejecting %s: client limit %d reached", conn.RemoteAddr(), s.config.MaxClients)
			conn.Close()
			continue
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}

		// Connection goroutines are not joined on shutdown; CloseAll
		// unblocks their reads and they exit on their own.
		go s.handleConnection(conn)
	}
}

// handleConnection runs the receive loop for one connection, TCP or
// WebSocket-wrapped. It owns the session's read side and its teardown.
func (s *Server) handleConnection(conn net.Conn) {
	sess := s.sessions.CreateSession(conn)
	debugLog.Printf("session %d: connected from %s", sess.ID, sess.Addr)

	defer s.teardownSession(sess)

	readBuf := make([]byte, 4096)
	for sess.Active() {
		n, err := sess.Conn.Read(readBuf)
		if err != nil {
			debugLog.Printf("session %d: read ended: %v", sess.ID, err)
			return
		}

		sess.buffer.Append(readBuf[:n])
		for sess.buffer.HasComplete() {
			msg, ok := sess.buffer.Extract()
			if !ok {
				break
			}
			s.dispatch(sess, msg)
			if !sess.Active() {
				return
			}
		}
	}
}

// teardownSession announces the disconnect, releases registry state and
// closes the transport. The offline broadcast excludes the departing
// session itself.
func (s *Server) teardownSession(sess *Session) {
	username := sess.Username()
	if username != "" {
		s.sessions.ReleaseUsername(username)
		s.sessions.Broadcast(protocol.NewUserStatusMessage(username, protocol.StatusOffline), sess.ID)
		errorLog.Printf("User logged out: %s", username)
	}
	s.sessions.RemoveSession(sess.ID)
	sess.Conn.Close()
	debugLog.Printf("session %d: closed", sess.ID)
}

// dispatch routes a decoded message to its handler. Handler panics are
// converted to an ERROR reply so one bad request cannot take down the
// connection, let alone the server.
func (s *Server) dispatch(sess *Session, msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			errorLog.Printf("session %d: panic handling %s: %v", sess.ID, msg.Type, r)
			s.sendError(sess, "Internal server error")
		}
	}()

	if s.metrics != nil {
		s.metrics.RecordMessageReceived(msg.Type.String())
	}
	debugLog.Printf("session %d: %s from %q", sess.ID, msg.Type, sess.Username())

	switch msg.Type {
	case protocol.TypeRegister:
		s.handleRegister(sess, msg)
	case protocol.TypeLogin:
		s.handleLogin(sess, msg)
	case protocol.TypeLogout:
		s.handleLogout(sess)
	case protocol.TypeChangePassword:
		s.handleChangePassword(sess, msg)
	case protocol.TypeMsgGlobal:
		s.handleGlobalMessage(sess, msg)
	case protocol.TypeMsgPrivate:
		s.handlePrivateMessage(sess, msg)
	case protocol.TypeOnlineList:
		s.handleOnlineList(sess)
	case protocol.TypeUserInfo:
		s.handleUserInfo(sess, msg)
	case protocol.TypeKickUser:
		s.handleKickUser(sess, msg)
	case protocol.TypeBanUser:
		s.handleBanUser(sess, msg)
	case protocol.TypeUnbanUser:
		s.handleUnbanUser(sess, msg)
	case protocol.TypeMuteUser:
		s.handleMuteUser(sess, msg)
	case protocol.TypeUnmuteUser:
		s.handleUnmuteUser(sess, msg)
	case protocol.TypePromoteUser:
		s.handlePromoteUser(sess, msg)
	case protocol.TypeDemoteUser:
		s.handleDemoteUser(sess, msg)
	case protocol.TypeGetAllUsers:
		s.handleGetAllUsers(sess)
	case protocol.TypeGetBannedList:
		s.handleGetBannedList(sess)
	case protocol.TypeGetMutedList:
		s.handleGetMutedList(sess)
	case protocol.TypePing:
		s.handlePing(sess)
	case protocol.TypeError:
		// Synthesized by Extract for an oversize or garbled frame. The
		// tainted bytes are already discarded; report the diagnostic and
		// keep reading.
		s.send(sess, msg)
	default:
		s.sendError(sess, "Unknown command")
	}
}
