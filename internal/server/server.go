package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/resignhq/resign/internal/logger"
	"github.com/resignhq/resign/internal/protocol/wire"
	"github.com/resignhq/resign/pkg/metrics"
)

// Config holds the listener-level settings of the session server.
type Config struct {
	// BindAddress is the interface to listen on ("" means all).
	BindAddress string

	// Port is the TCP port to listen on.
	Port int

	// ReadTimeout bounds each blocking channel read. Zero disables the
	// deadline and a silent client pins its session goroutine forever.
	ReadTimeout time.Duration

	// MaxConnections caps concurrently served sessions. Zero means
	// unlimited.
	MaxConnections int

	// TLS, when non-nil, wraps every accepted connection. The session
	// core itself never looks at transport details; it only requires an
	// ordered byte stream.
	TLS *tls.Config

	// ShutdownTimeout bounds how long Serve waits for active sessions to
	// drain after the context is cancelled.
	ShutdownTimeout time.Duration
}

// Server accepts connections and runs one session loop per connection.
//
// Sessions share no mutable state with each other; the directory store is
// the only shared resource and is safe for concurrent use.
type Server struct {
	config     Config
	dispatcher *Dispatcher

	listenerMu sync.Mutex
	listener   net.Listener

	// ListenerReady is closed once the listener is bound. Tests use it to
	// learn the effective address when Port is 0.
	ListenerReady chan struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once

	activeConns sync.WaitGroup
}

// New creates a server over the given dispatcher.
func New(config Config, dispatcher *Dispatcher) *Server {
	return &Server{
		config:        config,
		dispatcher:    dispatcher,
		ListenerReady: make(chan struct{}),
		shutdown:      make(chan struct{}),
	}
}

// Addr returns the bound listener address. Only valid after ListenerReady
// is closed.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until the context is cancelled. It returns nil
// on graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	listenAddr := fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("create listener on %s: %w", listenAddr, err)
	}
	if s.config.TLS != nil {
		listener = tls.NewListener(listener, s.config.TLS)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.ListenerReady)

	logger.Info("session server listening", "address", listener.Addr().String(), "tls", s.config.TLS != nil)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received", "reason", ctx.Err())
		s.initiateShutdown()
	}()

	var connSemaphore chan struct{}
	if s.config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, s.config.MaxConnections)
	}

	for {
		if connSemaphore != nil {
			select {
			case connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.drain()
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if connSemaphore != nil {
				<-connSemaphore
			}
			select {
			case <-s.shutdown:
				// Expected: the listener was closed by shutdown.
				return s.drain()
			default:
				logger.Debug("accept failed", "error", err)
				continue
			}
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("failed to set TCP_NODELAY", "error", err)
			}
		}

		metrics.ConnectionsAccepted.Inc()
		metrics.ActiveSessions.Inc()
		s.activeConns.Add(1)

		go func(conn net.Conn) {
			defer func() {
				metrics.ActiveSessions.Dec()
				s.activeConns.Done()
				if connSemaphore != nil {
					<-connSemaphore
				}
			}()
			s.handleConnection(ctx, conn)
		}(conn)
	}
}

// initiateShutdown closes the listener so the accept loop unblocks.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		s.listenerMu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.listenerMu.Unlock()
	})
}

// drain waits for active sessions to finish, bounded by ShutdownTimeout.
func (s *Server) drain() error {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		logger.Info("all sessions drained")
		return nil
	case <-time.After(timeout):
		logger.Warn("shutdown timeout expired with sessions still active")
		return fmt.Errorf("shutdown timed out after %s", timeout)
	}
}

// handleConnection runs one session loop and logs how it ended. Graceful
// closes (explicit Exit, client disconnect) are logged at info; protocol
// errors and I/O failures at warn. A failure terminates only the affected
// session, never the process.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	channel := wire.New(conn, s.config.ReadTimeout)
	defer func() {
		_ = channel.Close()
	}()

	session := NewSession(channel)
	session.log.Debug("session started")

	result, err := session.Run(ctx, s.dispatcher)
	switch result {
	case ResultClientExit, ResultDisconnect:
		session.log.Info("session closed", "result", result.String())
	case ResultProtocolError:
		metrics.ProtocolErrors.Inc()
		session.log.Warn("session terminated", "result", result.String(), "error", err)
	default:
		session.log.Warn("session failed", "result", result.String(), "error", err)
	}
}
