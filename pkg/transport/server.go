package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Li-Yaosong/webadb2/pkg/log"
)

// Conn is an accepted device-side stream.
type Conn struct {
	// ID uniquely identifies the accepted connection (UUID).
	ID string

	// RemoteAddr is the peer address as reported by the listener.
	RemoteAddr string

	Streams Streams
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on (e.g., ":5555" or "127.0.0.1:0").
	Address string

	// Logger receives connection state events (optional).
	Logger log.Logger

	// OnConnect handles an accepted connection. It runs on its own
	// goroutine; the connection is closed when it returns.
	OnConnect func(ctx context.Context, conn *Conn)

	// OnError is called for accept and upgrade failures (optional).
	OnError func(err error)
}

// Server accepts TCP frame streams and, through WebSocketHandler,
// WebSocket frame streams. Both feed the same OnConnect handler.
type Server struct {
	config   ServerConfig
	listener net.Listener
	upgrader websocket.Upgrader

	active atomic.Int32

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. Start must be called to accept TCP clients.
func NewServer(config ServerConfig) (*Server, error) {
	if config.OnConnect == nil {
		return nil, fmt.Errorf("OnConnect is required")
	}
	if config.Address == "" {
		config.Address = ":5555"
	}
	s := &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start begins accepting TCP connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.running.Store(true)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and waits for active handlers to return.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		s.cancel()
		return nil
	}
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

// Addr returns the TCP listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	return int(s.active.Load())
}

// WebSocketHandler upgrades HTTP requests into frame streams.
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.reportError(fmt.Errorf("websocket upgrade: %w", err))
			return
		}
		conn.SetReadLimit(DefaultMaxMessageSize)

		s.wg.Add(1)
		defer s.wg.Done()
		s.serve(NewWebSocketStreams(conn), r.RemoteAddr)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() && !errors.Is(err, net.ErrClosed) {
				s.reportError(fmt.Errorf("accept error: %w", err))
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(NewConnStreams(conn), conn.RemoteAddr().String())
		}()
	}
}

// serve runs OnConnect for one stream and closes it afterwards.
func (s *Server) serve(streams Streams, remote string) {
	c := &Conn{
		ID:         uuid.New().String(),
		RemoteAddr: remote,
		Streams:    streams,
	}

	s.active.Add(1)
	s.logState(c, "", "CONNECTED")

	// Cancel pending reads when the server shuts down.
	stop := context.AfterFunc(s.ctx, func() { streams.Reader.Cancel() })

	s.config.OnConnect(s.ctx, c)

	stop()
	streams.Close()
	s.logState(c, "CONNECTED", "DISCONNECTED")
	s.active.Add(-1)
}

func (s *Server) logState(c *Conn, oldState, newState string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   c.RemoteAddr,
		},
	})
}

func (s *Server) reportError(err error) {
	if s.config.OnError != nil {
		s.config.OnError(err)
	}
}
