package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"scpchat/internal/transport"
)

// Options configures the TCP listener and per-connection deadlines.
type Options struct {
	Addr         string
	WriteTimeout time.Duration
	DrainTimeout time.Duration
}

// Server accepts SCP clients over TCP and, through ServeWebSocket, over
// WebSocket. Every connection is served by the same Handler.
type Server struct {
	handler *Handler
	opts    Options

	mu       sync.Mutex
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	conns    sync.WaitGroup
	accept   sync.WaitGroup
}

func New(handler *Handler, opts Options) *Server {
	return &Server{
		handler: handler,
		opts:    opts,
	}
}

// Start binds the listener and begins accepting in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrServerStarted
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}

	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.accept.Add(1)
	go s.acceptLoop(listener)

	log.Printf("SCP server listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.accept.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept failed: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		tcpConn := transport.NewTCPConn(conn, transport.TCPOptions{
			WriteTimeout: s.opts.WriteTimeout,
			DrainTimeout: s.opts.DrainTimeout,
		})
		s.serve(tcpConn)
	}
}

// serve runs conn on its own goroutine under the server's lifetime context.
// Connections arriving after Stop has begun are closed immediately.
func (s *Server) serve(conn transport.Conn) {
	s.mu.Lock()
	if s.ctx == nil || s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	ctx := s.ctx
	s.conns.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.conns.Done()
		if err := s.handler.ServeConn(ctx, conn); err != nil {
			log.Printf("Connection from %s ended with error: %v", conn.RemoteAddr(), err)
		}
	}()
}

// ServeWebSocket upgrades an HTTP request and serves it as an SCP
// connection until the client goes away or the server stops.
func (s *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	running := s.ctx != nil && s.ctx.Err() == nil
	s.mu.Unlock()
	if !running {
		http.Error(w, ErrServerNotActive.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := transport.Upgrade(w, r, s.opts.WriteTimeout)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	s.serve(conn)
}

// Stop closes the listener, disconnects every client and waits for their
// handlers to finish or for ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	if listener == nil {
		s.mu.Unlock()
		return ErrServerNotActive
	}
	s.cancel()
	s.mu.Unlock()

	err := listener.Close()
	s.accept.Wait()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("SCP server stopped")
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
