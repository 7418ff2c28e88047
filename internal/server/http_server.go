// Package server constructs and starts the relay HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Server hosts the relay's HTTP routes and owns every live session.
type Server struct {
	cfg        *Config
	hub        *Hub
	nextID     IDGenerator
	upgrader   websocket.Upgrader
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

// Option configures a Server.
type Option func(s *Server)

// WithIDGenerator overrides the configured identifier scheme.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Server) {
		if gen != nil {
			s.nextID = gen
		}
	}
}

// WithHub makes the server register sessions with an existing hub.
func WithHub(hub *Hub) Option {
	return func(s *Server) {
		if hub != nil {
			s.hub = hub
		}
	}
}

// New creates a Server from cfg. A nil cfg uses the defaults.
func New(cfg *Config, options ...Option) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	cfg.Sanitize()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		hub:    NewHub(),
		nextID: newIDGenerator(cfg.IDScheme),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, option := range options {
		if option != nil {
			option(s)
		}
	}

	policy := newOriginPolicy(cfg.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}
	s.httpServer = CreateServer(cfg.Addr, s.Routes())
	return s
}

// Hub returns the hub sessions register with.
func (s *Server) Hub() *Hub {
	return s.hub
}

// CreateServer creates and configures an HTTP server with the specified address and handler.
// It sets reasonable timeout values for production use.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ListenAndServe serves until Shutdown is called. It returns nil after a
// clean shutdown.
func (s *Server) ListenAndServe() error {
	log.Printf("Server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// trackSession reserves a slot for a new session. It fails once shutdown
// has begun.
func (s *Server) trackSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions.Add(1)
	return true
}

// Shutdown stops accepting connections, asks every session to close with a
// close frame and waits for them until ctx expires. Sessions still running
// at that point have their connections dropped.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	httpErr := s.httpServer.Shutdown(ctx)
	if httpErr != nil {
		log.Printf("HTTP server shutdown error: %v", httpErr)
	}

	s.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		log.Println("Server shutdown completed")
		return httpErr
	case <-ctx.Done():
		s.cancel()
		<-done
		log.Println("Server shutdown timeout reached, remaining connections were dropped")
		return ctx.Err()
	}
}
