package server

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/relay/internal/protocol"
	"github.com/gorilla/websocket"
)

// State is a session's position in its lifecycle.
type State int32

// Session states, in the only order they are entered.
const (
	StateConnecting State = iota
	StateRegistered
	StateActive
	StateClosing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Session owns one connection from registration to teardown.
type Session struct {
	id           string
	transport    Transport
	hub          *Hub
	out          *outbox
	limiter      *rateLimiter
	rateLimit    RateLimitConfig
	greeting     string
	pingInterval time.Duration
	state        atomic.Int32
}

// NewSession creates a session for transport using the given id. cfg
// supplies queue depth, rate limits and keepalive timing.
func NewSession(id string, transport Transport, hub *Hub, cfg *Config) *Session {
	pingInterval := cfg.PingInterval()
	if pingInterval <= 0 {
		pingInterval = defaultPongTimeout * 9 / 10
	}
	return &Session{
		id:           id,
		transport:    transport,
		hub:          hub,
		out:          newOutbox(cfg.SendBufferSize),
		limiter:      newRateLimiter(cfg.RateLimit),
		rateLimit:    cfg.RateLimit,
		greeting:     cfg.Greeting,
		pingInterval: pingInterval,
	}
}

// ID returns the connection identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(next State) {
	s.state.Store(int32(next))
}

// Run registers the session, relays its messages until the peer leaves or
// ctx is cancelled, and then tears it down. It returns an error only when
// the session could not be registered.
func (s *Session) Run(ctx context.Context) error {
	if err := s.hub.Join(ctx, s.id, s.out, protocol.Hello(s.id, s.greeting)); err != nil {
		log.Printf("Rejecting client %s from %s: %v", s.id, s.transport.RemoteAddr(), err)
		s.out.Close()
		s.closeTransport()
		s.setState(StateClosed)
		return err
	}
	s.setState(StateRegistered)
	s.hub.Broadcast(ctx, protocol.UserJoined(s.id), s.id)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()

	stop := context.AfterFunc(ctx, s.closeTransport)
	defer stop()

	s.setState(StateActive)
	s.readPump(ctx)

	s.setState(StateClosing)
	s.hub.Deregister(s.id)
	s.hub.Broadcast(context.WithoutCancel(ctx), protocol.UserLeft(s.id), s.id)
	s.out.Close()
	<-writerDone
	s.closeTransport()
	s.setState(StateClosed)
	log.Printf("Client %s from %s closed", s.id, s.transport.RemoteAddr())
	return nil
}

// readPump decodes and dispatches inbound frames until the stream ends, a
// frame cannot be decoded, or the peer asks to exit.
func (s *Session) readPump(ctx context.Context) {
	for {
		data, err := s.transport.ReadFrame()
		if err != nil {
			s.handleReadError(err)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Printf("Invalid frame from %s: %v; closing connection", s.id, err)
			return
		}

		action := Dispatch(s.id, msg)
		switch action.Kind {
		case ActionRelay:
			if !s.checkRateLimit() {
				continue
			}
			s.hub.Broadcast(ctx, action.Outbound, s.id)
		case ActionClose:
			log.Printf("Client %s requested exit", s.id)
			return
		default:
			log.Printf("Ignoring message from %s: %s", s.id, action.Reason)
		}
	}
}

// handleReadError logs why the read loop stopped. Ordinary disconnects are
// reported as events, everything else as an error.
func (s *Session) handleReadError(err error) {
	addr := s.transport.RemoteAddr()

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded the maximum frame size; closing connection", s.id)
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		log.Printf("Client %s (%s) disconnected: %v", s.id, addr, err)
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s (%s) connection closed", s.id, addr)
		return
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Unexpected WebSocket close from %s (%s): %v", s.id, addr, err)
		return
	}

	log.Printf("WebSocket read error from %s (%s): %v", s.id, addr, err)
}

// checkRateLimit reports whether another chat message may be relayed.
func (s *Session) checkRateLimit() bool {
	if s.limiter != nil && !s.limiter.allow() {
		log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", s.id, s.rateLimit.Burst, s.rateLimit.RefillInterval)
		return false
	}
	return true
}

// writePump drains the outbox to the transport and keeps the connection
// alive with pings. When the outbox is closed it sends a close frame.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		s.closeTransport()
	}()

	frames := s.out.frames()
	for {
		select {
		case payload, ok := <-frames:
			if !ok {
				if err := s.transport.WriteClose(); err != nil && !isExpectedCloseError(err) {
					log.Printf("Error writing close message to %s: %v", s.id, err)
				}
				return
			}
			if err := s.transport.WriteFrame(payload); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error writing message to %s: %v", s.id, err)
				}
				return
			}
		case <-ticker.C:
			if err := s.transport.WritePing(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error writing ping message to %s: %v", s.id, err)
				}
				return
			}
		}
	}
}

func (s *Session) closeTransport() {
	if err := s.transport.Close(); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error closing connection for %s: %v", s.id, err)
	}
}
