package server

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the duplex frame stream a session runs over. ReadFrame is
// only called from the session reader and the write methods only from its
// writer; Close may be called from anywhere.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	WritePing() error
	WriteClose() error
	Close() error
	RemoteAddr() string
}

// wsTransport adapts a gorilla WebSocket connection, applying read limits,
// keepalive deadlines and per-write timeouts.
type wsTransport struct {
	conn         *websocket.Conn
	addr         string
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func newWSTransport(conn *websocket.Conn, addr string, cfg *Config) *wsTransport {
	t := &wsTransport{
		conn:         conn,
		addr:         addr,
		writeTimeout: cfg.WriteTimeout,
	}
	conn.SetReadLimit(cfg.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", addr, err)
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", addr, err)
		}
		return nil
	})
	return t
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteFrame(payload []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) WritePing() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

func (t *wsTransport) WriteClose() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.writeTimeout))
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *wsTransport) RemoteAddr() string {
	return t.addr
}
