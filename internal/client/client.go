// Package client implements the terminal chat client: it relays stdin lines
// to a relay server and prints what the server fans out.
package client

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/relay/internal/protocol"
	"github.com/caarlos0/env/v11"
	"github.com/gorilla/websocket"
)

// ExitCommand is the input line that asks the server to close the connection.
const ExitCommand = "exit"

const closeWait = 5 * time.Second

// Config holds client command configuration.
type Config struct {
	URL    string `env:"RELAY_URL"    envDefault:"ws://localhost:8080/ws"`
	Origin string `env:"RELAY_ORIGIN"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.URL, "url", cfg.URL, "relay WebSocket URL")
	fs.StringVar(&cfg.Origin, "origin", cfg.Origin, "Origin header sent with the handshake")
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Client is a single interactive connection to a relay server.
type Client struct {
	cfg    Config
	dialer websocket.Dialer
}

// New creates a client for cfg.
func New(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		dialer: websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
	}
}

// Run connects, then sends every non-blank line read from in as a chat
// message until in is exhausted, the exit command is typed, the server
// closes the connection, or ctx is cancelled. Server frames are rendered to
// out as they arrive.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	header := http.Header{}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()

	w := &lockedWriter{w: out}
	fmt.Fprintf(w, "Connected to %s\n", c.cfg.URL)

	readDone := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readDone <- err
				return
			}
			fmt.Fprintln(w, render(data))
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var exitTimeout <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
			return nil

		case line, ok := <-lines:
			if !ok {
				lines = nil
				line = ExitCommand
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == ExitCommand {
				if exitTimeout != nil {
					continue
				}
				if err := send(conn, protocol.UserExit()); err != nil {
					return err
				}
				lines = nil
				exitTimeout = time.After(closeWait)
				continue
			}
			if err := send(conn, protocol.ChatRequest(line)); err != nil {
				return err
			}

		case err := <-readDone:
			if exitTimeout != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fmt.Fprintln(w, "Server closed the connection")
				return nil
			}
			return fmt.Errorf("read: %w", err)

		case <-exitTimeout:
			return errors.New("server did not close the connection after exit")
		}
	}
}

func send(conn *websocket.Conn, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// render formats one server frame for the terminal.
func render(data []byte) string {
	msg, err := protocol.Decode(data)
	if err != nil {
		return "Unknown message: " + string(data)
	}
	switch msg.Type {
	case protocol.TypeHello:
		if text, ok := msg.TextValue(); ok {
			return fmt.Sprintf("Connected as %s (%s)", msg.ID, text)
		}
		return "Connected as " + msg.ID
	case protocol.TypeUserJoined:
		return "User joined: " + msg.ID
	case protocol.TypeUserLeft:
		return "User left: " + msg.ID
	case protocol.TypeChat:
		text, ok := msg.TextValue()
		if ok && msg.ID != "" {
			return msg.ID + ": " + text
		}
	}
	return "Unknown message: " + string(data)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
