package client

import (
	"bytes"
	"context"
	"flag"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/relay/internal/protocol"
	"github.com/Tyrowin/relay/internal/server"
	"github.com/gorilla/websocket"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{name: "hello", frame: `{"type":"hello","id":"c1"}`, want: "Connected as c1"},
		{name: "hello with greeting", frame: `{"type":"hello","id":"c1","text":"welcome"}`, want: "Connected as c1 (welcome)"},
		{name: "user joined", frame: `{"type":"user_joined","id":"c2"}`, want: "User joined: c2"},
		{name: "user left", frame: `{"type":"user_left","id":"c2"}`, want: "User left: c2"},
		{name: "chat", frame: `{"type":"chat","id":"c2","text":"hi there"}`, want: "c2: hi there"},
		{name: "chat without sender", frame: `{"type":"chat","text":"hi"}`, want: `Unknown message: {"type":"chat","text":"hi"}`},
		{name: "unknown type", frame: `{"type":"typing","id":"c2"}`, want: `Unknown message: {"type":"typing","id":"c2"}`},
		{name: "invalid json", frame: `garbage`, want: "Unknown message: garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render([]byte(tt.frame)); got != tt.want {
				t.Errorf("render(%s) = %q, want %q", tt.frame, got, tt.want)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Setenv("RELAY_URL", "ws://env.example/ws")

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := ParseConfig(fs, []string{"-origin", "http://localhost:8080"})
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.URL != "ws://env.example/ws" {
		t.Errorf("URL = %q, want env value", cfg.URL)
	}
	if cfg.Origin != "http://localhost:8080" {
		t.Errorf("Origin = %q", cfg.Origin)
	}
}

func startRelay(t *testing.T) string {
	t.Helper()
	srv := server.New(nil, server.WithIDGenerator(server.CounterGenerator("c")))
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return msg
}

func TestRunChatAndExit(t *testing.T) {
	url := startRelay(t)

	observer, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer observer.Close()
	if hello := readFrame(t, observer); hello.ID != "c1" {
		t.Fatalf("observer hello = %+v, want c1", hello)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	in := strings.NewReader("hello everyone\n\nexit\n")
	if err := New(Config{URL: url}).Run(ctx, in, &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if joined := readFrame(t, observer); joined.Type != protocol.TypeUserJoined || joined.ID != "c2" {
		t.Fatalf("observer received %+v, want user_joined c2", joined)
	}
	chat := readFrame(t, observer)
	if text, _ := chat.TextValue(); chat.Type != protocol.TypeChat || chat.ID != "c2" || text != "hello everyone" {
		t.Fatalf("observer received %+v, want chat from c2", chat)
	}
	if left := readFrame(t, observer); left.Type != protocol.TypeUserLeft || left.ID != "c2" {
		t.Fatalf("observer received %+v, want user_left c2", left)
	}

	output := out.String()
	for _, want := range []string{"Connected to " + url, "Connected as c2", "Server closed the connection"} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q missing %q", output, want)
		}
	}
}

func TestRunEOFSendsExit(t *testing.T) {
	url := startRelay(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	if err := New(Config{URL: url}).Run(ctx, strings.NewReader(""), &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "Server closed the connection") {
		t.Errorf("output %q does not report the close", out.String())
	}
}

func TestRunDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := New(Config{URL: "ws://127.0.0.1:1/ws"}).Run(ctx, strings.NewReader(""), io.Discard)
	if err == nil {
		t.Fatal("Run() succeeded against a closed port")
	}
}
