package server

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/relay/internal/protocol"
)

const testTimeout = 2 * time.Second

var errFakeClosed = errors.New("use of closed network connection")

// fakeTransport is an in-memory Transport. Frames pushed with deliver are
// returned by ReadFrame; frames written by the session are recorded.
type fakeTransport struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	written   [][]byte
	closeSent bool
	notify    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
		notify:  make(chan struct{}, 1),
	}
}

func (f *fakeTransport) deliver(frame string) {
	f.inbound <- []byte(frame)
}

// hangUp simulates the peer closing its side of the stream.
func (f *fakeTransport) hangUp() {
	close(f.inbound)
}

func (f *fakeTransport) ReadFrame() ([]byte, error) {
	select {
	case data, ok := <-f.inbound:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-f.closed:
		return nil, errFakeClosed
	}
}

func (f *fakeTransport) WriteFrame(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.closed:
		return errFakeClosed
	default:
	}
	f.written = append(f.written, append([]byte(nil), payload...))
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeTransport) WritePing() error {
	return nil
}

func (f *fakeTransport) WriteClose() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSent = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() string {
	return "fake:1"
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) sentClose() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeSent
}

func (f *fakeTransport) messages(t *testing.T) []protocol.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := make([]protocol.Message, 0, len(f.written))
	for _, data := range f.written {
		msg, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("session wrote undecodable frame %q: %v", data, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// waitForWrites blocks until at least n frames have been written.
func (f *fakeTransport) waitForWrites(t *testing.T, n int) []protocol.Message {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		if msgs := f.messages(t); len(msgs) >= n {
			return msgs
		}
		select {
		case <-f.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %d frames, got %d", n, len(f.messages(t)))
		}
	}
}

// nextFrame reads and decodes the next frame queued on o.
func nextFrame(t *testing.T, o *outbox) protocol.Message {
	t.Helper()
	select {
	case data, ok := <-o.frames():
		if !ok {
			t.Fatal("outbox closed while waiting for a frame")
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("undecodable frame %q: %v", data, err)
		}
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a frame")
	}
	return protocol.Message{}
}

func expectEmpty(t *testing.T, o *outbox) {
	t.Helper()
	select {
	case data, ok := <-o.frames():
		if ok {
			t.Fatalf("unexpected frame %s", data)
		}
	default:
	}
}

// closedSink rejects every frame, like a peer that has already gone.
type closedSink struct {
	mu     sync.Mutex
	closes int
}

func (c *closedSink) Send([]byte) error {
	return ErrSinkClosed
}

func (c *closedSink) Close() {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
}
