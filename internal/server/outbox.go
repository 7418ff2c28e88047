package server

import "sync"

// Sink accepts encoded frames for one connection without blocking.
type Sink interface {
	Send(payload []byte) error
	Close()
}

// outbox is the bounded FIFO queue between the hub and a session's writer.
// Send never blocks: a full queue is reported as ErrSinkFull so the hub can
// drop the slow peer instead of stalling everyone else.
type outbox struct {
	mu     sync.Mutex
	queue  chan []byte
	closed bool
}

func newOutbox(capacity int) *outbox {
	if capacity <= 0 {
		capacity = 1
	}
	return &outbox{queue: make(chan []byte, capacity)}
}

// Send queues payload for delivery.
func (o *outbox) Send(payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrSinkClosed
	}
	select {
	case o.queue <- payload:
		return nil
	default:
		return ErrSinkFull
	}
}

// Close ends the queue. Frames already queued are still handed to the writer.
func (o *outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	close(o.queue)
}

// frames is drained by the session writer until Close.
func (o *outbox) frames() <-chan []byte {
	return o.queue
}
