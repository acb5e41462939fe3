package core

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Connection is a live delivery channel as seen by the router.
// Push must not block: implementations drop or fail instead.
// Implementations must be comparable (pointer types); the registry compares them by identity.
type Connection interface {
	Push(payload []byte) error
}

// Conn is the delivery channel backing one WebSocket session.
// The router fills a bounded queue; the transport drains it and writes frames.
type Conn struct {
	ID   string
	User string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewConn constructs a connection for user with a send queue of queueSize frames.
func NewConn(user string, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Conn{
		ID:   uuid.NewString(),
		User: user,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

// Push enqueues payload without blocking. A full queue drops the frame.
func (c *Conn) Push(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.dropped.Add(1)
		return ErrQueueFull
	}
}

// Outbox is drained by the transport write loop.
func (c *Conn) Outbox() <-chan []byte {
	return c.send
}

// Done is closed once the connection has been closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection closed. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Dropped reports how many frames were discarded because the queue was full.
func (c *Conn) Dropped() uint64 {
	return c.dropped.Load()
}
