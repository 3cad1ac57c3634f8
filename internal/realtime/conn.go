package realtime

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ashmarby/folioline-core/internal/identity"
)

// Conn is a registered websocket session. It pairs an authenticated
// identity with a bounded outbound queue; the transport layer drains
// Outbound() into the socket.
type Conn struct {
	id       string
	identity identity.Identity
	send     chan []byte
}

// NewConn creates a connection for an authenticated identity with the
// given outbound buffer capacity.
func NewConn(ident identity.Identity, bufferSize int) *Conn {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Conn{
		id:       "conn-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8],
		identity: ident,
		send:     make(chan []byte, bufferSize),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Identity returns the authenticated identity bound at registration.
func (c *Conn) Identity() identity.Identity { return c.identity }

// UserID returns the authenticated user's ID.
func (c *Conn) UserID() string { return c.identity.UserID }

// Outbound exposes the queue the transport write pump drains.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// TrySend queues a message without blocking. It reports false when the
// buffer is full (the message is dropped) or the connection has already
// been closed by the registry.
func (c *Conn) TrySend(message []byte) (ok bool) {
	// Send on a channel the registry closed during a concurrent
	// deregister panics; treat that race as a normal miss.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// closeSend is called exactly once, by the registry, after the connection
// has been removed from every room.
func (c *Conn) closeSend() {
	close(c.send)
}
