package session

import (
	"sync"

	"github.com/google/uuid"
)

const outboxSize = 256

// Client is one connected participant of a session. The session run loop
// owns its assigned name and lock state; the transport layer only drains the
// outbox into the websocket.
type Client struct {
	UserID string

	requestedName string
	name          string // assigned by the run loop during join

	send      chan []byte
	closeOnce sync.Once
}

func newClient(requestedName string) *Client {
	return &Client{
		UserID:        uuid.NewString(),
		requestedName: requestedName,
		send:          make(chan []byte, outboxSize),
	}
}

// Outbox yields the frames queued for this client, in order. The channel is
// closed when the client is removed from the session.
func (c *Client) Outbox() <-chan []byte { return c.send }

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}
