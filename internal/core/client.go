package core

import "sync"

// Client is one live connection as seen by the core layer.
// The hub is the only writer of Events and closes it once the client is unregistered.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	closed    chan struct{}
	evicted   chan struct{}
	evictOnce sync.Once
}

// NewClient constructs a client with initialized channels.
// buffer sizes the outbound event queue; a client that lets it fill up gets evicted.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 8
	}
	return &Client{
		ID:       id,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, buffer),
		closed:   make(chan struct{}),
		evicted:  make(chan struct{}),
	}
}

// Evicted is closed when the hub gives up on a slow consumer.
// The transport must then close the connection, which feeds the regular disconnect path.
func (c *Client) Evicted() <-chan struct{} {
	return c.evicted
}

func (c *Client) evict() bool {
	first := false
	c.evictOnce.Do(func() {
		close(c.evicted)
		first = true
	})
	return first
}
