package core

import (
	"context"

	"github.com/rs/zerolog"
)

// OccupancyNotifier is told about room size changes. Implementations must not block.
type OccupancyNotifier interface {
	RoomChanged(room string, members int)
}

type nopNotifier struct{}

func (nopNotifier) RoomChanged(string, int) {}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// syncKey identifies an outstanding sync: joiner waits for content of room from source.
type syncKey struct {
	room   string
	joiner string
	source string
}

// Stats is a point-in-time view of hub occupancy.
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// Hub coordinates membership and relays buffer content.
// All registry and directory state is owned by the Run goroutine; every event runs to completion
// before the next one is taken, so broadcasts never expose a half-applied roster.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	queries    chan func()
	done       chan struct{}

	registry  *Registry
	directory *Directory
	pending   map[syncKey]struct{}
	notifier  OccupancyNotifier
	log       *zerolog.Logger
}

// NewHub creates a hub. notifier may be nil.
func NewHub(logger *zerolog.Logger, notifier OccupancyNotifier) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 256),
		queries:    make(chan func()),
		done:       make(chan struct{}),
		registry:   NewRegistry(),
		directory:  NewDirectory(),
		pending:    make(map[syncKey]struct{}),
		notifier:   notifier,
		log:        logger,
	}
}

// Run processes events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Int("connections", h.registry.Len()).Msg("hub stopping")
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleDisconnect(c)
		case cc := <-h.commands:
			h.handleCommand(cc.client, cc.cmd)
		case q := <-h.queries:
			q()
		}
	}
}

// RegisterClient makes c known to the hub and starts forwarding its Commands.
func (h *Hub) RegisterClient(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// UnregisterClient is the single departure path: transport close, explicit leave and eviction all end here.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Roster returns the current members of room in join order.
func (h *Hub) Roster(ctx context.Context, room string) ([]Member, error) {
	var roster []Member
	err := h.query(ctx, func() {
		roster = h.roster(room)
	})
	if err != nil {
		return nil, err
	}
	return roster, nil
}

// Stats returns the number of live rooms and connections.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := h.query(ctx, func() {
		stats = Stats{Rooms: h.directory.Len(), Connections: h.registry.Len()}
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (h *Hub) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(finished) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) handleRegister(c *Client) {
	if !h.registry.Register(c) {
		h.log.Warn().Str("client_id", c.ID).Msg("duplicate connection id")
		c.evict()
		return
	}
	h.log.Debug().Str("client_id", c.ID).Msg("client registered")
	go h.forward(c)
}

// forward feeds c.Commands into the hub in submission order until c is unregistered.
func (h *Hub) forward(c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-c.closed:
				return
			case <-h.done:
				return
			}
		case <-c.closed:
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) handleCommand(c *Client, cmd *Command) {
	// Commands that were still queued when the connection went away are dropped.
	if !h.registry.Registered(c) {
		return
	}
	switch cmd.Kind {
	case CommandJoinRoom:
		h.handleJoin(c, cmd)
	case CommandBufferSync:
		h.requestSync(c, cmd.Room, cmd.Target, cmd.Content)
	case CommandBufferChange:
		h.broadcastChange(c, cmd.Room, cmd.Content)
	default:
		h.sendError(c, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

// deliver never blocks: a client whose queue is full is evicted instead of silently missing roster events.
func (h *Hub) deliver(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		if c.evict() {
			h.log.Warn().Str("client_id", c.ID).Str("event", ev.Kind.String()).Msg("evicting slow consumer")
		}
	}
}

// broadcast sends ev to every member of room except the one with id exclude.
func (h *Hub) broadcast(room string, ev *Event, exclude string) {
	for _, id := range h.directory.Members(room) {
		if id == exclude {
			continue
		}
		if c, ok := h.registry.Client(id); ok {
			h.deliver(c, ev)
		}
	}
}

func (h *Hub) sendError(c *Client, err *CoreError) {
	h.deliver(c, &Event{Kind: EventError, Error: err})
}

func (h *Hub) roster(room string) []Member {
	ids := h.directory.Members(room)
	roster := make([]Member, 0, len(ids))
	for _, id := range ids {
		roster = append(roster, Member{ID: id, Name: h.registry.Name(id)})
	}
	return roster
}
