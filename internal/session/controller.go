// Package session is the participant side of the room protocol: one websocket per room visit,
// a local roster, and the last known buffer content.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiresync-server/internal/proto"
)

var (
	// ErrInvalidJoin is returned before any network call when room or name is blank.
	ErrInvalidJoin = errors.New("room id and user name are required")
	// ErrConnect wraps transport failures while establishing the session.
	ErrConnect = errors.New("connection failed")
	// ErrActive is returned by Join while a previous visit is still open.
	ErrActive = errors.New("session already active")
	// ErrNotActive is returned by operations that need a joined session.
	ErrNotActive = errors.New("session not active")
)

// NoticeKind tells the UI which toast to show.
type NoticeKind int

const (
	NoticeJoined NoticeKind = iota + 1
	NoticeLeft
)

// Notice is a user-visible membership message.
type Notice struct {
	Kind         NoticeKind
	ConnectionID string
	Name         string
}

func (n Notice) String() string {
	switch n.Kind {
	case NoticeJoined:
		return n.Name + " joined the room"
	case NoticeLeft:
		return n.Name + " left the room"
	default:
		return ""
	}
}

// RosterChange is delivered on every joined/left event.
// Notice is nil when the change is this participant's own join.
type RosterChange struct {
	Room   string
	Roster []proto.Member
	Notice *Notice
}

type handlers struct {
	roster       func(RosterChange)
	bufferSync   func(content string)
	bufferChange func(from, content string)
	disconnect   func(err error)
}

// Controller owns one connection per room visit.
// Handlers run on the controller's read goroutine and must not block for long.
type Controller struct {
	url      string
	dialOpts *websocket.DialOptions
	log      *zerolog.Logger

	mu       sync.Mutex
	h        handlers
	active   bool
	conn     *websocket.Conn
	cancel   context.CancelFunc
	self     string
	room     string
	name     string
	roster   []proto.Member
	buffer   string
	syncFrom string
}

// New returns a controller that will dial url (e.g. ws://localhost:8080/ws).
func New(url string, logger *zerolog.Logger) *Controller {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Controller{url: url, log: logger}
}

// OnRosterChange installs the roster handler.
func (c *Controller) OnRosterChange(fn func(RosterChange)) {
	c.mu.Lock()
	c.h.roster = fn
	c.mu.Unlock()
}

// OnBufferSync installs the handler for the one-time snapshot received after joining.
func (c *Controller) OnBufferSync(fn func(content string)) {
	c.mu.Lock()
	c.h.bufferSync = fn
	c.mu.Unlock()
}

// OnBufferChange installs the handler for edits relayed from other members.
func (c *Controller) OnBufferChange(fn func(from, content string)) {
	c.mu.Lock()
	c.h.bufferChange = fn
	c.mu.Unlock()
}

// OnDisconnect installs the handler called once when the transport fails after a successful Join.
// The session is already torn down when it runs.
func (c *Controller) OnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.h.disconnect = fn
	c.mu.Unlock()
}

// Join opens the connection and enters room as name.
// Any failure tears the session down, handlers included, before returning.
func (c *Controller) Join(ctx context.Context, room, name string) error {
	room = strings.TrimSpace(room)
	name = strings.TrimSpace(name)
	if room == "" || name == "" {
		return ErrInvalidJoin
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrActive
	}
	c.active = true
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.url, c.dialOpts)
	if err != nil {
		c.teardown(websocket.StatusNormalClosure, "")
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	var welcome proto.EventWelcomeData
	if err := readWelcome(ctx, conn, &welcome); err != nil {
		conn.CloseNow()
		c.teardown(websocket.StatusNormalClosure, "")
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if !c.active {
		// Leave ran while we were dialing.
		c.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "left")
		return ErrNotActive
	}
	c.conn = conn
	c.cancel = cancel
	c.self = welcome.ConnectionID
	c.room = room
	c.name = name
	c.roster = nil
	c.buffer = ""
	c.syncFrom = ""
	c.mu.Unlock()

	if err := c.write(ctx, conn, proto.InboundTypeJoin, proto.JoinData{Room: room, Name: name}); err != nil {
		c.teardown(websocket.StatusNormalClosure, "")
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	go c.readLoop(sessionCtx, conn)

	c.log.Debug().Str("room", room).Str("connection_id", welcome.ConnectionID).Msg("joined")
	return nil
}

// Leave removes every handler and closes the connection. It is safe to call more than once
// and from inside a handler. A handler already running may finish; none starts afterwards.
func (c *Controller) Leave() {
	c.teardown(websocket.StatusNormalClosure, "left")
}

// Edit replaces the local buffer and broadcasts it to the rest of the room.
func (c *Controller) Edit(ctx context.Context, content string) error {
	c.mu.Lock()
	if !c.active || c.conn == nil {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.buffer = content
	conn, room := c.conn, c.room
	c.mu.Unlock()

	return c.write(ctx, conn, proto.InboundTypeBufferChange, proto.BufferChangeData{Room: room, Content: content})
}

// Buffer returns the last known buffer content.
func (c *Controller) Buffer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer
}

// Roster returns a copy of the current roster.
func (c *Controller) Roster() []proto.Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]proto.Member, len(c.roster))
	copy(out, c.roster)
	return out
}

// ConnectionID is the server-assigned id of the current visit.
func (c *Controller) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// Active reports whether a visit is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) teardown(status websocket.StatusCode, reason string) {
	c.mu.Lock()
	c.active = false
	c.h = handlers{}
	conn, cancel := c.conn, c.cancel
	c.conn = nil
	c.cancel = nil
	c.syncFrom = ""
	c.mu.Unlock()

	if conn != nil {
		conn.Close(status, reason)
	}
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) write(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	return wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload})
}

func readWelcome(ctx context.Context, conn *websocket.Conn, welcome *proto.EventWelcomeData) error {
	var out proto.RawOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		return err
	}
	if out.Event != proto.EventWelcome {
		return fmt.Errorf("expected welcome, got %q", out.Event)
	}
	return json.Unmarshal(out.Data, welcome)
}
