package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom enters a room under a display name.
	CommandJoinRoom CommandKind = iota
	// CommandBufferSync answers a sync request of Room for a single target connection.
	CommandBufferSync
	// CommandBufferChange relays a local edit to the rest of the room.
	CommandBufferChange
)

// Command represents an action requested by a client.
// Content is opaque to the core and is never inspected.
type Command struct {
	Kind    CommandKind
	Room    string
	Name    string
	Target  string
	Content string
}
