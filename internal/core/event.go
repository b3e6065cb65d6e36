package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventJoined carries the full roster after a join, sent to every member.
	EventJoined EventKind = iota
	// EventLeft carries the remaining roster after a departure.
	EventLeft
	// EventSyncRequest tells a joiner which member its buffer will come from.
	EventSyncRequest
	// EventBufferSync delivers a relayed buffer snapshot to a joiner.
	EventBufferSync
	// EventBufferChange delivers a relayed edit.
	EventBufferChange
	// EventError notifies a client about a rejected command.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventLeft:
		return "left"
	case EventSyncRequest:
		return "sync_request"
	case EventBufferSync:
		return "buffer_sync"
	case EventBufferChange:
		return "buffer_change"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Member is a roster entry derived from the registry and the directory.
type Member struct {
	ID   string
	Name string
}

// Event is sent to clients to describe what happened in the system.
// A single Event value may be shared by every recipient of a broadcast and must be treated as read-only.
type Event struct {
	Kind         EventKind
	Room         string
	ConnectionID string   // joined/left connection
	Name         string   // its display name
	Roster       []Member // for joined/left
	Target       string   // for sync_request
	From         string   // origin of relayed buffer content
	Content      string
	Error        *CoreError
}
