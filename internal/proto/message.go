package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoin         = "join"
	InboundTypeBufferSync   = "buffer_sync"
	InboundTypeBufferChange = "buffer_change"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventWelcome      = "welcome"
	EventJoined       = "joined"
	EventLeft         = "left"
	EventSyncRequest  = "sync_request"
	EventBufferSync   = "buffer_sync"
	EventBufferChange = "buffer_change"
)

// JoinData requests to join a specific room under a display name.
type JoinData struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

// BufferSyncData answers a sync request on behalf of a joining peer.
type BufferSyncData struct {
	Room    string `json:"room"`
	Target  string `json:"target"`
	Content string `json:"content"`
}

// BufferChangeData carries a local edit for the rest of the room.
type BufferChangeData struct {
	Room    string `json:"room"`
	Content string `json:"content"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// RawOutbound mirrors Outbound on the receiving side, keeping Data undecoded until Event is known.
type RawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *Error          `json:"error"`
}

// Member is one roster entry.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EventWelcomeData tells a fresh connection its server-assigned id.
type EventWelcomeData struct {
	ConnectionID string `json:"connection_id"`
	Protocol     int    `json:"protocol"`
}

// EventJoinedData is broadcast to every member, the joiner included.
type EventJoinedData struct {
	Room         string   `json:"room"`
	Roster       []Member `json:"roster"`
	ConnectionID string   `json:"connection_id"`
	Name         string   `json:"name"`
}

// EventLeftData is broadcast to the members that remain.
type EventLeftData struct {
	Room         string   `json:"room"`
	ConnectionID string   `json:"connection_id"`
	Name         string   `json:"name"`
	Roster       []Member `json:"roster"`
}

// EventSyncRequestData names the member the joiner's buffer will come from.
type EventSyncRequestData struct {
	Room   string `json:"room"`
	Target string `json:"target"`
}

// EventBufferData is used for both relayed syncs and relayed changes.
type EventBufferData struct {
	Room    string `json:"room"`
	From    string `json:"from"`
	Content string `json:"content"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
