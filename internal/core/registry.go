package core

import "sort"

type connEntry struct {
	client *Client
	name   string
	named  bool
	rooms  map[string]struct{}
}

// Registry maps live connections to their display name and joined rooms.
// It is owned by the hub goroutine and is not safe for concurrent use.
type Registry struct {
	conns map[string]*connEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connEntry)}
}

// Register creates an empty association. Returns false if the id is already taken.
func (r *Registry) Register(c *Client) bool {
	if _, exists := r.conns[c.ID]; exists {
		return false
	}
	r.conns[c.ID] = &connEntry{
		client: c,
		rooms:  make(map[string]struct{}),
	}
	return true
}

// SetName binds a display name once. Rebinding the same name is a no-op,
// a different name is rejected with ErrNameMismatch.
func (r *Registry) SetName(id, name string) error {
	entry, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	if entry.named {
		if entry.name != name {
			return ErrNameMismatch
		}
		return nil
	}
	entry.name = name
	entry.named = true
	return nil
}

// Name returns the bound display name, empty if none yet.
func (r *Registry) Name(id string) string {
	if entry, ok := r.conns[id]; ok {
		return entry.name
	}
	return ""
}

// Client returns the live client for id.
func (r *Registry) Client(id string) (*Client, bool) {
	entry, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return entry.client, true
}

// Registered reports whether the exact client value is the one registered under its id.
func (r *Registry) Registered(c *Client) bool {
	entry, ok := r.conns[c.ID]
	return ok && entry.client == c
}

// InRoom reports whether id has joined room.
func (r *Registry) InRoom(id, room string) bool {
	entry, ok := r.conns[id]
	if !ok {
		return false
	}
	_, in := entry.rooms[room]
	return in
}

// AddRoom records that id joined room.
func (r *Registry) AddRoom(id, room string) {
	if entry, ok := r.conns[id]; ok {
		entry.rooms[room] = struct{}{}
	}
}

// Rooms returns the rooms id has joined, sorted.
func (r *Registry) Rooms(id string) []string {
	entry, ok := r.conns[id]
	if !ok {
		return nil
	}
	return sortedRooms(entry.rooms)
}

// Unregister removes id and returns the rooms it had joined.
func (r *Registry) Unregister(id string) ([]string, bool) {
	entry, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	return sortedRooms(entry.rooms), true
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

func sortedRooms(set map[string]struct{}) []string {
	rooms := make([]string, 0, len(set))
	for room := range set {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}
