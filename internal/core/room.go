package core

// Room is the ordered member set of one room id.
type Room struct {
	Name    string
	members []string
}

// NewRoom constructs a room with no members.
func NewRoom(name string) *Room {
	return &Room{Name: name}
}

// Add appends a member. Returns true if newly added.
func (r *Room) Add(id string) bool {
	if r.Has(id) {
		return false
	}
	r.members = append(r.members, id)
	return true
}

// Remove deletes a member. Returns true if removed.
func (r *Room) Remove(id string) bool {
	for i, member := range r.members {
		if member == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

// Has reports membership.
func (r *Room) Has(id string) bool {
	for _, member := range r.members {
		if member == id {
			return true
		}
	}
	return false
}

// Members returns a copy of the member ids in join order.
func (r *Room) Members() []string {
	out := make([]string, len(r.members))
	copy(out, r.members)
	return out
}

// Len returns the member count.
func (r *Room) Len() int {
	return len(r.members)
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.members) == 0
}
