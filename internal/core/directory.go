package core

// Directory maps room ids to their members. Rooms exist only while they have members.
// It is owned by the hub goroutine and is not safe for concurrent use.
type Directory struct {
	rooms map[string]*Room
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*Room)}
}

// Join adds id to room, creating the room on first use, and returns the members
// as they were before the join.
func (d *Directory) Join(room, id string) []string {
	r, ok := d.rooms[room]
	if !ok {
		r = NewRoom(room)
		d.rooms[room] = r
	}
	before := r.Members()
	r.Add(id)
	return before
}

// Leave removes id from room and returns how many members remain.
// The room entry is dropped once empty.
func (d *Directory) Leave(room, id string) (int, bool) {
	r, ok := d.rooms[room]
	if !ok {
		return 0, false
	}
	removed := r.Remove(id)
	if r.Empty() {
		delete(d.rooms, room)
	}
	return r.Len(), removed
}

// Members returns room members in join order, nil for an unknown room.
func (d *Directory) Members(room string) []string {
	r, ok := d.rooms[room]
	if !ok {
		return nil
	}
	return r.Members()
}

// Len returns the number of non-empty rooms.
func (d *Directory) Len() int {
	return len(d.rooms)
}
