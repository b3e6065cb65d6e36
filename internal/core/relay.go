package core

// requestSync forwards content of room from one connection to the joiner that is waiting on it.
// Only the designated source is relayed, once per room; other answers are dropped.
func (h *Hub) requestSync(from *Client, room, target, content string) {
	key := syncKey{room: room, joiner: target, source: from.ID}
	if _, ok := h.pending[key]; !ok {
		h.log.Debug().Str("client_id", from.ID).Str("room", room).Str("target", target).Msg("dropping unrequested buffer sync")
		return
	}
	delete(h.pending, key)

	to, ok := h.registry.Client(target)
	if !ok {
		return
	}
	h.deliver(to, &Event{
		Kind:    EventBufferSync,
		Room:    room,
		From:    from.ID,
		Content: content,
	})
}

// broadcastChange relays content to every other member of room.
func (h *Hub) broadcastChange(origin *Client, room, content string) {
	if !h.registry.InRoom(origin.ID, room) {
		h.sendError(origin, coreError(ErrCodeNotInRoom, "not in room "+room))
		return
	}
	h.broadcast(room, &Event{
		Kind:    EventBufferChange,
		Room:    room,
		From:    origin.ID,
		Content: content,
	}, origin.ID)
}
