package core

import (
	"errors"
	"strings"
)

func (h *Hub) handleJoin(c *Client, cmd *Command) {
	room := strings.TrimSpace(cmd.Room)
	name := strings.TrimSpace(cmd.Name)
	if room == "" || name == "" {
		h.sendError(c, coreError(ErrCodeBadRequest, "room and name are required"))
		return
	}
	if h.registry.InRoom(c.ID, room) {
		h.sendError(c, coreError(ErrCodeAlreadyJoined, "already joined "+room))
		return
	}
	if err := h.registry.SetName(c.ID, name); err != nil {
		if errors.Is(err, ErrNameMismatch) {
			h.sendError(c, coreError(ErrCodeNameMismatch, "connection is already named "+h.registry.Name(c.ID)))
			return
		}
		h.log.Error().Err(err).Str("client_id", c.ID).Msg("bind display name")
		return
	}

	before := h.directory.Join(room, c.ID)
	h.registry.AddRoom(c.ID, room)

	roster := h.roster(room)
	h.broadcast(room, &Event{
		Kind:         EventJoined,
		Room:         room,
		ConnectionID: c.ID,
		Name:         name,
		Roster:       roster,
	}, "")

	// The longest-present member supplies the joiner's buffer.
	if len(before) > 0 {
		source := before[0]
		h.pending[syncKey{room: room, joiner: c.ID, source: source}] = struct{}{}
		h.deliver(c, &Event{Kind: EventSyncRequest, Room: room, Target: source})
	}

	h.log.Info().Str("client_id", c.ID).Str("room", room).Str("name", name).Int("members", len(roster)).Msg("joined room")
	h.notifier.RoomChanged(room, len(roster))
}

// handleDisconnect removes c from every room it joined and tells the remaining members.
func (h *Hub) handleDisconnect(c *Client) {
	if !h.registry.Registered(c) {
		return
	}
	name := h.registry.Name(c.ID)
	rooms, _ := h.registry.Unregister(c.ID)

	for key := range h.pending {
		if key.joiner == c.ID || key.source == c.ID {
			delete(h.pending, key)
		}
	}

	for _, room := range rooms {
		remaining, _ := h.directory.Leave(room, c.ID)
		if remaining > 0 {
			h.broadcast(room, &Event{
				Kind:         EventLeft,
				Room:         room,
				ConnectionID: c.ID,
				Name:         name,
				Roster:       h.roster(room),
			}, "")
		}
		h.log.Info().Str("client_id", c.ID).Str("room", room).Int("members", remaining).Msg("left room")
		h.notifier.RoomChanged(room, remaining)
	}

	close(c.closed)
	close(c.Events)
	h.log.Debug().Str("client_id", c.ID).Msg("client unregistered")
}
