package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wiresync-server/internal/proto"
)

func (c *Controller) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out proto.RawOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			c.fail(conn, err)
			return
		}

		if out.Type == proto.OutboundTypeError {
			if out.Error != nil {
				c.log.Warn().Str("code", out.Error.Code).Str("msg", out.Error.Msg).Msg("server rejected message")
			}
			continue
		}

		if err := c.dispatch(ctx, conn, out); err != nil {
			c.log.Warn().Err(err).Str("event", out.Event).Msg("failed to handle event")
		}
	}
}

// fail reports a transport error unless this connection was already torn down by Leave.
func (c *Controller) fail(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if !c.active || c.conn != conn {
		c.mu.Unlock()
		return
	}
	onDisconnect := c.h.disconnect
	c.mu.Unlock()

	c.log.Debug().Err(err).Msg("connection lost")
	c.teardown(websocket.StatusGoingAway, "")

	if onDisconnect != nil {
		onDisconnect(err)
	}
}

func (c *Controller) dispatch(ctx context.Context, conn *websocket.Conn, out proto.RawOutbound) error {
	switch out.Event {
	case proto.EventJoined:
		var data proto.EventJoinedData
		if err := json.Unmarshal(out.Data, &data); err != nil {
			return err
		}
		return c.handleJoined(ctx, conn, data)

	case proto.EventLeft:
		var data proto.EventLeftData
		if err := json.Unmarshal(out.Data, &data); err != nil {
			return err
		}
		c.handleLeft(conn, data)

	case proto.EventSyncRequest:
		var data proto.EventSyncRequestData
		if err := json.Unmarshal(out.Data, &data); err != nil {
			return err
		}
		c.mu.Lock()
		if c.conn == conn && data.Room == c.room {
			c.syncFrom = data.Target
		}
		c.mu.Unlock()

	case proto.EventBufferSync:
		var data proto.EventBufferData
		if err := json.Unmarshal(out.Data, &data); err != nil {
			return err
		}
		c.handleBufferSync(conn, data)

	case proto.EventBufferChange:
		var data proto.EventBufferData
		if err := json.Unmarshal(out.Data, &data); err != nil {
			return err
		}
		c.handleBufferChange(conn, data)

	default:
		return errors.New("unknown event")
	}
	return nil
}

func (c *Controller) handleJoined(ctx context.Context, conn *websocket.Conn, data proto.EventJoinedData) error {
	c.mu.Lock()
	if !c.active || c.conn != conn || data.Room != c.room {
		c.mu.Unlock()
		return nil
	}
	c.roster = data.Roster
	change := RosterChange{Room: data.Room, Roster: copyMembers(data.Roster)}
	if data.Name != c.name {
		change.Notice = &Notice{Kind: NoticeJoined, ConnectionID: data.ConnectionID, Name: data.Name}
	}
	onRoster := c.h.roster
	reply := data.ConnectionID != c.self
	content := c.buffer
	c.mu.Unlock()

	if onRoster != nil {
		onRoster(change)
	}

	// Every member answers; the server forwards only the designated source's first reply.
	if reply {
		return c.write(ctx, conn, proto.InboundTypeBufferSync, proto.BufferSyncData{Room: data.Room, Target: data.ConnectionID, Content: content})
	}
	return nil
}

func (c *Controller) handleLeft(conn *websocket.Conn, data proto.EventLeftData) {
	c.mu.Lock()
	if !c.active || c.conn != conn || data.Room != c.room {
		c.mu.Unlock()
		return
	}
	c.roster = data.Roster
	if c.syncFrom == data.ConnectionID {
		c.syncFrom = ""
	}
	change := RosterChange{
		Room:   data.Room,
		Roster: copyMembers(data.Roster),
		Notice: &Notice{Kind: NoticeLeft, ConnectionID: data.ConnectionID, Name: data.Name},
	}
	onRoster := c.h.roster
	c.mu.Unlock()

	if onRoster != nil {
		onRoster(change)
	}
}

func (c *Controller) handleBufferSync(conn *websocket.Conn, data proto.EventBufferData) {
	c.mu.Lock()
	if !c.active || c.conn != conn || data.Room != c.room || c.syncFrom == "" || data.From != c.syncFrom {
		c.mu.Unlock()
		return
	}
	c.syncFrom = ""
	c.buffer = data.Content
	onSync := c.h.bufferSync
	c.mu.Unlock()

	if onSync != nil {
		onSync(data.Content)
	}
}

func (c *Controller) handleBufferChange(conn *websocket.Conn, data proto.EventBufferData) {
	c.mu.Lock()
	if !c.active || c.conn != conn || data.Room != c.room {
		c.mu.Unlock()
		return
	}
	c.buffer = data.Content
	onChange := c.h.bufferChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(data.From, data.Content)
	}
}

func copyMembers(in []proto.Member) []proto.Member {
	out := make([]proto.Member, len(in))
	copy(out, in)
	return out
}
