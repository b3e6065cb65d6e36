package http

import (
	"encoding/json"
	"strings"

	"github.com/vovakirdan/wiresync-server/internal/core"
	"github.com/vovakirdan/wiresync-server/internal/proto"
)

const (
	errCodeInvalidMessage = "invalid_message"
	errCodeRateLimited    = "rate_limited"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: "malformed join payload"}
		}
		room := strings.TrimSpace(join.Room)
		name := strings.TrimSpace(join.Name)
		if room == "" || name == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room and name are required"}
		}
		return &core.Command{
			Kind: core.CommandJoinRoom,
			Room: room,
			Name: name,
		}, nil
	case proto.InboundTypeBufferSync:
		var sync proto.BufferSyncData
		if err := json.Unmarshal(inbound.Data, &sync); err != nil {
			return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: "malformed buffer_sync payload"}
		}
		room := strings.TrimSpace(sync.Room)
		if room == "" || sync.Target == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room and target are required"}
		}
		return &core.Command{
			Kind:    core.CommandBufferSync,
			Room:    room,
			Target:  sync.Target,
			Content: sync.Content,
		}, nil
	case proto.InboundTypeBufferChange:
		var change proto.BufferChangeData
		if err := json.Unmarshal(inbound.Data, &change); err != nil {
			return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: "malformed buffer_change payload"}
		}
		room := strings.TrimSpace(change.Room)
		if room == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}
		}
		return &core.Command{
			Kind:    core.CommandBufferChange,
			Room:    room,
			Content: change.Content,
		}, nil
	default:
		return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func welcomeOutbound(connectionID string) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventWelcome,
		Data: proto.EventWelcomeData{
			ConnectionID: connectionID,
			Protocol:     proto.ProtocolVersion,
		},
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventJoined,
			Data: proto.EventJoinedData{
				Room:         event.Room,
				Roster:       membersToProto(event.Roster),
				ConnectionID: event.ConnectionID,
				Name:         event.Name,
			},
		}
	case core.EventLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventLeft,
			Data: proto.EventLeftData{
				Room:         event.Room,
				ConnectionID: event.ConnectionID,
				Name:         event.Name,
				Roster:       membersToProto(event.Roster),
			},
		}
	case core.EventSyncRequest:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventSyncRequest,
			Data: proto.EventSyncRequestData{
				Room:   event.Room,
				Target: event.Target,
			},
		}
	case core.EventBufferSync, core.EventBufferChange:
		name := proto.EventBufferSync
		if event.Kind == core.EventBufferChange {
			name = proto.EventBufferChange
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data: proto.EventBufferData{
				Room:    event.Room,
				From:    event.From,
				Content: event.Content,
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func membersToProto(members []core.Member) []proto.Member {
	out := make([]proto.Member, 0, len(members))
	for _, m := range members {
		out = append(out, proto.Member{ID: m.ID, Name: m.Name})
	}
	return out
}
