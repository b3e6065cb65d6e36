package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wiresync-server/internal/proto"
)

// Two raw peers join a room against a running server: the second must receive the first one's
// buffer, then an edit, then a left event when the first drops.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

type peer struct {
	conn *websocket.Conn
	id   string
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	room := flag.String("room", "smoke", "room id")
	text := flag.String("text", "hello from smoke test", "initial buffer content")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	alice, err := dial(ctx, *addr)
	if err != nil {
		return err
	}
	defer alice.conn.CloseNow()

	if err := send(ctx, alice, proto.InboundTypeJoin, proto.JoinData{Room: *room, Name: "smoke-a"}); err != nil {
		return err
	}
	if _, err := await(ctx, alice, proto.EventJoined); err != nil {
		return err
	}

	bob, err := dial(ctx, *addr)
	if err != nil {
		return err
	}
	defer bob.conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, bob, proto.InboundTypeJoin, proto.JoinData{Room: *room, Name: "smoke-b"}); err != nil {
		return err
	}

	raw, err := await(ctx, alice, proto.EventJoined)
	if err != nil {
		return err
	}
	var joined proto.EventJoinedData
	if err := json.Unmarshal(raw, &joined); err != nil {
		return fmt.Errorf("unmarshal joined: %w", err)
	}
	fmt.Printf("Join: room=%s name=%s roster=%d\n", joined.Room, joined.Name, len(joined.Roster))

	raw, err = await(ctx, bob, proto.EventSyncRequest)
	if err != nil {
		return err
	}
	var req proto.EventSyncRequestData
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("unmarshal sync_request: %w", err)
	}
	if req.Target != alice.id {
		return fmt.Errorf("sync source is %s, want %s", req.Target, alice.id)
	}

	if err := send(ctx, alice, proto.InboundTypeBufferSync, proto.BufferSyncData{Room: *room, Target: bob.id, Content: *text}); err != nil {
		return err
	}
	if err := expectContent(ctx, bob, proto.EventBufferSync, *text); err != nil {
		return err
	}
	fmt.Printf("Sync: %q\n", *text)

	edited := *text + "!"
	if err := send(ctx, bob, proto.InboundTypeBufferChange, proto.BufferChangeData{Room: *room, Content: edited}); err != nil {
		return err
	}
	if err := expectContent(ctx, alice, proto.EventBufferChange, edited); err != nil {
		return err
	}
	fmt.Printf("Change: %q\n", edited)

	alice.conn.CloseNow()
	raw, err = await(ctx, bob, proto.EventLeft)
	if err != nil {
		return err
	}
	var left proto.EventLeftData
	if err := json.Unmarshal(raw, &left); err != nil {
		return fmt.Errorf("unmarshal left: %w", err)
	}
	fmt.Printf("Left: room=%s name=%s roster=%d\n", left.Room, left.Name, len(left.Roster))
	return nil
}

func dial(ctx context.Context, addr string) (*peer, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	p := &peer{conn: conn}

	raw, err := await(ctx, p, proto.EventWelcome)
	if err != nil {
		conn.CloseNow()
		return nil, err
	}
	var welcome proto.EventWelcomeData
	if err := json.Unmarshal(raw, &welcome); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("unmarshal welcome: %w", err)
	}
	p.id = welcome.ConnectionID
	return p, nil
}

func send(ctx context.Context, p *peer, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, p.conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

// await skips events until one named event arrives. Protocol errors abort the run.
func await(ctx context.Context, p *peer, event string) (json.RawMessage, error) {
	for {
		var out proto.RawOutbound
		if err := wsjson.Read(ctx, p.conn, &out); err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", event, err)
		}
		if out.Type == proto.OutboundTypeError && out.Error != nil {
			return nil, fmt.Errorf("server error %s: %s", out.Error.Code, out.Error.Msg)
		}
		if out.Event == event {
			return out.Data, nil
		}
	}
}

func expectContent(ctx context.Context, p *peer, event, want string) error {
	raw, err := await(ctx, p, event)
	if err != nil {
		return err
	}
	var data proto.EventBufferData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("unmarshal %s: %w", event, err)
	}
	if data.Content != want {
		return fmt.Errorf("%s content %q, want %q", event, data.Content, want)
	}
	return nil
}
