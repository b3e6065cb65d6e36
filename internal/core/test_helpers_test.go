package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// expectQuiet fails if ch yields an event of kind within the wait window.
func expectQuiet(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		case <-timer.C:
			return
		}
	}
}

func startHub(t *testing.T, notifier OccupancyNotifier) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(nil, notifier)
	go hub.Run(ctx)
	return hub
}

// joinAs registers a fresh client and joins room, consuming its own joined event.
func joinAs(t *testing.T, hub *Hub, id, name, room string) (*Client, *Event) {
	t.Helper()

	c := NewClient(id, 32)
	if err := hub.RegisterClient(c); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	c.Commands <- &Command{Kind: CommandJoinRoom, Room: room, Name: name}
	ev := mustEvent(t, c.Events, EventJoined)
	if ev.ConnectionID != id {
		t.Fatalf("%s: first joined event is for %s", id, ev.ConnectionID)
	}
	return c, ev
}

func rosterIDs(roster []Member) []string {
	ids := make([]string, 0, len(roster))
	for _, m := range roster {
		ids = append(ids, m.ID)
	}
	return ids
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []roomChange
}

type roomChange struct {
	room    string
	members int
}

func (n *recordingNotifier) RoomChanged(room string, members int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, roomChange{room: room, members: members})
}

func (n *recordingNotifier) snapshot() []roomChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]roomChange, len(n.changes))
	copy(out, n.changes)
	return out
}
