package core

import (
	"context"
	"math/rand"
	"reflect"
	"strconv"
	"testing"
	"time"
)

func TestHubJoinBroadcastAndSyncRequest(t *testing.T) {
	hub := startHub(t, nil)

	alice, aliceJoined := joinAs(t, hub, "a", "Alice", "R1")
	if len(aliceJoined.Roster) != 1 || aliceJoined.Name != "Alice" {
		t.Fatalf("unexpected first joined event: %+v", aliceJoined)
	}
	expectQuiet(t, alice.Events, EventSyncRequest, 50*time.Millisecond)

	bob, bobJoined := joinAs(t, hub, "b", "Bob", "R1")
	if got := rosterIDs(bobJoined.Roster); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected roster for bob: %v", got)
	}

	// Alice sees Bob's join with the same full roster.
	seen := mustEvent(t, alice.Events, EventJoined)
	if seen.ConnectionID != "b" || seen.Name != "Bob" || len(seen.Roster) != 2 {
		t.Fatalf("unexpected joined event for alice: %+v", seen)
	}

	req := mustEvent(t, bob.Events, EventSyncRequest)
	if req.Target != "a" || req.Room != "R1" {
		t.Fatalf("unexpected sync request: %+v", req)
	}
}

func TestHubSyncRelayedOnceFromSource(t *testing.T) {
	hub := startHub(t, nil)

	alice, _ := joinAs(t, hub, "a", "Alice", "R1")
	bob, _ := joinAs(t, hub, "b", "Bob", "R1")
	mustEvent(t, alice.Events, EventJoined)
	mustEvent(t, bob.Events, EventSyncRequest)

	alice.Commands <- &Command{Kind: CommandBufferSync, Room: "R1", Target: "b", Content: "hello\x00\n"}
	ev := mustEvent(t, bob.Events, EventBufferSync)
	if ev.Content != "hello\x00\n" || ev.From != "a" || ev.Room != "R1" {
		t.Fatalf("unexpected buffer sync: %+v", ev)
	}

	alice.Commands <- &Command{Kind: CommandBufferSync, Room: "R1", Target: "b", Content: "again"}
	expectQuiet(t, bob.Events, EventBufferSync, 100*time.Millisecond)
}

func TestHubSyncFromNonSourceDropped(t *testing.T) {
	hub := startHub(t, nil)

	alice, _ := joinAs(t, hub, "a", "Alice", "R1")
	bob, _ := joinAs(t, hub, "b", "Bob", "R1")
	carol, _ := joinAs(t, hub, "c", "Carol", "R1")
	mustEvent(t, carol.Events, EventSyncRequest)

	bob.Commands <- &Command{Kind: CommandBufferSync, Room: "R1", Target: "c", Content: "from bob"}
	expectQuiet(t, carol.Events, EventBufferSync, 100*time.Millisecond)

	alice.Commands <- &Command{Kind: CommandBufferSync, Room: "R1", Target: "c", Content: "from alice"}
	ev := mustEvent(t, carol.Events, EventBufferSync)
	if ev.Content != "from alice" {
		t.Fatalf("unexpected content: %q", ev.Content)
	}
}

func TestHubSyncSourceGoneLeavesJoinerEmpty(t *testing.T) {
	hub := startHub(t, nil)

	alice, _ := joinAs(t, hub, "a", "Alice", "R1")
	bob, _ := joinAs(t, hub, "b", "Bob", "R1")
	mustEvent(t, bob.Events, EventSyncRequest)

	hub.UnregisterClient(alice)
	mustEvent(t, bob.Events, EventLeft)

	// Nothing is pending for bob any more, so any reply addressed to him is dropped.
	carol, _ := joinAs(t, hub, "c", "Carol", "R2")
	carol.Commands <- &Command{Kind: CommandBufferSync, Room: "R1", Target: "b", Content: "stale"}
	expectQuiet(t, bob.Events, EventBufferSync, 100*time.Millisecond)
}

func TestHubSyncKeyedByRoom(t *testing.T) {
	hub := startHub(t, nil)

	alice, _ := joinAs(t, hub, "a", "Alice", "R1")
	xavier, _ := joinAs(t, hub, "x", "Xavier", "R1")
	mustEvent(t, xavier.Events, EventSyncRequest)

	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "R2", Name: "Alice"}
	mustEvent(t, alice.Events, EventJoined)
	xavier.Commands <- &Command{Kind: CommandJoinRoom, Room: "R2", Name: "Xavier"}
	req := mustEvent(t, xavier.Events, EventSyncRequest)
	if req.Room != "R2" || req.Target != "a" {
		t.Fatalf("unexpected sync request: %+v", req)
	}

	alice.Commands <- &Command{Kind: CommandBufferSync, Room: "R1", Target: "x", Content: "r1-content"}
	ev := mustEvent(t, xavier.Events, EventBufferSync)
	if ev.Room != "R1" || ev.Content != "r1-content" {
		t.Fatalf("unexpected R1 sync: %+v", ev)
	}

	alice.Commands <- &Command{Kind: CommandBufferSync, Room: "R2", Target: "x", Content: "r2-content"}
	ev = mustEvent(t, xavier.Events, EventBufferSync)
	if ev.Room != "R2" || ev.Content != "r2-content" {
		t.Fatalf("unexpected R2 sync: %+v", ev)
	}

	// Both rooms are served now.
	alice.Commands <- &Command{Kind: CommandBufferSync, Room: "R1", Target: "x", Content: "late"}
	expectQuiet(t, xavier.Events, EventBufferSync, 100*time.Millisecond)
}

func TestHubSyncForUnknownRoomDropped(t *testing.T) {
	hub := startHub(t, nil)

	alice, _ := joinAs(t, hub, "a", "Alice", "R1")
	bob, _ := joinAs(t, hub, "b", "Bob", "R1")
	mustEvent(t, bob.Events, EventSyncRequest)

	alice.Commands <- &Command{Kind: CommandBufferSync, Room: "R9", Target: "b", Content: "wrong room"}
	expectQuiet(t, bob.Events, EventBufferSync, 100*time.Millisecond)

	alice.Commands <- &Command{Kind: CommandBufferSync, Room: "R1", Target: "b", Content: "right room"}
	if ev := mustEvent(t, bob.Events, EventBufferSync); ev.Content != "right room" {
		t.Fatalf("unexpected content: %q", ev.Content)
	}
}

func TestHubJoinAfterDisconnectIsDropped(t *testing.T) {
	hub := startHub(t, nil)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		c := NewClient("c"+strconv.Itoa(i), 4)
		if err := hub.RegisterClient(c); err != nil {
			t.Fatalf("register: %v", err)
		}
		// The join may reach the hub before or after the unregister.
		c.Commands <- &Command{Kind: CommandJoinRoom, Room: "R", Name: "Ghost"}
		hub.UnregisterClient(c)

		stats, err := hub.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats != (Stats{}) {
			t.Fatalf("iteration %d: state left behind: %+v", i, stats)
		}
		roster, err := hub.Roster(ctx, "R")
		if err != nil {
			t.Fatalf("roster: %v", err)
		}
		if len(roster) != 0 {
			t.Fatalf("iteration %d: roster not empty: %+v", i, roster)
		}
	}
}

func TestHubDisconnectBroadcastsLeft(t *testing.T) {
	hub := startHub(t, nil)

	alice, _ := joinAs(t, hub, "a", "Alice", "R1")
	bob, _ := joinAs(t, hub, "b", "Bob", "R1")
	mustEvent(t, alice.Events, EventJoined)

	hub.UnregisterClient(alice)

	left := mustEvent(t, bob.Events, EventLeft)
	if left.ConnectionID != "a" || left.Name != "Alice" || left.Room != "R1" {
		t.Fatalf("unexpected left event: %+v", left)
	}
	if got := rosterIDs(left.Roster); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("unexpected roster after leave: %v", got)
	}

	// Alice's queue is closed: nothing more is ever delivered to her.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-alice.Events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("alice event channel not closed")
		}
	}
}

func TestHubDisconnectFromEveryRoom(t *testing.T) {
	hub := startHub(t, nil)

	alice, _ := joinAs(t, hub, "a", "Alice", "R1")
	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "R2", Name: "Alice"}
	mustEvent(t, alice.Events, EventJoined)

	bob, _ := joinAs(t, hub, "b", "Bob", "R1")
	carol, _ := joinAs(t, hub, "c", "Carol", "R2")

	hub.UnregisterClient(alice)

	if ev := mustEvent(t, bob.Events, EventLeft); ev.Room != "R1" {
		t.Fatalf("bob got left for %s", ev.Room)
	}
	if ev := mustEvent(t, carol.Events, EventLeft); ev.Room != "R2" {
		t.Fatalf("carol got left for %s", ev.Room)
	}
	expectQuiet(t, bob.Events, EventLeft, 50*time.Millisecond)
}

func TestHubBufferChangeExcludesOrigin(t *testing.T) {
	hub := startHub(t, nil)

	alice, _ := joinAs(t, hub, "a", "Alice", "R1")
	bob, _ := joinAs(t, hub, "b", "Bob", "R1")
	carol, _ := joinAs(t, hub, "c", "Carol", "R1")

	bob.Commands <- &Command{Kind: CommandBufferChange, Room: "R1", Content: "v1"}
	bob.Commands <- &Command{Kind: CommandBufferChange, Room: "R1", Content: "v2"}

	for _, c := range []*Client{alice, carol} {
		first := mustEvent(t, c.Events, EventBufferChange)
		second := mustEvent(t, c.Events, EventBufferChange)
		if first.Content != "v1" || second.Content != "v2" || first.From != "b" {
			t.Fatalf("%s: out of order or wrong origin: %+v %+v", c.ID, first, second)
		}
	}
	expectQuiet(t, bob.Events, EventBufferChange, 50*time.Millisecond)
}

func TestHubBufferChangeWithoutJoinProducesError(t *testing.T) {
	hub := startHub(t, nil)

	alice := NewClient("a", 8)
	if err := hub.RegisterClient(alice); err != nil {
		t.Fatal(err)
	}
	alice.Commands <- &Command{Kind: CommandBufferChange, Room: "R1", Content: "x"}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotInRoom {
		t.Fatalf("expected not_in_room error, got %+v", ev)
	}
}

func TestHubJoinValidation(t *testing.T) {
	hub := startHub(t, nil)

	alice := NewClient("a", 8)
	if err := hub.RegisterClient(alice); err != nil {
		t.Fatal(err)
	}

	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "R1", Name: "  "}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeBadRequest {
		t.Fatalf("expected bad_request error, got %+v", ev)
	}

	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "R1", Name: "Alice"}
	mustEvent(t, alice.Events, EventJoined)

	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "R1", Name: "Alice"}
	ev = mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeAlreadyJoined {
		t.Fatalf("expected already_joined error, got %+v", ev)
	}

	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "R2", Name: "Alicia"}
	ev = mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNameMismatch {
		t.Fatalf("expected name_mismatch error, got %+v", ev)
	}
}

func TestHubDuplicateNamesAllowed(t *testing.T) {
	hub := startHub(t, nil)

	_, _ = joinAs(t, hub, "a", "Sam", "R1")
	_, ev := joinAs(t, hub, "b", "Sam", "R1")
	if len(ev.Roster) != 2 || ev.Roster[0].Name != "Sam" || ev.Roster[1].Name != "Sam" {
		t.Fatalf("unexpected roster: %+v", ev.Roster)
	}
}

func TestHubEmptyRoomStartsFresh(t *testing.T) {
	hub := startHub(t, nil)

	alice, _ := joinAs(t, hub, "a", "Alice", "R1")
	hub.UnregisterClient(alice)

	stats, err := hub.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Rooms != 0 || stats.Connections != 0 {
		t.Fatalf("expected empty hub, got %+v", stats)
	}

	bob, ev := joinAs(t, hub, "b", "Bob", "R1")
	if got := rosterIDs(ev.Roster); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("unexpected roster: %v", got)
	}
	expectQuiet(t, bob.Events, EventSyncRequest, 50*time.Millisecond)
}

func TestHubRosterQuery(t *testing.T) {
	hub := startHub(t, nil)

	joinAs(t, hub, "a", "Alice", "R1")
	joinAs(t, hub, "b", "Bob", "R1")

	roster, err := hub.Roster(context.Background(), "R1")
	if err != nil {
		t.Fatal(err)
	}
	want := []Member{{ID: "a", Name: "Alice"}, {ID: "b", Name: "Bob"}}
	if !reflect.DeepEqual(roster, want) {
		t.Fatalf("roster = %+v, want %+v", roster, want)
	}

	empty, err := hub.Roster(context.Background(), "nobody")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty roster, got %+v, %v", empty, err)
	}
}

func TestHubEvictsSlowConsumer(t *testing.T) {
	hub := startHub(t, nil)

	slow := NewClient("slow", 1)
	if err := hub.RegisterClient(slow); err != nil {
		t.Fatal(err)
	}
	slow.Commands <- &Command{Kind: CommandJoinRoom, Room: "R1", Name: "Slow"}
	joinAs(t, hub, "b", "Bob", "R1")

	select {
	case <-slow.Evicted():
	case <-time.After(2 * time.Second):
		t.Fatal("slow consumer was not evicted")
	}
}

func TestHubNotifiesOccupancy(t *testing.T) {
	notifier := &recordingNotifier{}
	hub := startHub(t, notifier)

	alice, _ := joinAs(t, hub, "a", "Alice", "R1")
	joinAs(t, hub, "b", "Bob", "R1")
	hub.UnregisterClient(alice)

	if _, err := hub.Stats(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []roomChange{{"R1", 1}, {"R1", 2}, {"R1", 1}}
	if got := notifier.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("changes = %+v, want %+v", got, want)
	}
}

func TestHubStoppedRejectsRegistration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if err := hub.RegisterClient(NewClient("a", 1)); err != ErrHubStopped {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
	if _, err := hub.Stats(context.Background()); err != ErrHubStopped {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
}

// Rosters carried by joined/left events always match the modelled membership.
func TestHubRosterMatchesMembership(t *testing.T) {
	hub := startHub(t, nil)
	rng := rand.New(rand.NewSource(7))

	var members []*Client
	next := 0
	for step := 0; step < 60; step++ {
		if len(members) == 0 || rng.Intn(3) > 0 {
			id := "c" + strconv.Itoa(next)
			next++
			c, ev := joinAs(t, hub, id, "user-"+id, "R")
			want := append(idsOf(members), id)
			if got := rosterIDs(ev.Roster); !reflect.DeepEqual(got, want) {
				t.Fatalf("step %d: joiner roster %v, want %v", step, got, want)
			}
			for _, m := range members {
				seen := mustEvent(t, m.Events, EventJoined)
				if got := rosterIDs(seen.Roster); !reflect.DeepEqual(got, want) {
					t.Fatalf("step %d: %s saw roster %v, want %v", step, m.ID, got, want)
				}
			}
			members = append(members, c)
			continue
		}

		i := rng.Intn(len(members))
		gone := members[i]
		members = append(members[:i:i], members[i+1:]...)
		hub.UnregisterClient(gone)
		want := idsOf(members)
		for _, m := range members {
			left := mustEvent(t, m.Events, EventLeft)
			if left.ConnectionID != gone.ID {
				t.Fatalf("step %d: %s saw left for %s, want %s", step, m.ID, left.ConnectionID, gone.ID)
			}
			if got := rosterIDs(left.Roster); !reflect.DeepEqual(got, want) {
				t.Fatalf("step %d: %s saw roster %v, want %v", step, m.ID, got, want)
			}
		}
	}
}

func idsOf(clients []*Client) []string {
	ids := make([]string, 0, len(clients))
	for _, c := range clients {
		ids = append(ids, c.ID)
	}
	return ids
}
