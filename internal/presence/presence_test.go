package presence

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
	"github.com/noxco7/nickname-messenger-backend/internal/ws"
)

type captureFanout struct {
	mu     sync.Mutex
	events map[string][]ws.Event // room -> events
}

func newCaptureFanout() *captureFanout {
	return &captureFanout{events: make(map[string][]ws.Event)}
}

func (f *captureFanout) BroadcastToRoom(room string, ev ws.Event) {
	f.mu.Lock()
	f.events[room] = append(f.events[room], ev)
	f.mu.Unlock()
}

func seed(t *testing.T) (*store.Mem, []string) {
	t.Helper()
	mem := store.NewMem()
	ctx := context.Background()
	if err := mem.CreateUser(ctx, &models.User{ID: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatal(err)
	}
	var rooms []string
	for _, other := range []identity.Canonical{"bob", "carol", "dave"} {
		conv, err := models.NewConversation("alice", other)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := mem.CreateDirect(ctx, conv); err != nil {
			t.Fatal(err)
		}
		rooms = append(rooms, conv.ID)
	}
	return mem, rooms
}

func TestOnlineBroadcastsToEveryConversation(t *testing.T) {
	mem, rooms := seed(t)
	fanout := newCaptureFanout()
	b := New(mem, mem, fanout, zerolog.Nop())

	b.IdentityOnline(context.Background(), "alice")

	for _, room := range rooms {
		evs := fanout.events[room]
		if len(evs) != 1 {
			t.Fatalf("room %s got %d events, want 1", room, len(evs))
		}
		pe, ok := evs[0].Data.(ws.PresenceEvent)
		if !ok {
			t.Fatalf("event data is %T", evs[0].Data)
		}
		if evs[0].Type != ws.EvPresence || pe.Identity != "alice" || !pe.Online {
			t.Errorf("unexpected presence event: %+v", pe)
		}
	}

	u, err := mem.UserByID(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !u.IsOnline || u.LastSeen.IsZero() {
		t.Errorf("presence not persisted: online=%v lastSeen=%v", u.IsOnline, u.LastSeen)
	}
}

func TestOfflinePersistsLastSeen(t *testing.T) {
	mem, rooms := seed(t)
	fanout := newCaptureFanout()
	b := New(mem, mem, fanout, zerolog.Nop())

	b.IdentityOnline(context.Background(), "alice")
	b.IdentityOffline(context.Background(), "alice")

	u, err := mem.UserByID(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if u.IsOnline {
		t.Error("user still flagged online")
	}
	if u.LastSeen.IsZero() {
		t.Error("last seen not recorded")
	}

	evs := fanout.events[rooms[0]]
	if len(evs) != 2 {
		t.Fatalf("room got %d events, want online + offline", len(evs))
	}
	if pe := evs[1].Data.(ws.PresenceEvent); pe.Online {
		t.Error("second event should announce offline")
	}
}

func TestUnknownUserStillBroadcasts(t *testing.T) {
	// Persisting presence for an unknown user fails, but sessions already
	// joined to shared rooms should still hear the transition.
	mem, _ := seed(t)
	conv, err := models.NewConversation("alice", "eve")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mem.CreateDirect(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
	fanout := newCaptureFanout()
	b := New(mem, mem, fanout, zerolog.Nop())

	b.IdentityOnline(context.Background(), "eve")

	if len(fanout.events[conv.ID]) != 1 {
		t.Errorf("shared room got %d events, want 1", len(fanout.events[conv.ID]))
	}
}
