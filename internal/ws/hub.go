// Package ws is the session registry: it tracks live connections, their
// verified identities and the conversation rooms each connection joined,
// and fans events out to them.
package ws

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/noxco7/nickname-messenger-backend/internal/access"
	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
)

// AuthFailure is the reason an authentication handshake was rejected.
type AuthFailure string

const (
	FailNone              AuthFailure = ""
	FailNoCredential      AuthFailure = "no_credential"
	FailInvalidCredential AuthFailure = "invalid_credential"
	FailIdentityNotFound  AuthFailure = "identity_not_found"
	// FailUnavailable means the verifier or its storage is down, not that
	// the credential is bad. Clients may retry the handshake.
	FailUnavailable AuthFailure = "temporarily_unavailable"
)

// PresenceNotifier gets told when an identity gains its first or loses its
// last live session.
type PresenceNotifier interface {
	IdentityOnline(ctx context.Context, id identity.Canonical)
	IdentityOffline(ctx context.Context, id identity.Canonical)
}

// Membership state is split across fixed shards, each with its own lock, so
// unrelated rooms and identities never contend. Locks guard map mutation
// only and are never held across store, verifier or gateway calls.
const shardCount = 32

type roomShard struct {
	mu      sync.RWMutex
	members map[string]map[*Client]struct{}
}

type identShard struct {
	mu       sync.RWMutex
	sessions map[identity.Canonical]map[*Client]struct{}
}

type Hub struct {
	verifier      identity.Verifier
	conversations store.Conversations
	logger        zerolog.Logger

	rooms  [shardCount]roomShard
	idents [shardCount]identShard

	mu       sync.RWMutex
	notifier PresenceNotifier
	publish  func(room string, ev Event)
}

func NewHub(verifier identity.Verifier, conversations store.Conversations, logger zerolog.Logger) *Hub {
	h := &Hub{
		verifier:      verifier,
		conversations: conversations,
		logger:        logger.With().Str("component", "hub").Logger(),
	}
	for i := range h.rooms {
		h.rooms[i].members = make(map[string]map[*Client]struct{})
	}
	for i := range h.idents {
		h.idents[i].sessions = make(map[identity.Canonical]map[*Client]struct{})
	}
	return h
}

// SetPresenceNotifier wires the presence broadcaster in after construction;
// the broadcaster itself fans out through this hub.
func (h *Hub) SetPresenceNotifier(n PresenceNotifier) {
	h.mu.Lock()
	h.notifier = n
	h.mu.Unlock()
}

// SetPublisher installs the cross-instance re-broadcast hook.
func (h *Hub) SetPublisher(fn func(room string, ev Event)) {
	h.mu.Lock()
	h.publish = fn
	h.mu.Unlock()
}

func shardIndex(key string) int {
	f := fnv.New32a()
	f.Write([]byte(key))
	return int(f.Sum32() % shardCount)
}

func (h *Hub) roomShard(room string) *roomShard {
	return &h.rooms[shardIndex(room)]
}

func (h *Hub) identShard(id identity.Canonical) *identShard {
	return &h.idents[shardIndex(string(id))]
}

// AddConnection registers a fresh, unauthenticated connection and starts
// its write and keep-alive loops.
func (h *Hub) AddConnection(conn *websocket.Conn) *Client {
	c := newClient(conn)
	go c.writeLoop()
	go c.keepAliveLoop()
	return c
}

// Authenticate runs the handshake for c. The returned failure reason is
// FailNone on success; err is set only for infrastructure trouble.
func (h *Hub) Authenticate(ctx context.Context, c *Client, credential string) (identity.Identity, AuthFailure, error) {
	if id, ok := c.Identity(); ok {
		return identity.Identity{ID: id, DisplayName: c.DisplayName()}, FailNone, nil
	}
	if credential == "" {
		return identity.Identity{}, FailNoCredential, nil
	}

	ident, err := h.verifier.Verify(ctx, credential)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrIdentityNotFound):
			return identity.Identity{}, FailIdentityNotFound, nil
		case errors.Is(err, identity.ErrMalformed),
			errors.Is(err, identity.ErrInvalid),
			errors.Is(err, identity.ErrExpired):
			return identity.Identity{}, FailInvalidCredential, nil
		default:
			return identity.Identity{}, FailUnavailable, err
		}
	}

	c.bind(ident)

	shard := h.identShard(ident.ID)
	shard.mu.Lock()
	set := shard.sessions[ident.ID]
	if set == nil {
		set = make(map[*Client]struct{})
		shard.sessions[ident.ID] = set
	}
	set[c] = struct{}{}
	first := len(set) == 1
	shard.mu.Unlock()

	if first {
		if n := h.presenceNotifier(); n != nil {
			n.IdentityOnline(ctx, ident.ID)
		}
	}

	h.logger.Debug().Str("identity", string(ident.ID)).Str("connection", c.ID).Msg("session authenticated")
	return ident, FailNone, nil
}

// JoinRoom adds the connection to a conversation's fan-out set. It requires
// prior authentication and runs the same membership check submit uses.
func (h *Hub) JoinRoom(ctx context.Context, c *Client, conversationID string) error {
	ident, ok := c.Identity()
	if !ok {
		return apperr.New(apperr.KindAccessDenied, "access denied")
	}
	if _, err := access.ConversationFor(ctx, h.conversations, conversationID, ident, false); err != nil {
		return err
	}

	shard := h.roomShard(conversationID)
	shard.mu.Lock()
	set := shard.members[conversationID]
	if set == nil {
		set = make(map[*Client]struct{})
		shard.members[conversationID] = set
	}
	set[c] = struct{}{}
	shard.mu.Unlock()

	c.addRoom(conversationID)
	return nil
}

func (h *Hub) LeaveRoom(c *Client, conversationID string) {
	shard := h.roomShard(conversationID)
	shard.mu.Lock()
	if set, ok := shard.members[conversationID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(shard.members, conversationID)
		}
	}
	shard.mu.Unlock()

	c.removeRoom(conversationID)
}

// Disconnect tears a connection down: every room membership goes, and the
// identity flips offline when this was its last session. Safe to call more
// than once.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	c.closeOnce.Do(func() {
		c.cancel()

		for _, room := range c.roomSnapshot() {
			h.LeaveRoom(c, room)
		}

		ident, authed := c.Identity()
		last := false
		if authed {
			shard := h.identShard(ident)
			shard.mu.Lock()
			if set, ok := shard.sessions[ident]; ok {
				delete(set, c)
				if len(set) == 0 {
					delete(shard.sessions, ident)
					last = true
				}
			}
			shard.mu.Unlock()
		}

		if c.conn != nil {
			_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
		}

		if last {
			if n := h.presenceNotifier(); n != nil {
				n.IdentityOffline(ctx, ident)
			}
			h.logger.Debug().Str("identity", string(ident)).Msg("last session closed")
		}
	})
}

// BroadcastToRoom fans an event out to every connection joined to the room,
// locally and (when bridged) on the other instances.
func (h *Hub) BroadcastToRoom(room string, ev Event) {
	h.broadcastLocal(room, nil, ev)
	if fn := h.publisher(); fn != nil {
		fn(room, ev)
	}
}

// BroadcastToRoomExcept skips one connection, typically the one that caused
// the event.
func (h *Hub) BroadcastToRoomExcept(room string, except *Client, ev Event) {
	h.broadcastLocal(room, except, ev)
	if fn := h.publisher(); fn != nil {
		fn(room, ev)
	}
}

func (h *Hub) broadcastLocal(room string, except *Client, ev Event) {
	shard := h.roomShard(room)
	shard.mu.RLock()
	targets := make([]*Client, 0, len(shard.members[room]))
	for c := range shard.members[room] {
		if c != except {
			targets = append(targets, c)
		}
	}
	shard.mu.RUnlock()

	for _, c := range targets {
		if !c.Enqueue(ev) {
			h.logger.Warn().Str("connection", c.ID).Str("event", ev.Type).Msg("send buffer full, event dropped")
		}
	}
}

// IsOnline reports whether the identity has at least one live session on
// this instance.
func (h *Hub) IsOnline(id identity.Canonical) bool {
	shard := h.identShard(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.sessions[id]) > 0
}

// RoomSize reports the number of connections joined to a room.
func (h *Hub) RoomSize(room string) int {
	shard := h.roomShard(room)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.members[room])
}

func (h *Hub) presenceNotifier() PresenceNotifier {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.notifier
}

func (h *Hub) publisher() func(room string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.publish
}
