// Package presence announces online/offline transitions to every
// conversation an identity belongs to. The only persisted state is the
// user's online flag and last-seen timestamp; there is no presence history.
package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
	"github.com/noxco7/nickname-messenger-backend/internal/ws"
)

// Fanout is the slice of the session registry presence needs.
type Fanout interface {
	BroadcastToRoom(room string, ev ws.Event)
}

type Broadcaster struct {
	conversations store.Conversations
	users         store.Users
	fanout        Fanout
	logger        zerolog.Logger
}

func New(conversations store.Conversations, users store.Users, fanout Fanout, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		conversations: conversations,
		users:         users,
		fanout:        fanout,
		logger:        logger.With().Str("component", "presence").Logger(),
	}
}

func (b *Broadcaster) IdentityOnline(ctx context.Context, id identity.Canonical) {
	b.transition(ctx, id, true)
}

func (b *Broadcaster) IdentityOffline(ctx context.Context, id identity.Canonical) {
	b.transition(ctx, id, false)
}

func (b *Broadcaster) transition(ctx context.Context, id identity.Canonical, online bool) {
	now := time.Now().UTC()

	if err := b.users.SetPresence(ctx, id, online, now); err != nil {
		b.logger.Error().Err(err).Str("identity", string(id)).Msg("persist presence")
	}

	convs, err := b.conversations.ConversationsFor(ctx, id, 0, 0)
	if err != nil {
		b.logger.Error().Err(err).Str("identity", string(id)).Msg("enumerate conversations")
		return
	}

	ev := ws.Event{Type: ws.EvPresence, Data: ws.PresenceEvent{
		Identity: string(id),
		Online:   online,
		LastSeen: now,
	}}
	for _, conv := range convs {
		b.fanout.BroadcastToRoom(conv.ID, ev)
	}
	b.logger.Debug().Str("identity", string(id)).Bool("online", online).Int("conversations", len(convs)).Msg("presence broadcast")
}
