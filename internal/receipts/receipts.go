// Package receipts records per-reader acknowledgement of messages.
package receipts

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noxco7/nickname-messenger-backend/internal/access"
	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
	"github.com/noxco7/nickname-messenger-backend/internal/ws"
)

type Fanout interface {
	BroadcastToRoom(room string, ev ws.Event)
}

type Tracker struct {
	conversations store.Conversations
	messages      store.Messages
	receipts      store.Receipts
	fanout        Fanout
	logger        zerolog.Logger
}

func New(conversations store.Conversations, messages store.Messages, receipts store.Receipts, fanout Fanout, logger zerolog.Logger) *Tracker {
	return &Tracker{
		conversations: conversations,
		messages:      messages,
		receipts:      receipts,
		fanout:        fanout,
		logger:        logger.With().Str("component", "receipts").Logger(),
	}
}

// MarkRead records reader's acknowledgement. With no explicit ids it covers
// every message in the conversation the reader hasn't sent or already
// marked; explicit ids outside the conversation are ignored. Marking is
// idempotent per (message, reader). Returns the number of new receipts.
func (t *Tracker) MarkRead(ctx context.Context, conversationID string, reader identity.Canonical, messageIDs []string) (int, error) {
	if _, err := access.ConversationFor(ctx, t.conversations, conversationID, reader, false); err != nil {
		return 0, err
	}

	var targets []models.Message
	if len(messageIDs) == 0 {
		var err error
		targets, err = t.messages.UnreadBy(ctx, conversationID, reader)
		if err != nil {
			return 0, err
		}
	} else {
		for _, id := range messageIDs {
			msg, err := t.messages.MessageByID(ctx, id)
			if err != nil {
				if apperr.IsKind(err, apperr.KindNotFound) {
					continue
				}
				return 0, err
			}
			if msg.ConversationID != conversationID {
				continue
			}
			targets = append(targets, *msg)
		}
	}

	now := time.Now().UTC()
	marked := 0
	for i := range targets {
		msg := &targets[i]
		// A sender marking their own message has no receipt effect.
		if msg.SenderID == string(reader) {
			continue
		}

		added, err := t.receipts.AddReceipt(ctx, msg.ID, reader, now)
		if err != nil {
			return marked, err
		}
		if !added {
			continue
		}
		marked++

		// In a two-party conversation a non-sender reader is the other
		// participant, so the message as a whole is now read.
		if err := t.messages.SetDeliveryState(ctx, msg.ID, models.StateRead); err != nil {
			t.logger.Error().Err(err).Str("message", msg.ID).Msg("flip delivery state")
		}

		t.fanout.BroadcastToRoom(conversationID, ws.Event{Type: ws.EvMessageRead, Data: ws.ReadEvent{
			MessageID:      msg.ID,
			ConversationID: conversationID,
			ReaderID:       string(reader),
			ReadAt:         now,
		}})
	}
	return marked, nil
}
