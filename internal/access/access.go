// Package access holds the one participant-membership check. Submit, room
// join, read marking and history all go through it so no call path can
// drift to its own comparison rules.
package access

import (
	"context"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
)

// ErrDenied carries a fixed message so a rejection never reveals who the
// participants are.
func errDenied() error {
	return apperr.New(apperr.KindAccessDenied, "access denied")
}

// CheckParticipant verifies id is a participant of conv.
func CheckParticipant(conv *models.Conversation, id identity.Canonical) error {
	if conv == nil || !conv.Has(id) {
		return errDenied()
	}
	return nil
}

// ConversationFor loads a conversation and verifies id may act in it.
// requireActive additionally rejects soft-deleted conversations, which only
// the submit path demands.
func ConversationFor(ctx context.Context, conversations store.Conversations, conversationID string, id identity.Canonical, requireActive bool) (*models.Conversation, error) {
	conv, err := conversations.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if requireActive && !conv.IsActive {
		return nil, apperr.New(apperr.KindNotFound, "conversation not found")
	}
	if err := CheckParticipant(conv, id); err != nil {
		return nil, err
	}
	return conv, nil
}
