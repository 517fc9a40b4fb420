package access

import (
	"context"
	"testing"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
)

func TestConversationFor(t *testing.T) {
	mem := store.NewMem()
	ctx := context.Background()
	conv, err := models.NewConversation("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mem.CreateDirect(ctx, conv); err != nil {
		t.Fatal(err)
	}

	if _, err := ConversationFor(ctx, mem, conv.ID, "alice", true); err != nil {
		t.Errorf("participant denied: %v", err)
	}

	_, err = ConversationFor(ctx, mem, conv.ID, "mallet", false)
	if !apperr.IsKind(err, apperr.KindAccessDenied) {
		t.Errorf("non-participant: kind = %v, want access denied", apperr.KindOf(err))
	}
	if err != nil && apperr.Message(err) != "access denied" {
		t.Errorf("denial message = %q, must not name participants", apperr.Message(err))
	}

	_, err = ConversationFor(ctx, mem, "missing", "alice", false)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("missing conversation: kind = %v, want not found", apperr.KindOf(err))
	}

	if err := mem.SetActive(ctx, conv.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := ConversationFor(ctx, mem, conv.ID, "alice", false); err != nil {
		t.Errorf("inactive conversation rejected without requireActive: %v", err)
	}
	_, err = ConversationFor(ctx, mem, conv.ID, "alice", true)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("inactive with requireActive: kind = %v, want not found", apperr.KindOf(err))
	}
}
