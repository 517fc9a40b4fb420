package store

import (
	"context"
	"testing"
	"time"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
)

func seedMessages(t *testing.T, m *Mem, convID string, n int) []*models.Message {
	t.Helper()
	out := make([]*models.Message, 0, n)
	for i := 0; i < n; i++ {
		sender := identity.Canonical("alice")
		if i%2 == 1 {
			sender = "bob"
		}
		msg, err := models.NewMessage(convID, sender, "m", models.TypePlain, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := m.CreateMessage(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
		out = append(out, msg)
	}
	return out
}

func TestCreateDirectReturnsExistingPair(t *testing.T) {
	m := NewMem()
	first, err := models.NewConversation("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	created, err := m.CreateDirect(context.Background(), first)
	if err != nil {
		t.Fatal(err)
	}

	second, err := models.NewConversation("bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	again, err := m.CreateDirect(context.Background(), second)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != created.ID {
		t.Errorf("duplicate pair produced a second conversation: %s vs %s", again.ID, created.ID)
	}
}

func TestHistoryWindowCountsBackFromNewest(t *testing.T) {
	m := NewMem()
	conv, _ := models.NewConversation("alice", "bob")
	if _, err := m.CreateDirect(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
	msgs := seedMessages(t, m, conv.ID, 10)

	got, err := m.History(context.Background(), conv.ID, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("window length = %d, want 3", len(got))
	}
	// newest three, still oldest-first
	if got[0].ID != msgs[7].ID || got[2].ID != msgs[9].ID {
		t.Errorf("window = [%s..%s], want [%s..%s]", got[0].ID, got[2].ID, msgs[7].ID, msgs[9].ID)
	}

	got, err = m.History(context.Background(), conv.ID, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].ID != msgs[4].ID || got[2].ID != msgs[6].ID {
		t.Errorf("offset window starts at %s, want %s", got[0].ID, msgs[4].ID)
	}

	got, err = m.History(context.Background(), conv.ID, 5, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("past-the-end window returned %d messages", len(got))
	}
}

func TestUnreadByExcludesOwnAndAcknowledged(t *testing.T) {
	m := NewMem()
	conv, _ := models.NewConversation("alice", "bob")
	if _, err := m.CreateDirect(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
	msgs := seedMessages(t, m, conv.ID, 6) // alternating alice/bob senders

	// bob acknowledges the first alice message
	added, err := m.AddReceipt(context.Background(), msgs[0].ID, "bob", time.Now())
	if err != nil || !added {
		t.Fatalf("AddReceipt: added=%v err=%v", added, err)
	}

	unread, err := m.UnreadBy(context.Background(), conv.ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 2 {
		t.Fatalf("unread = %d, want 2 remaining alice messages", len(unread))
	}
	for _, msg := range unread {
		if msg.SenderID != "alice" {
			t.Errorf("unread includes bob's own message %s", msg.ID)
		}
	}
}

func TestConversationsForSortsByActivity(t *testing.T) {
	m := NewMem()
	ctx := context.Background()
	older, _ := models.NewConversation("alice", "bob")
	newer, _ := models.NewConversation("alice", "carol")
	inactive, _ := models.NewConversation("alice", "dave")
	for _, c := range []*models.Conversation{older, newer, inactive} {
		if _, err := m.CreateDirect(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.SetActive(ctx, inactive.ID, false); err != nil {
		t.Fatal(err)
	}
	base := time.Now()
	if err := m.UpdateSummary(ctx, older.ID, "m1", base.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateSummary(ctx, newer.ID, "m2", base); err != nil {
		t.Fatal(err)
	}

	got, err := m.ConversationsFor(ctx, "alice", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("conversations = %d, want 2 active", len(got))
	}
	if got[0].ID != newer.ID {
		t.Error("most recent activity not first")
	}
}

func TestAddReceiptUnknownMessage(t *testing.T) {
	m := NewMem()
	_, err := m.AddReceipt(context.Background(), "nope", "bob", time.Now())
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("kind = %v, want not found", apperr.KindOf(err))
	}
}
