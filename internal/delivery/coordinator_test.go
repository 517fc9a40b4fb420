package delivery

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
	"github.com/noxco7/nickname-messenger-backend/internal/ws"
)

type fakeRegistry struct {
	mu     sync.Mutex
	online map[identity.Canonical]bool
	events []ws.Event
}

func (r *fakeRegistry) BroadcastToRoom(room string, ev ws.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *fakeRegistry) IsOnline(id identity.Canonical) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[id]
}

func (r *fakeRegistry) broadcasts() []ws.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ws.Event(nil), r.events...)
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []identity.Canonical
	datas []map[string]string
}

func (n *fakeNotifier) NotifyIdentity(ctx context.Context, owner identity.Canonical, title, body string, data map[string]string) error {
	n.mu.Lock()
	n.sent = append(n.sent, owner)
	n.datas = append(n.datas, data)
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) recipients() []identity.Canonical {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]identity.Canonical(nil), n.sent...)
}

func setup(t *testing.T) (*Coordinator, *store.Mem, *fakeRegistry, *fakeNotifier, string) {
	t.Helper()
	mem := store.NewMem()
	conv, err := models.NewConversation("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mem.CreateDirect(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
	registry := &fakeRegistry{online: make(map[identity.Canonical]bool)}
	notifier := &fakeNotifier{}
	return New(mem, mem, registry, notifier, zerolog.Nop()), mem, registry, notifier, conv.ID
}

func TestSubmitPersistsBroadcastsAndFallsBack(t *testing.T) {
	coord, mem, registry, notifier, convID := setup(t)
	registry.online["alice"] = true // sender online, bob absent

	msg, err := coord.Submit(context.Background(), "alice", SubmitInput{
		ConversationID: convID,
		Content:        "hello bob",
		Type:           models.TypePlain,
	})
	if err != nil {
		t.Fatal(err)
	}
	coord.Wait()

	if msg.DeliveryState != models.StateQueued {
		t.Errorf("delivery state = %q, want queued", msg.DeliveryState)
	}

	conv, err := mem.ConversationByID(context.Background(), convID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.LastMessageID == nil || *conv.LastMessageID != msg.ID {
		t.Error("conversation summary not pointing at the new message")
	}

	evs := registry.broadcasts()
	if len(evs) != 1 || evs[0].Type != ws.EvMessage {
		t.Fatalf("broadcasts = %+v, want one message event", evs)
	}
	me := evs[0].Data.(ws.MessageEvent)
	if me.MessageID != msg.ID || me.SenderID != "alice" {
		t.Errorf("message event = %+v", me)
	}

	got := notifier.recipients()
	if len(got) != 1 || got[0] != "bob" {
		t.Errorf("push recipients = %v, want only bob", got)
	}
	if data := notifier.datas[0]; data["conversation_id"] != convID || data["message_id"] != msg.ID {
		t.Errorf("push data = %v", data)
	}
}

func TestSubmitSkipsPushForOnlineParticipants(t *testing.T) {
	coord, _, registry, notifier, convID := setup(t)
	registry.online["alice"] = true
	registry.online["bob"] = true

	if _, err := coord.Submit(context.Background(), "alice", SubmitInput{
		ConversationID: convID,
		Content:        "hi",
		Type:           models.TypePlain,
	}); err != nil {
		t.Fatal(err)
	}
	coord.Wait()

	if got := notifier.recipients(); len(got) != 0 {
		t.Errorf("push sent to online participants: %v", got)
	}
}

func TestSubmitDeniedForNonParticipant(t *testing.T) {
	coord, mem, registry, _, convID := setup(t)

	_, err := coord.Submit(context.Background(), "mallet", SubmitInput{
		ConversationID: convID,
		Content:        "let me in",
		Type:           models.TypePlain,
	})
	if !apperr.IsKind(err, apperr.KindAccessDenied) {
		t.Fatalf("kind = %v, want access denied", apperr.KindOf(err))
	}
	coord.Wait()

	history, err := mem.History(context.Background(), convID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Error("denied submit still persisted a message")
	}
	if len(registry.broadcasts()) != 0 {
		t.Error("denied submit still broadcast")
	}
}

func TestSubmitRejectedOnInactiveConversation(t *testing.T) {
	coord, mem, _, _, convID := setup(t)
	if err := mem.SetActive(context.Background(), convID, false); err != nil {
		t.Fatal(err)
	}

	_, err := coord.Submit(context.Background(), "alice", SubmitInput{
		ConversationID: convID,
		Content:        "anyone there",
		Type:           models.TypePlain,
	})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("kind = %v, want not found", apperr.KindOf(err))
	}
}

func TestSubmitInvalidCipherNeverReachesFanout(t *testing.T) {
	coord, mem, registry, _, convID := setup(t)

	_, err := coord.Submit(context.Background(), "alice", SubmitInput{
		ConversationID: convID,
		Content:        "blob",
		Type:           models.TypeCipher,
		Cipher: &models.CipherEnvelope{
			Algorithm:     "AES-256-GCM",
			KeyDerivation: "HKDF-SHA256",
			// IV missing
			AuthTag:         "dGFn",
			Salt:            "c2FsdA==",
			SenderPublicKey: "cGs=",
			Fingerprint:     "ZnA=",
		},
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("kind = %v, want validation", apperr.KindOf(err))
	}
	coord.Wait()

	history, err := mem.History(context.Background(), convID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 || len(registry.broadcasts()) != 0 {
		t.Error("invalid message leaked past validation")
	}
}

func TestBroadcastOrderMatchesPersistenceOrder(t *testing.T) {
	coord, mem, registry, _, convID := setup(t)

	var sent []string
	for _, content := range []string{"first", "second", "third"} {
		msg, err := coord.Submit(context.Background(), "alice", SubmitInput{
			ConversationID: convID,
			Content:        content,
			Type:           models.TypePlain,
		})
		if err != nil {
			t.Fatal(err)
		}
		sent = append(sent, msg.ID)
	}

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := coord.Submit(context.Background(), "alice", SubmitInput{
				ConversationID: convID,
				Content:        "tick",
				Type:           models.TypePlain,
			}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	coord.Wait()

	history, err := mem.History(context.Background(), convID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	var delivered []string
	for _, ev := range registry.broadcasts() {
		if ev.Type == ws.EvMessage {
			delivered = append(delivered, ev.Data.(ws.MessageEvent).MessageID)
		}
	}
	if len(delivered) != len(history) {
		t.Fatalf("delivered %d messages, persisted %d", len(delivered), len(history))
	}
	for i := range sent {
		if delivered[i] != sent[i] {
			t.Fatalf("sequential submits delivered out of order: got %s at %d, want %s", delivered[i], i, sent[i])
		}
	}
	for i := range history {
		if delivered[i] != history[i].ID {
			t.Fatalf("delivery order diverges from persistence order at %d", i)
		}
	}
}

func TestSubmitOrderingWithinConversation(t *testing.T) {
	coord, mem, _, _, convID := setup(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Submit(context.Background(), "alice", SubmitInput{
				ConversationID: convID,
				Content:        "tick",
				Type:           models.TypePlain,
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	coord.Wait()

	history, err := mem.History(context.Background(), convID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != n {
		t.Fatalf("history length = %d, want %d", len(history), n)
	}
	for i := 1; i < len(history); i++ {
		if history[i].Seq <= history[i-1].Seq {
			t.Fatalf("history out of order at %d: %d after %d", i, history[i].Seq, history[i-1].Seq)
		}
	}
}
