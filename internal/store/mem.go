package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
)

// Mem is the in-memory store adapter. It backs the package tests and lets
// the server run without a database DSN.
type Mem struct {
	mu            sync.Mutex
	seq           uint64
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	order         []string // message ids in persistence order
	receipts      map[string]map[string]time.Time
	users         map[string]*models.User
	tokens        map[string][]string
}

func NewMem() *Mem {
	return &Mem{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
		receipts:      make(map[string]map[string]time.Time),
		users:         make(map[string]*models.User),
		tokens:        make(map[string][]string),
	}
}

func (m *Mem) CreateDirect(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.ParticipantLo == conv.ParticipantLo && c.ParticipantHi == conv.ParticipantHi {
			cp := *c
			return &cp, nil
		}
	}
	cp := *conv
	m.conversations[conv.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Mem) ConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "conversation not found")
	}
	cp := *c
	return &cp, nil
}

func (m *Mem) ConversationsFor(ctx context.Context, id identity.Canonical, limit, offset int) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Conversation
	for _, c := range m.conversations {
		if c.IsActive && c.Has(id) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return window(out, limit, offset), nil
}

func (m *Mem) UpdateSummary(ctx context.Context, id, messageID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "conversation not found")
	}
	mid := messageID
	c.LastMessageID = &mid
	c.LastMessageAt = at
	return nil
}

func (m *Mem) SetActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "conversation not found")
	}
	c.IsActive = active
	return nil
}

func (m *Mem) CreateMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	msg.Seq = m.seq
	cp := *msg
	m.messages[msg.ID] = &cp
	m.order = append(m.order, msg.ID)
	return nil
}

func (m *Mem) MessageByID(ctx context.Context, id string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "message not found")
	}
	cp := *msg
	return &cp, nil
}

func (m *Mem) History(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Message
	for _, id := range m.order {
		if msg := m.messages[id]; msg.ConversationID == conversationID {
			all = append(all, *msg)
		}
	}
	// offset counts back from the newest, result stays in persistence order
	end := len(all) - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if limit <= 0 || start < 0 {
		start = 0
	}
	return append([]models.Message(nil), all[start:end]...), nil
}

func (m *Mem) UnreadBy(ctx context.Context, conversationID string, reader identity.Canonical) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, id := range m.order {
		msg := m.messages[id]
		if msg.ConversationID != conversationID || msg.SenderID == string(reader) {
			continue
		}
		if _, read := m.receipts[msg.ID][string(reader)]; read {
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (m *Mem) SetDeliveryState(ctx context.Context, id string, state models.DeliveryState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "message not found")
	}
	msg.DeliveryState = state
	return nil
}

func (m *Mem) AddReceipt(ctx context.Context, messageID string, reader identity.Canonical, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[messageID]; !ok {
		return false, apperr.New(apperr.KindNotFound, "message not found")
	}
	byReader := m.receipts[messageID]
	if byReader == nil {
		byReader = make(map[string]time.Time)
		m.receipts[messageID] = byReader
	}
	if _, ok := byReader[string(reader)]; ok {
		return false, nil
	}
	byReader[string(reader)] = at
	return true, nil
}

// ReceiptCount reports the receipts recorded for a message. Test helper.
func (m *Mem) ReceiptCount(messageID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.receipts[messageID])
}

func (m *Mem) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return apperr.New(apperr.KindConflict, "nickname already taken")
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *Mem) UserByID(ctx context.Context, id identity.Canonical) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[string(id)]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (m *Mem) DisplayName(ctx context.Context, id identity.Canonical) (string, error) {
	u, err := m.UserByID(ctx, id)
	if err != nil {
		return "", err
	}
	if u.DisplayName != "" {
		return u.DisplayName, nil
	}
	return u.ID, nil
}

func (m *Mem) SetPresence(ctx context.Context, id identity.Canonical, online bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[string(id)]
	if !ok {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	u.IsOnline = online
	u.LastSeen = at
	return nil
}

func (m *Mem) DeviceTokens(ctx context.Context, id identity.Canonical) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tokens[string(id)]...), nil
}

func (m *Mem) AddDeviceToken(ctx context.Context, id identity.Canonical, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens[string(id)] {
		if t == token {
			return nil
		}
	}
	m.tokens[string(id)] = append(m.tokens[string(id)], token)
	return nil
}

func (m *Mem) RemoveDeviceTokens(ctx context.Context, id identity.Canonical, tokens []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		drop[t] = struct{}{}
	}
	var kept []string
	for _, t := range m.tokens[string(id)] {
		if _, gone := drop[t]; !gone {
			kept = append(kept, t)
		}
	}
	m.tokens[string(id)] = kept
	return nil
}

func window(convs []models.Conversation, limit, offset int) []models.Conversation {
	if offset >= len(convs) {
		return nil
	}
	convs = convs[offset:]
	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs
}
