package models

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
)

type MessageType string

const (
	TypePlain   MessageType = "plain"
	TypeCipher  MessageType = "cipher"
	TypeSystem  MessageType = "system"
	TypePayment MessageType = "payment"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypePlain, TypeCipher, TypeSystem, TypePayment:
		return true
	}
	return false
}

type DeliveryState string

const (
	StateQueued    DeliveryState = "queued"
	StateDelivered DeliveryState = "delivered"
	StateFailed    DeliveryState = "failed"
	StateRead      DeliveryState = "read"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentConfirmed, PaymentFailed:
		return true
	}
	return false
}

type User struct {
	ID           string    `gorm:"primaryKey;size:20" json:"id"` // canonical nickname
	DisplayName  string    `gorm:"size:100" json:"display_name"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	PublicKey    string    `gorm:"size:255" json:"public_key,omitempty"`
	IsOnline     bool      `json:"is_online"`
	LastSeen     time.Time `json:"last_seen"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DeviceEndpoint is an opaque push token owned by one identity. Rows are
// created on explicit registration and removed only by the owner or by push
// fallback pruning after a permanent gateway rejection.
type DeviceEndpoint struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   string    `gorm:"size:20;not null;uniqueIndex:idx_owner_token" json:"owner_id"`
	Token     string    `gorm:"size:512;not null;uniqueIndex:idx_owner_token" json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a direct two-party thread. The participant pair is stored
// in lexicographic order so one unique index makes lazy creation idempotent.
type Conversation struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	ParticipantLo string    `gorm:"size:20;not null;uniqueIndex:idx_pair" json:"-"`
	ParticipantHi string    `gorm:"size:20;not null;uniqueIndex:idx_pair" json:"-"`
	LastMessageID *string   `gorm:"size:36" json:"last_message_id,omitempty"`
	LastMessageAt time.Time `gorm:"index" json:"last_message_at"`
	IsActive      bool      `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewConversation builds the conversation record for an unordered pair.
func NewConversation(a, b identity.Canonical) (*Conversation, error) {
	if a == b {
		return nil, apperr.New(apperr.KindValidation, "a direct conversation needs two distinct participants")
	}
	lo, hi := string(a), string(b)
	if lo > hi {
		lo, hi = hi, lo
	}
	return &Conversation{
		ID:            uuid.NewString(),
		ParticipantLo: lo,
		ParticipantHi: hi,
		LastMessageAt: time.Now().UTC(),
		IsActive:      true,
	}, nil
}

func (c *Conversation) Participants() []identity.Canonical {
	return []identity.Canonical{identity.Canonical(c.ParticipantLo), identity.Canonical(c.ParticipantHi)}
}

func (c *Conversation) Has(id identity.Canonical) bool {
	return string(id) == c.ParticipantLo || string(id) == c.ParticipantHi
}

// Other returns the participant across from id. Callers check Has first.
func (c *Conversation) Other(id identity.Canonical) identity.Canonical {
	if string(id) == c.ParticipantLo {
		return identity.Canonical(c.ParticipantHi)
	}
	return identity.Canonical(c.ParticipantLo)
}

// CipherEnvelope carries the end-to-end encryption descriptor. The fields
// are required together: a message either has a complete envelope or none.
type CipherEnvelope struct {
	Algorithm       string `json:"algorithm"`
	KeyDerivation   string `json:"key_derivation"`
	IV              string `json:"iv"`
	AuthTag         string `json:"auth_tag"`
	Salt            string `json:"salt"`
	SenderPublicKey string `json:"sender_public_key"`
	Fingerprint     string `json:"fingerprint"`
}

func (e *CipherEnvelope) validate() error {
	fields := []struct{ name, value string }{
		{"algorithm", e.Algorithm},
		{"key_derivation", e.KeyDerivation},
		{"iv", e.IV},
		{"auth_tag", e.AuthTag},
		{"salt", e.Salt},
		{"sender_public_key", e.SenderPublicKey},
		{"fingerprint", e.Fingerprint},
	}
	for _, f := range fields {
		if f.value == "" {
			return apperr.Newf(apperr.KindValidation, "cipher descriptor field %q is required", f.name)
		}
	}
	return nil
}

type PaymentInfo struct {
	Amount float64       `json:"amount"`
	TxHash string        `json:"tx_hash,omitempty"`
	Status PaymentStatus `json:"status,omitempty"`
}

type Message struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`
	// Seq is assigned by the store on creation and defines persistence
	// order, which is also delivery order within a conversation.
	Seq            uint64          `gorm:"autoIncrement;uniqueIndex" json:"-"`
	ConversationID string          `gorm:"size:36;not null;index:idx_conv_created" json:"conversation_id"`
	SenderID       string          `gorm:"size:20;not null;index" json:"sender_id"`
	Content        string          `gorm:"size:10000;not null" json:"content"`
	Type           MessageType     `gorm:"size:10;not null" json:"type"`
	Cipher         *CipherEnvelope `gorm:"serializer:json" json:"cipher,omitempty"`
	Payment        *PaymentInfo    `gorm:"serializer:json" json:"payment,omitempty"`
	DeliveryState  DeliveryState   `gorm:"size:10;not null" json:"delivery_state"`
	CreatedAt      time.Time       `gorm:"index:idx_conv_created" json:"created_at"`
	Receipts       []ReadReceipt   `gorm:"foreignKey:MessageID" json:"receipts,omitempty"`
}

// NewMessage builds a validated message in the queued state.
func NewMessage(conversationID string, sender identity.Canonical, content string, typ MessageType, cipher *CipherEnvelope, payment *PaymentInfo) (*Message, error) {
	m := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       string(sender),
		Content:        content,
		Type:           typ,
		Cipher:         cipher,
		Payment:        payment,
		DeliveryState:  StateQueued,
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Message) Validate() error {
	if m.Content == "" {
		return apperr.New(apperr.KindValidation, "content is required")
	}
	if len(m.Content) > 10000 {
		return apperr.New(apperr.KindValidation, "content exceeds 10000 characters")
	}
	if !m.Type.Valid() {
		return apperr.Newf(apperr.KindValidation, "unknown message type %q", m.Type)
	}
	if m.Type == TypeCipher {
		if m.Cipher == nil {
			return apperr.New(apperr.KindValidation, "cipher descriptor is required for cipher messages")
		}
		if err := m.Cipher.validate(); err != nil {
			return err
		}
	} else if m.Cipher != nil {
		return apperr.New(apperr.KindValidation, "cipher descriptor is only allowed on cipher messages")
	}
	if m.Type == TypePayment && m.Payment == nil {
		return apperr.New(apperr.KindValidation, "payment descriptor is required for payment messages")
	}
	if m.Payment != nil && m.Payment.Status != "" && !m.Payment.Status.Valid() {
		return apperr.Newf(apperr.KindValidation, "unknown payment status %q", m.Payment.Status)
	}
	return nil
}

// PreviewText is the notification-safe rendering of a message. Cipher
// content never leaves as plaintext; the placeholder is fixed.
func (m *Message) PreviewText() string {
	switch m.Type {
	case TypeCipher:
		return "Encrypted message"
	case TypePayment:
		return "Crypto transaction"
	default:
		const max = 120
		if utf8.RuneCountInString(m.Content) <= max {
			return m.Content
		}
		return string([]rune(m.Content)[:max])
	}
}

// ReadReceipt records that a reader has observed a message. The composite
// primary key caps receipts at one per (message, reader).
type ReadReceipt struct {
	MessageID string    `gorm:"primaryKey;size:36" json:"message_id"`
	ReaderID  string    `gorm:"primaryKey;size:20" json:"reader_id"`
	ReadAt    time.Time `json:"read_at"`
}
