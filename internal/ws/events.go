package ws

import (
	"time"

	"github.com/noxco7/nickname-messenger-backend/internal/models"
)

// Event is the wire envelope for everything that crosses a live connection,
// in either direction.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Inbound event types.
const (
	EvAuthenticate = "authenticate"
	EvJoin         = "join"
	EvLeave        = "leave"
	EvSend         = "send"
	EvRead         = "read"
	EvTyping       = "typing"
)

// Outbound event types.
const (
	EvAuthenticated = "authenticated"
	EvJoined        = "joined"
	EvLeft          = "left"
	EvMessage       = "message"
	EvMessageSent   = "message:sent"
	EvMessageRead   = "message:read"
	EvPresence      = "presence"
	EvUserTyping    = "user:typing"
	EvError         = "error"
)

// MessageEvent is the fan-out shape for a delivered message.
type MessageEvent struct {
	MessageID      string                 `json:"message_id"`
	ConversationID string                 `json:"conversation_id"`
	SenderID       string                 `json:"sender_id"`
	Content        string                 `json:"content"`
	Type           models.MessageType     `json:"type"`
	Timestamp      time.Time              `json:"timestamp"`
	DeliveryState  models.DeliveryState   `json:"delivery_state"`
	Cipher         *models.CipherEnvelope `json:"cipher,omitempty"`
	Payment        *models.PaymentInfo    `json:"payment,omitempty"`
}

func NewMessageEvent(msg *models.Message) Event {
	return Event{Type: EvMessage, Data: MessageEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           msg.Type,
		Timestamp:      msg.CreatedAt,
		DeliveryState:  msg.DeliveryState,
		Cipher:         msg.Cipher,
		Payment:        msg.Payment,
	}}
}

type PresenceEvent struct {
	Identity string    `json:"identity"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

type ReadEvent struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	ReaderID       string    `json:"reader_id"`
	ReadAt         time.Time `json:"read_at"`
}

type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	Identity       string `json:"identity"`
	DisplayName    string `json:"display_name,omitempty"`
	IsTyping       bool   `json:"is_typing"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

type AuthenticatedEvent struct {
	Success  bool   `json:"success"`
	Identity string `json:"identity,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type RoomEvent struct {
	ConversationID string `json:"conversation_id"`
}
