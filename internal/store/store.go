// Package store is the port to the persistent document store. The rest of
// the system talks to these interfaces only; the gorm adapter is the
// production implementation and Mem backs tests and DSN-less local runs.
//
// Every operation is individually atomic. No multi-entity transaction is
// assumed anywhere: each mutation is safe to observe or retry on its own.
package store

import (
	"context"
	"time"

	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
)

// Store is the full persistence surface, for wiring sites that hold one
// adapter. Services depend on the narrow interfaces below instead.
type Store interface {
	Conversations
	Messages
	Receipts
	Users
	// DisplayName satisfies identity.Directory.
	DisplayName(ctx context.Context, id identity.Canonical) (string, error)
}

type Conversations interface {
	// CreateDirect creates the conversation for its participant pair, or
	// returns the existing record when the pair already has one. Duplicate
	// creation is resolved here, never surfaced as an error.
	CreateDirect(ctx context.Context, conv *models.Conversation) (*models.Conversation, error)
	ConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	// ConversationsFor lists the identity's active conversations, most
	// recent activity first.
	ConversationsFor(ctx context.Context, id identity.Canonical, limit, offset int) ([]models.Conversation, error)
	// UpdateSummary points the conversation at its latest message.
	UpdateSummary(ctx context.Context, id, messageID string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
}

type Messages interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	MessageByID(ctx context.Context, id string) (*models.Message, error)
	// History returns a window of the conversation's messages in
	// persistence order, offset counted back from the newest.
	History(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error)
	// UnreadBy returns the conversation's messages not sent by reader and
	// not yet marked read by reader, in persistence order.
	UnreadBy(ctx context.Context, conversationID string, reader identity.Canonical) ([]models.Message, error)
	SetDeliveryState(ctx context.Context, id string, state models.DeliveryState) error
}

type Receipts interface {
	// AddReceipt records a receipt and reports whether it was new. Adding
	// an existing (message, reader) pair is a no-op.
	AddReceipt(ctx context.Context, messageID string, reader identity.Canonical, at time.Time) (bool, error)
}

type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id identity.Canonical) (*models.User, error)
	SetPresence(ctx context.Context, id identity.Canonical, online bool, at time.Time) error
	DeviceTokens(ctx context.Context, id identity.Canonical) ([]string, error)
	AddDeviceToken(ctx context.Context, id identity.Canonical, token string) error
	// RemoveDeviceTokens deletes the listed tokens belonging to id.
	// Removal never crosses the owning identity.
	RemoveDeviceTokens(ctx context.Context, id identity.Canonical, tokens []string) error
}
