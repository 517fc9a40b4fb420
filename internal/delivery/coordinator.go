// Package delivery orchestrates a message submit: validate, persist,
// update the conversation summary, then fan out to live sessions and fall
// back to push for absent participants. Every transport funnels through
// Submit; transports only adapt framing.
package delivery

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noxco7/nickname-messenger-backend/internal/access"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
	"github.com/noxco7/nickname-messenger-backend/internal/ws"
)

// Registry is the slice of the session registry the coordinator needs.
type Registry interface {
	BroadcastToRoom(room string, ev ws.Event)
	IsOnline(id identity.Canonical) bool
}

// Notifier is the push fallback.
type Notifier interface {
	NotifyIdentity(ctx context.Context, owner identity.Canonical, title, body string, data map[string]string) error
}

type SubmitInput struct {
	ConversationID string
	Content        string
	Type           models.MessageType
	Cipher         *models.CipherEnvelope
	Payment        *models.PaymentInfo
}

// Fan-out runs on a fixed set of lanes, each a single worker draining a
// queue in arrival order. A conversation always hashes to the same lane and
// a job is enqueued under the same stripe lock that persisted its message,
// so live delivery order within a conversation equals persistence order.
// Push carries no ordering guarantee and runs off-lane.
const laneCount = 32

type fanoutJob struct {
	conv   *models.Conversation
	msg    *models.Message
	sender identity.Canonical
}

type Coordinator struct {
	conversations store.Conversations
	messages      store.Messages
	registry      Registry
	notifier      Notifier
	logger        zerolog.Logger

	fanoutTimeout time.Duration
	serial        [laneCount]sync.Mutex
	lanes         [laneCount]chan fanoutJob
	wg            sync.WaitGroup
}

func New(conversations store.Conversations, messages store.Messages, registry Registry, notifier Notifier, logger zerolog.Logger) *Coordinator {
	c := &Coordinator{
		conversations: conversations,
		messages:      messages,
		registry:      registry,
		notifier:      notifier,
		logger:        logger.With().Str("component", "delivery").Logger(),
		fanoutTimeout: 10 * time.Second,
	}
	for i := range c.lanes {
		c.lanes[i] = make(chan fanoutJob, 128)
		go c.drainLane(c.lanes[i])
	}
	return c
}

func laneIndex(key string) int {
	f := fnv.New32a()
	f.Write([]byte(key))
	return int(f.Sum32() % laneCount)
}

// Submit validates and persists a message, then returns it to the caller.
// The synchronous return is the only guarantee the sender gets; fan-out and
// push run afterwards and their failures never reach the caller. Within one
// conversation, delivery order equals persistence order.
func (c *Coordinator) Submit(ctx context.Context, sender identity.Canonical, in SubmitInput) (*models.Message, error) {
	conv, err := access.ConversationFor(ctx, c.conversations, in.ConversationID, sender, true)
	if err != nil {
		return nil, err
	}

	msg, err := models.NewMessage(conv.ID, sender, in.Content, in.Type, in.Cipher, in.Payment)
	if err != nil {
		return nil, err
	}

	// Persist and enqueue under the conversation's stripe lock: lane order
	// is pinned to persistence order.
	lane := laneIndex(conv.ID)
	c.serial[lane].Lock()

	if err := c.messages.CreateMessage(ctx, msg); err != nil {
		c.serial[lane].Unlock()
		return nil, err
	}

	// Message durability never depends on the summary write. If it fails,
	// history queries still return the message and the next submit will
	// move the summary forward.
	if err := c.conversations.UpdateSummary(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		c.logger.Error().Err(err).
			Str("conversation", conv.ID).
			Str("message", msg.ID).
			Msg("summary update failed, message persisted")
	}

	c.wg.Add(1)
	c.lanes[lane] <- fanoutJob{conv: conv, msg: msg, sender: sender}
	c.serial[lane].Unlock()

	return msg, nil
}

func (c *Coordinator) drainLane(jobs <-chan fanoutJob) {
	for job := range jobs {
		c.registry.BroadcastToRoom(job.conv.ID, ws.NewMessageEvent(job.msg))

		c.wg.Add(1)
		go func(job fanoutJob) {
			defer c.wg.Done()
			// The submit response is long gone; push gets its own deadline
			// so a slow gateway can't hold a lane hostage.
			pushCtx, cancel := context.WithTimeout(context.Background(), c.fanoutTimeout)
			defer cancel()
			c.pushAbsent(pushCtx, job.conv, job.msg, job.sender)
		}(job)

		c.wg.Done()
	}
}

func (c *Coordinator) pushAbsent(ctx context.Context, conv *models.Conversation, msg *models.Message, sender identity.Canonical) {
	recipient := conv.Other(sender)
	if c.registry.IsOnline(recipient) {
		return
	}

	data := map[string]string{
		"conversation_id": conv.ID,
		"message_id":      msg.ID,
	}
	title := fmt.Sprintf("New message from %s", sender)

	if err := c.notifier.NotifyIdentity(ctx, recipient, title, msg.PreviewText(), data); err != nil {
		c.logger.Warn().Err(err).
			Str("identity", string(recipient)).
			Str("message", msg.ID).
			Msg("push fallback failed")
	}
}

// Wait blocks until every queued broadcast and in-flight push finishes.
// Called on shutdown after the server stops accepting requests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
