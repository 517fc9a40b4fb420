package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Bridge re-publishes room broadcasts over redis pub/sub so fan-out reaches
// sessions held by other instances. Each instance tags what it publishes
// and skips its own messages on the way back in.
type Bridge struct {
	rdb    *redis.Client
	hub    *Hub
	origin string
	logger zerolog.Logger
}

type bridgeEnvelope struct {
	Origin string `json:"origin"`
	Room   string `json:"room"`
	Event  Event  `json:"event"`
}

func NewBridge(rdb *redis.Client, hub *Hub, logger zerolog.Logger) *Bridge {
	b := &Bridge{
		rdb:    rdb,
		hub:    hub,
		origin: uuid.NewString(),
		logger: logger.With().Str("component", "ws-bridge").Logger(),
	}
	hub.SetPublisher(b.publishRoom)
	return b
}

func (b *Bridge) publishRoom(room string, ev Event) {
	payload, err := json.Marshal(bridgeEnvelope{Origin: b.origin, Room: room, Event: ev})
	if err != nil {
		b.logger.Error().Err(err).Msg("encode bridge envelope")
		return
	}
	if err := b.rdb.Publish(context.Background(), "room:"+room, payload).Err(); err != nil {
		b.logger.Warn().Err(err).Str("room", room).Msg("publish failed, local delivery unaffected")
	}
}

// Run consumes the room channels until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	pubsub := b.rdb.PSubscribe(ctx, "room:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn().Err(err).Msg("drop undecodable bridge message")
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			b.hub.broadcastLocal(env.Room, nil, env.Event)
		}
	}
}
