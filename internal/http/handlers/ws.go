package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/delivery"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
	"github.com/noxco7/nickname-messenger-backend/internal/receipts"
	"github.com/noxco7/nickname-messenger-backend/internal/ws"
)

// WSHandler adapts the websocket framing onto the same services the REST
// surface uses. It owns no delivery logic: submits go through the
// coordinator, receipts through the tracker, membership through the hub.
type WSHandler struct {
	Hub                  *ws.Hub
	Coordinator          *delivery.Coordinator
	Receipts             *receipts.Tracker
	WSInsecureSkipVerify bool
	Logger               zerolog.Logger
}

// inboundEvent keeps the payload raw until the type is known.
type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (h *WSHandler) Handle(c *gin.Context) {
	opts := &websocket.AcceptOptions{}
	// Browser clients in dev run on a different origin. Production should
	// configure OriginPatterns instead.
	if h.WSInsecureSkipVerify {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		return // Accept already wrote the error response
	}

	client := h.Hub.AddConnection(conn)
	defer func() {
		// The request context is gone once the socket drops; cleanup gets
		// its own deadline so presence still flips.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.Hub.Disconnect(cleanupCtx, client)
	}()

	// Events for one connection are handled to completion in arrival
	// order; concurrency exists across connections only.
	for {
		var ev inboundEvent
		if err := wsjson.Read(c.Request.Context(), conn, &ev); err != nil {
			return
		}
		h.dispatch(c.Request.Context(), client, ev)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, client *ws.Client, ev inboundEvent) {
	switch ev.Type {
	case ws.EvAuthenticate:
		h.handleAuthenticate(ctx, client, ev.Data)
	case ws.EvJoin:
		h.handleJoin(ctx, client, ev.Data)
	case ws.EvLeave:
		h.handleLeave(client, ev.Data)
	case ws.EvSend:
		h.handleSend(ctx, client, ev.Data)
	case ws.EvRead:
		h.handleRead(ctx, client, ev.Data)
	case ws.EvTyping:
		h.handleTyping(client, ev.Data)
	default:
		client.Enqueue(ws.Event{Type: ws.EvError, Data: ws.ErrorEvent{Message: "unknown event type"}})
	}
}

func (h *WSHandler) handleAuthenticate(ctx context.Context, client *ws.Client, raw json.RawMessage) {
	var data struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(raw, &data)

	ident, reason, err := h.Hub.Authenticate(ctx, client, data.Token)
	if err != nil {
		h.Logger.Error().Err(err).Msg("authenticate handshake")
	}
	if reason != ws.FailNone {
		client.Enqueue(ws.Event{Type: ws.EvAuthenticated, Data: ws.AuthenticatedEvent{Success: false, Reason: string(reason)}})
		return
	}
	client.Enqueue(ws.Event{Type: ws.EvAuthenticated, Data: ws.AuthenticatedEvent{Success: true, Identity: string(ident.ID)}})
}

func (h *WSHandler) handleJoin(ctx context.Context, client *ws.Client, raw json.RawMessage) {
	var data ws.RoomEvent
	if err := json.Unmarshal(raw, &data); err != nil || data.ConversationID == "" {
		client.Enqueue(ws.Event{Type: ws.EvError, Data: ws.ErrorEvent{Message: "conversation_id is required"}})
		return
	}

	if err := h.Hub.JoinRoom(ctx, client, data.ConversationID); err != nil {
		client.Enqueue(ws.Event{Type: ws.EvError, Data: ws.ErrorEvent{Message: apperr.Message(err)}})
		return
	}
	client.Enqueue(ws.Event{Type: ws.EvJoined, Data: data})
}

func (h *WSHandler) handleLeave(client *ws.Client, raw json.RawMessage) {
	var data ws.RoomEvent
	if err := json.Unmarshal(raw, &data); err != nil || data.ConversationID == "" {
		return
	}
	h.Hub.LeaveRoom(client, data.ConversationID)
	client.Enqueue(ws.Event{Type: ws.EvLeft, Data: data})
}

func (h *WSHandler) handleSend(ctx context.Context, client *ws.Client, raw json.RawMessage) {
	ident, ok := client.Identity()
	if !ok {
		client.Enqueue(ws.Event{Type: ws.EvError, Data: ws.ErrorEvent{Message: "not authenticated"}})
		return
	}

	var data struct {
		ConversationID string                 `json:"conversation_id"`
		Content        string                 `json:"content"`
		Type           string                 `json:"type"`
		Cipher         *models.CipherEnvelope `json:"cipher"`
		Payment        *models.PaymentInfo    `json:"payment"`
		TempID         string                 `json:"temp_id"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		client.Enqueue(ws.Event{Type: ws.EvError, Data: ws.ErrorEvent{Message: "invalid send payload"}})
		return
	}

	typ := models.MessageType(data.Type)
	if data.Type == "" {
		typ = models.TypePlain
	}

	msg, err := h.Coordinator.Submit(ctx, ident, delivery.SubmitInput{
		ConversationID: data.ConversationID,
		Content:        data.Content,
		Type:           typ,
		Cipher:         data.Cipher,
		Payment:        data.Payment,
	})
	if err != nil {
		client.Enqueue(ws.Event{Type: ws.EvError, Data: ws.ErrorEvent{Message: apperr.Message(err)}})
		return
	}

	client.Enqueue(ws.Event{Type: ws.EvMessageSent, Data: gin.H{
		"temp_id":    data.TempID,
		"message_id": msg.ID,
		"timestamp":  msg.CreatedAt,
	}})
}

func (h *WSHandler) handleRead(ctx context.Context, client *ws.Client, raw json.RawMessage) {
	ident, ok := client.Identity()
	if !ok {
		return
	}

	var data struct {
		ConversationID string   `json:"conversation_id"`
		MessageIDs     []string `json:"message_ids"`
	}
	if err := json.Unmarshal(raw, &data); err != nil || data.ConversationID == "" {
		return
	}

	if _, err := h.Receipts.MarkRead(ctx, data.ConversationID, ident, data.MessageIDs); err != nil {
		h.Logger.Debug().Err(err).Str("conversation", data.ConversationID).Msg("mark read over ws")
	}
}

func (h *WSHandler) handleTyping(client *ws.Client, raw json.RawMessage) {
	ident, ok := client.Identity()
	if !ok {
		return
	}

	var data struct {
		ConversationID string `json:"conversation_id"`
		IsTyping       bool   `json:"is_typing"`
	}
	if err := json.Unmarshal(raw, &data); err != nil || data.ConversationID == "" {
		return
	}

	h.Hub.BroadcastToRoomExcept(data.ConversationID, client, ws.Event{Type: ws.EvUserTyping, Data: ws.TypingEvent{
		ConversationID: data.ConversationID,
		Identity:       string(ident),
		DisplayName:    client.DisplayName(),
		IsTyping:       data.IsTyping,
	}})
}
