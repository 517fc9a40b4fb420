package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noxco7/nickname-messenger-backend/internal/access"
	"github.com/noxco7/nickname-messenger-backend/internal/delivery"
	"github.com/noxco7/nickname-messenger-backend/internal/http/middleware"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
	"github.com/noxco7/nickname-messenger-backend/internal/receipts"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
)

type MessageHandler struct {
	Coordinator   *delivery.Coordinator
	Receipts      *receipts.Tracker
	Conversations store.Conversations
	Messages      store.Messages
}

type sendMessageReq struct {
	Content string                 `json:"content" binding:"required"`
	Type    string                 `json:"type"`
	Cipher  *models.CipherEnvelope `json:"cipher"`
	Payment *models.PaymentInfo    `json:"payment"`
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	me := middleware.MustIdentity(c)

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	typ := models.MessageType(req.Type)
	if req.Type == "" {
		typ = models.TypePlain
	}

	msg, err := h.Coordinator.Submit(c.Request.Context(), me.ID, delivery.SubmitInput{
		ConversationID: c.Param("id"),
		Content:        req.Content,
		Type:           typ,
		Cipher:         req.Cipher,
		Payment:        req.Payment,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": msg})
}

func (h *MessageHandler) ListMessages(c *gin.Context) {
	me := middleware.MustIdentity(c)
	limit, offset := pageParams(c, 50, 200)

	convID := c.Param("id")
	if _, err := access.ConversationFor(c.Request.Context(), h.Conversations, convID, me.ID, false); err != nil {
		fail(c, err)
		return
	}

	msgs, err := h.Messages.History(c.Request.Context(), convID, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

type markReadReq struct {
	MessageIDs []string `json:"message_ids"`
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	me := middleware.MustIdentity(c)

	var req markReadReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
			return
		}
	}

	marked, err := h.Receipts.MarkRead(c.Request.Context(), c.Param("id"), me.ID, req.MessageIDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_count": marked})
}
