package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noxco7/nickname-messenger-backend/internal/access"
	"github.com/noxco7/nickname-messenger-backend/internal/http/middleware"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
)

type ChatHandler struct {
	Conversations store.Conversations
	Users         store.Users
}

type createDirectReq struct {
	Other string `json:"other" binding:"required"`
}

// CreateDirectConversation lazily creates the thread for the caller and one
// other identity. Asking again for the same pair returns the existing
// record, never a duplicate.
func (h *ChatHandler) CreateDirectConversation(c *gin.Context) {
	me := middleware.MustIdentity(c)

	var req createDirectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	other, err := identity.Normalize(req.Other)
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := h.Users.UserByID(c.Request.Context(), other); err != nil {
		fail(c, err)
		return
	}

	fresh, err := models.NewConversation(me.ID, other)
	if err != nil {
		fail(c, err)
		return
	}

	conv, err := h.Conversations.CreateDirect(c.Request.Context(), fresh)
	if err != nil {
		fail(c, err)
		return
	}

	status := http.StatusOK
	if conv.ID == fresh.ID {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": viewConversation(conv)})
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	me := middleware.MustIdentity(c)
	limit, offset := pageParams(c, 50, 200)

	convs, err := h.Conversations.ConversationsFor(c.Request.Context(), me.ID, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}

	views := make([]conversationView, 0, len(convs))
	for i := range convs {
		views = append(views, viewConversation(&convs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	me := middleware.MustIdentity(c)

	conv, err := access.ConversationFor(c.Request.Context(), h.Conversations, c.Param("id"), me.ID, false)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": viewConversation(conv)})
}
