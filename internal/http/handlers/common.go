package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
)

func fail(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{"message": apperr.Message(err)})
}

func pageParams(c *gin.Context, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := c.Query("limit"); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x > 0 && x <= maxLimit {
			limit = x
		}
	}
	if v := c.Query("offset"); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x >= 0 {
			offset = x
		}
	}
	return limit, offset
}

type conversationView struct {
	ID            string   `json:"id"`
	Participants  []string `json:"participants"`
	LastMessageID *string  `json:"last_message_id,omitempty"`
	LastMessageAt string   `json:"last_message_at"`
	IsActive      bool     `json:"is_active"`
	CreatedAt     string   `json:"created_at"`
}

func viewConversation(conv *models.Conversation) conversationView {
	parts := conv.Participants()
	return conversationView{
		ID:            conv.ID,
		Participants:  []string{string(parts[0]), string(parts[1])},
		LastMessageID: conv.LastMessageID,
		LastMessageAt: conv.LastMessageAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		IsActive:      conv.IsActive,
		CreatedAt:     conv.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}
