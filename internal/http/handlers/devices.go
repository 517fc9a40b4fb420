package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noxco7/nickname-messenger-backend/internal/http/middleware"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
)

// DeviceHandler registers and removes push endpoints for the calling
// identity. Validity-based pruning lives in the push package, not here.
type DeviceHandler struct {
	Users store.Users
}

type deviceReq struct {
	Token string `json:"token" binding:"required"`
}

func (h *DeviceHandler) Register(c *gin.Context) {
	me := middleware.MustIdentity(c)

	var req deviceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" || len(token) > 512 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid device token"})
		return
	}

	if err := h.Users.AddDeviceToken(c.Request.Context(), me.ID, token); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "device registered"})
}

func (h *DeviceHandler) Unregister(c *gin.Context) {
	me := middleware.MustIdentity(c)

	var req deviceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	if err := h.Users.RemoveDeviceTokens(c.Request.Context(), me.ID, []string{req.Token}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device removed"})
}
