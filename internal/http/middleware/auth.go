package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noxco7/nickname-messenger-backend/internal/identity"
)

const identityKey = "identity"

// Auth guards the protected route group. Verification goes through the
// same verifier the websocket handshake uses.
func Auth(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
			return
		}

		ident, err := verifier.Verify(c.Request.Context(), strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}

		c.Set(identityKey, ident)
		c.Next()
	}
}

func MustIdentity(c *gin.Context) identity.Identity {
	v, _ := c.Get(identityKey)
	return v.(identity.Identity)
}
