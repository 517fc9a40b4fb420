package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
)

// AuthHandler is boundary glue only: it turns a nickname/password pair into
// a bearer token whose subject is the canonical identity. Everything past
// this point trusts the verifier, not the raw credential.
type AuthHandler struct {
	Users     store.Users
	JWTSecret string
}

type registerReq struct {
	Nickname    string `json:"nickname" binding:"required"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password" binding:"required,min=6"`
	PublicKey   string `json:"public_key"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	id, err := identity.Normalize(req.Nickname)
	if err != nil {
		fail(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		fail(c, err)
		return
	}

	u := &models.User{
		ID:           string(id),
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		PublicKey:    req.PublicKey,
		LastSeen:     time.Now().UTC(),
	}
	if err := h.Users.CreateUser(c.Request.Context(), u); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":           u.ID,
		"display_name": u.DisplayName,
	})
}

type loginReq struct {
	Nickname string `json:"nickname" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	id, err := identity.Normalize(req.Nickname)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "wrong nickname/password"})
		return
	}

	u, err := h.Users.UserByID(c.Request.Context(), id)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "wrong nickname/password"})
			return
		}
		fail(c, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "wrong nickname/password"})
		return
	}

	claims := jwt.MapClaims{
		"sub": u.ID,
		"exp": time.Now().Add(7 * 24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte(h.JWTSecret))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": tokenStr,
		"user": gin.H{
			"id":           u.ID,
			"display_name": u.DisplayName,
			"public_key":   u.PublicKey,
		},
	})
}
