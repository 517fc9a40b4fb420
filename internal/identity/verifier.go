package identity

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
)

// Verification failure reasons. The session registry and the HTTP middleware
// map these to their own failure vocabularies.
var (
	ErrMalformed        = errors.New("malformed credential")
	ErrInvalid          = errors.New("invalid credential")
	ErrExpired          = errors.New("expired credential")
	ErrIdentityNotFound = errors.New("identity not found")
)

// Verifier validates a bearer credential and resolves the verified identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// Directory resolves a canonical identity to its display name. Implemented
// by the store; absence is reported as a NotFound apperr.
type Directory interface {
	DisplayName(ctx context.Context, id Canonical) (string, error)
}

// TokenVerifier verifies HS256 bearer tokens whose subject is the canonical
// identity, then confirms the identity still exists.
type TokenVerifier struct {
	secret []byte
	users  Directory
}

func NewTokenVerifier(secret string, users Directory) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), users: users}
}

func (v *TokenVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	token, err := jwt.Parse(credential, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Identity{}, ErrMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrExpired
		default:
			return Identity{}, ErrInvalid
		}
	}
	if !token.Valid {
		return Identity{}, ErrInvalid
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, ErrInvalid
	}
	id, err := Normalize(sub)
	if err != nil {
		return Identity{}, ErrInvalid
	}

	name, err := v.users.DisplayName(ctx, id)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, err
	}
	return Identity{ID: id, DisplayName: name}, nil
}
