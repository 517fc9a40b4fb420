package models

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
)

func validCipher() *CipherEnvelope {
	return &CipherEnvelope{
		Algorithm:       "AES-256-GCM",
		KeyDerivation:   "HKDF-SHA256",
		IV:              "aXY=",
		AuthTag:         "dGFn",
		Salt:            "c2FsdA==",
		SenderPublicKey: "cGs=",
		Fingerprint:     "ZnA=",
	}
}

func TestNewConversationOrdersPair(t *testing.T) {
	conv, err := NewConversation("zoe", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if conv.ParticipantLo != "alice" || conv.ParticipantHi != "zoe" {
		t.Errorf("pair not ordered: lo=%q hi=%q", conv.ParticipantLo, conv.ParticipantHi)
	}
	if !conv.Has("zoe") || !conv.Has("alice") || conv.Has("bob") {
		t.Error("membership check wrong")
	}
	if conv.Other("alice") != "zoe" || conv.Other("zoe") != "alice" {
		t.Error("Other returned the wrong participant")
	}
	if !conv.IsActive {
		t.Error("new conversation should be active")
	}
}

func TestNewConversationRejectsSelf(t *testing.T) {
	if _, err := NewConversation("alice", "alice"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("want validation error, got %v", err)
	}
}

func TestNewMessageValidation(t *testing.T) {
	t.Run("plain ok", func(t *testing.T) {
		msg, err := NewMessage("conv1", "alice", "hi", TypePlain, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if msg.DeliveryState != StateQueued {
			t.Errorf("delivery state = %q, want queued", msg.DeliveryState)
		}
		if msg.ID == "" {
			t.Error("message id not assigned")
		}
	})

	t.Run("empty content", func(t *testing.T) {
		if _, err := NewMessage("conv1", "alice", "", TypePlain, nil, nil); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("want validation error, got %v", err)
		}
	})

	t.Run("oversized content", func(t *testing.T) {
		long := strings.Repeat("x", 10001)
		if _, err := NewMessage("conv1", "alice", long, TypePlain, nil, nil); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("want validation error, got %v", err)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewMessage("conv1", "alice", "hi", MessageType("carrier_pigeon"), nil, nil); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("want validation error, got %v", err)
		}
	})

	t.Run("cipher complete", func(t *testing.T) {
		if _, err := NewMessage("conv1", "alice", "blob", TypeCipher, validCipher(), nil); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("cipher without descriptor", func(t *testing.T) {
		if _, err := NewMessage("conv1", "alice", "blob", TypeCipher, nil, nil); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("want validation error, got %v", err)
		}
	})

	t.Run("cipher missing iv", func(t *testing.T) {
		env := validCipher()
		env.IV = ""
		if _, err := NewMessage("conv1", "alice", "blob", TypeCipher, env, nil); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("want validation error, got %v", err)
		}
	})

	t.Run("cipher descriptor on plain message", func(t *testing.T) {
		if _, err := NewMessage("conv1", "alice", "hi", TypePlain, validCipher(), nil); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("want validation error, got %v", err)
		}
	})

	t.Run("payment without descriptor", func(t *testing.T) {
		if _, err := NewMessage("conv1", "alice", "sent", TypePayment, nil, nil); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("want validation error, got %v", err)
		}
	})

	t.Run("payment with known status", func(t *testing.T) {
		info := &PaymentInfo{Amount: 0.5, Status: PaymentConfirmed}
		if _, err := NewMessage("conv1", "alice", "sent", TypePayment, nil, info); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("payment with unknown status", func(t *testing.T) {
		info := &PaymentInfo{Amount: 0.5, Status: PaymentStatus("reversed")}
		if _, err := NewMessage("conv1", "alice", "sent", TypePayment, nil, info); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("want validation error, got %v", err)
		}
	})
}

func TestPreviewText(t *testing.T) {
	cipherMsg, err := NewMessage("conv1", "alice", "ciphertext-blob", TypeCipher, validCipher(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := cipherMsg.PreviewText(); got != "Encrypted message" {
		t.Errorf("cipher preview = %q, must be the fixed placeholder", got)
	}
	if strings.Contains(cipherMsg.PreviewText(), "blob") {
		t.Error("cipher preview leaks content")
	}

	plain, err := NewMessage("conv1", "alice", strings.Repeat("a", 500), TypePlain, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := plain.PreviewText(); len(got) != 120 {
		t.Errorf("plain preview length = %d, want truncation to 120", len(got))
	}

	multi, err := NewMessage("conv1", "alice", strings.Repeat("é", 300), TypePlain, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := multi.PreviewText()
	if !utf8.ValidString(got) {
		t.Error("preview split a multi-byte rune")
	}
	if utf8.RuneCountInString(got) != 120 {
		t.Errorf("preview rune count = %d, want 120", utf8.RuneCountInString(got))
	}
}
