// Package identity owns the canonical identity representation. A nickname
// is normalized exactly once when it enters the system; everything past the
// boundary stores and compares Canonical values only.
package identity

import (
	"regexp"
	"strings"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
)

// Canonical is a normalized identity: trimmed, lowercased, charset-checked.
type Canonical string

func (c Canonical) String() string { return string(c) }

var nicknamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

// Normalize converts a raw nickname into its canonical form.
func Normalize(raw string) (Canonical, error) {
	s := strings.TrimSpace(raw)
	if !nicknamePattern.MatchString(s) {
		return "", apperr.New(apperr.KindValidation, "nickname must be 3-20 characters of letters, digits or underscore")
	}
	return Canonical(strings.ToLower(s)), nil
}

// Identity is what the verifier hands back for a valid credential.
type Identity struct {
	ID          Canonical
	DisplayName string
}
