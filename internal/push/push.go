// Package push is the out-of-band delivery path for identities with no
// live session. It owns the whole DeviceEndpoint validity lifecycle:
// nothing outside this package prunes a token.
package push

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/store"
)

const maxTokenLen = 512

type Fallback struct {
	users   store.Users
	gateway Gateway
	logger  zerolog.Logger
}

func New(users store.Users, gateway Gateway, logger zerolog.Logger) *Fallback {
	return &Fallback{
		users:   users,
		gateway: gateway,
		logger:  logger.With().Str("component", "push").Logger(),
	}
}

// NotifyIdentity sends a notification to every registered endpoint of
// owner. Endpoints the gateway reports permanently invalid are pruned from
// owner's set immediately; transient failures are left untouched.
func (f *Fallback) NotifyIdentity(ctx context.Context, owner identity.Canonical, title, body string, data map[string]string) error {
	tokens, err := f.users.DeviceTokens(ctx, owner)
	if err != nil {
		return err
	}

	valid := sanitize(tokens)
	if len(valid) == 0 {
		f.logger.Debug().Str("identity", string(owner)).Msg("no valid endpoints, nothing to send")
		return nil
	}

	results, err := f.gateway.Send(ctx, valid, title, body, data)
	if err != nil {
		return err
	}

	var sent, transient int
	var permanent []string
	for _, r := range results {
		switch r.Code {
		case CodeOK:
			sent++
		case CodePermanent:
			permanent = append(permanent, r.Token)
		default:
			transient++
		}
	}

	if len(permanent) > 0 {
		if err := f.users.RemoveDeviceTokens(ctx, owner, permanent); err != nil {
			f.logger.Error().Err(err).Str("identity", string(owner)).Msg("prune invalid endpoints")
		} else {
			f.logger.Info().Str("identity", string(owner)).Int("pruned", len(permanent)).Msg("invalid endpoints pruned")
		}
	}

	f.logger.Debug().
		Str("identity", string(owner)).
		Int("sent", sent).
		Int("permanent", len(permanent)).
		Int("transient", transient).
		Msg("push fan-out complete")
	return nil
}

// sanitize deduplicates and drops malformed endpoints before any gateway
// call is made.
func sanitize(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	var out []string
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" || len(t) > maxTokenLen {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
