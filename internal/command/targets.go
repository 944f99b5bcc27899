package command

import (
	"context"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"zelador/internal/extract"
	"zelador/internal/jid"
)

// Targets resolves the participants a command nominates. Precedence:
// explicit mentions, then the replied-to participant, then number or id
// arguments (skipping the first skip args, which are subcommand words).
// Every result is canonical and deduplicated.
func Targets(ctx context.Context, resolver Canonicalizer, env *Envelope, skip int) []types.JID {
	var out []types.JID
	seen := make(map[string]bool)
	add := func(j types.JID) {
		if jid.IsEmpty(j) || !jid.IsUser(j) {
			return
		}
		j = resolver.Canonical(ctx, j, types.EmptyJID)
		if key := j.String(); !seen[key] {
			seen[key] = true
			out = append(out, j)
		}
	}

	for _, m := range extract.Mentions(env.Event.Message) {
		add(m)
	}
	if len(out) > 0 {
		return out
	}

	if ci := extract.ContextInfo(env.Event.Message); ci.GetStanzaID() != "" && ci.GetParticipant() != "" {
		if j, err := types.ParseJID(ci.GetParticipant()); err == nil {
			add(j)
		}
	}
	if len(out) > 0 {
		return out
	}

	if skip > len(env.Args) {
		skip = len(env.Args)
	}
	for _, arg := range env.Args[skip:] {
		arg = strings.TrimPrefix(arg, "@")
		if strings.ContainsRune(arg, '@') {
			if j, err := types.ParseJID(arg); err == nil {
				add(j)
			}
			continue
		}
		if digits := digitsOnly(arg); len(digits) >= 8 {
			add(jid.FromPhone(digits))
		}
	}
	return out
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
