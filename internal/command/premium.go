package command

import (
	"context"
	"fmt"
	"strings"

	"zelador/internal/store"
)

// cmdPremium maintains the global premium roster. Entries are canonical
// user ids so membership survives lid/pn flips.
func (s *Set) cmdPremium(ctx context.Context, env *Envelope) error {
	switch strings.ToLower(env.Arg(0)) {
	case "add":
		targets := Targets(ctx, s.resolver, env, 1)
		if len(targets) == 0 {
			return s.reply(ctx, env, replyNoTargets)
		}
		err := s.configs.Mutate(ctx, store.GlobalConfigID, func(cfg map[string]interface{}) {
			list := toStrings(cfg["premium"])
			for _, t := range targets {
				list = appendUnique(list, t.ToNonAD().String())
			}
			cfg["premium"] = list
		})
		if err != nil {
			return err
		}
		return s.reply(ctx, env, fmt.Sprintf(replyPremiumAdded, len(targets)))

	case "remover":
		targets := Targets(ctx, s.resolver, env, 1)
		if len(targets) == 0 {
			return s.reply(ctx, env, replyNoTargets)
		}
		removed := 0
		err := s.configs.Mutate(ctx, store.GlobalConfigID, func(cfg map[string]interface{}) {
			list := toStrings(cfg["premium"])
			for _, t := range targets {
				var changed bool
				if list, changed = removeString(list, t.ToNonAD().String()); changed {
					removed++
				}
			}
			if len(list) == 0 {
				delete(cfg, "premium")
			} else {
				cfg["premium"] = list
			}
		})
		if err != nil {
			return err
		}
		return s.reply(ctx, env, fmt.Sprintf(replyPremiumRemoved, removed))

	case "", "lista":
		global, err := s.configs.GetGlobal(ctx)
		if err != nil {
			return fmt.Errorf("failed to load global settings: %w", err)
		}
		if global == nil || len(global.Premium) == 0 {
			return s.reply(ctx, env, replyPremiumEmpty)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "*Usuários premium* (%d)", len(global.Premium))
		for _, id := range global.Premium {
			user, _, _ := strings.Cut(id, "@")
			fmt.Fprintf(&b, "\n· +%s", user)
		}
		return s.reply(ctx, env, b.String())

	default:
		return s.usage(ctx, env)
	}
}
