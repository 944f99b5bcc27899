package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zelador/internal/store"
)

func (s *Set) cmdMenu(ctx context.Context, env *Envelope) error {
	var b strings.Builder
	b.WriteString(replyMenuHeader)
	for _, cmd := range s.registry.Commands() {
		if cmd.OwnerOnly && !s.isOwner(env.Sender) {
			continue
		}
		if cmd.GroupOnly && !env.IsGroup {
			continue
		}
		fmt.Fprintf(&b, "\n*%s%s*: %s", env.Prefix, cmd.Name, cmd.Help)
	}
	return s.reply(ctx, env, b.String())
}

func (s *Set) cmdPing(ctx context.Context, env *Envelope) error {
	uptime := time.Since(s.started).Round(time.Second)
	return s.reply(ctx, env, fmt.Sprintf(replyPong, uptime))
}

func (s *Set) cmdInfo(ctx context.Context, env *Envelope) error {
	g, err := s.groups.GetOrFetch(ctx, env.Chat)
	if err != nil {
		return fmt.Errorf("failed to load group: %w", err)
	}

	admins := 0
	for _, p := range g.Participants {
		if p.IsAdmin() {
			admins++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", g.Subject)
	fmt.Fprintf(&b, "ID: %s\n", g.ID)
	fmt.Fprintf(&b, "Participantes: %d (%d admins)\n", g.ParticipantCount, admins)
	if !g.Creation.IsZero() {
		fmt.Fprintf(&b, "Criado em: %s\n", g.Creation.Format("02/01/2006"))
	}
	if g.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", g.Description)
	}
	cfg := settingsOf(env)
	b.WriteString("\n*Configurações*")
	b.WriteString(flagLine("Boas-vindas", cfg.Welcome))
	b.WriteString(flagLine("Despedida", cfg.Farewell))
	b.WriteString(flagLine("Anti-link", cfg.AntiLink))
	b.WriteString(flagLine("Notícias", cfg.News))
	b.WriteString(flagLine("NSFW", cfg.NSFW))
	b.WriteString(flagLine("Captcha", cfg.Captcha))
	b.WriteString(flagLine("Autofigurinha", cfg.AutoSticker))
	if cfg.Prefix != "" {
		fmt.Fprintf(&b, "\nPrefixo: %s", cfg.Prefix)
	}
	return s.reply(ctx, env, b.String())
}

func flagLine(name string, on bool) string {
	mark := "❌"
	if on {
		mark = "✅"
	}
	return fmt.Sprintf("\n%s %s", mark, name)
}

// settingsOf is a nil-safe view over the envelope settings.
func settingsOf(env *Envelope) *store.GroupSettings {
	if env.Settings == nil {
		return &store.GroupSettings{}
	}
	return env.Settings
}
