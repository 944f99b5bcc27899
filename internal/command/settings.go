package command

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

func (s *Set) cmdWelcome(ctx context.Context, env *Envelope) error {
	switch strings.ToLower(env.Arg(0)) {
	case "on":
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{"welcome": true}); err != nil {
			return err
		}
		return s.reply(ctx, env, fmt.Sprintf(replyWelcomeOn, env.Prefix))
	case "off":
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{"welcome": nil}); err != nil {
			return err
		}
		return s.reply(ctx, env, replyWelcomeOff)
	case "set":
		text := env.TailAfter(1)
		if text == "" {
			return s.usage(ctx, env)
		}
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{"welcome": true, "welcome_text": text}); err != nil {
			return err
		}
		return s.reply(ctx, env, replyWelcomeSet)
	default:
		return s.usage(ctx, env)
	}
}

func (s *Set) cmdFarewell(ctx context.Context, env *Envelope) error {
	switch strings.ToLower(env.Arg(0)) {
	case "on":
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{"farewell": true}); err != nil {
			return err
		}
		return s.reply(ctx, env, fmt.Sprintf(replyFarewellOn, env.Prefix))
	case "off":
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{"farewell": nil}); err != nil {
			return err
		}
		return s.reply(ctx, env, replyFarewellOff)
	case "set":
		text := env.TailAfter(1)
		if text == "" {
			return s.usage(ctx, env)
		}
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{"farewell": true, "farewell_text": text}); err != nil {
			return err
		}
		return s.reply(ctx, env, replyFarewellSet)
	default:
		return s.usage(ctx, env)
	}
}

func (s *Set) cmdAntiLink(ctx context.Context, env *Envelope) error {
	switch strings.ToLower(env.Arg(0)) {
	case "on":
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{"antilink": true}); err != nil {
			return err
		}
		return s.reply(ctx, env, replyAntiLinkOn)
	case "off":
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{"antilink": nil}); err != nil {
			return err
		}
		return s.reply(ctx, env, replyAntiLinkOff)

	case "lista":
		cfg := settingsOf(env)
		var b strings.Builder
		b.WriteString("*Liberados no anti-link*")
		if len(cfg.AllowedNetworks) == 0 && len(cfg.AllowedDomains) == 0 {
			b.WriteString("\nNenhuma rede ou domínio liberado.")
		}
		for _, n := range cfg.AllowedNetworks {
			fmt.Fprintf(&b, "\n· %s (rede)", n)
		}
		for _, d := range cfg.AllowedDomains {
			fmt.Fprintf(&b, "\n· %s", d)
		}
		return s.reply(ctx, env, b.String())

	case "liberar":
		name := normalizeAllowArg(env.Arg(1))
		if name == "" {
			return s.usage(ctx, env)
		}
		key := "allowed_domains"
		if KnownNetwork(name) {
			key = "allowed_networks"
		}
		err := s.configs.Mutate(ctx, env.Chat.String(), func(cfg map[string]interface{}) {
			cfg[key] = appendUnique(toStrings(cfg[key]), name)
		})
		if err != nil {
			return err
		}
		return s.reply(ctx, env, fmt.Sprintf(replyAntiLinkFreed, name))

	case "bloquear":
		name := normalizeAllowArg(env.Arg(1))
		if name == "" {
			return s.usage(ctx, env)
		}
		err := s.configs.Mutate(ctx, env.Chat.String(), func(cfg map[string]interface{}) {
			for _, key := range []string{"allowed_networks", "allowed_domains"} {
				if list, changed := removeString(toStrings(cfg[key]), name); changed {
					if len(list) == 0 {
						delete(cfg, key)
					} else {
						cfg[key] = list
					}
				}
			}
		})
		if err != nil {
			return err
		}
		return s.reply(ctx, env, fmt.Sprintf(replyAntiLinkBarred, name))

	default:
		return s.usage(ctx, env)
	}
}

func (s *Set) cmdPrefix(ctx context.Context, env *Envelope) error {
	switch strings.ToLower(env.Arg(0)) {
	case "", "status":
		return s.reply(ctx, env, fmt.Sprintf(replyPrefixStatus, env.Prefix))
	case "set":
		p := env.Arg(1)
		if p == "" || utf8.RuneCountInString(p) > 3 || strings.ContainsAny(p, " \t@") {
			return s.usage(ctx, env)
		}
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{"prefix": p}); err != nil {
			return err
		}
		return s.reply(ctx, env, fmt.Sprintf(replyPrefixSet, p))
	case "reset":
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{"prefix": nil}); err != nil {
			return err
		}
		return s.reply(ctx, env, fmt.Sprintf(replyPrefixReset, s.prefix))
	default:
		return s.usage(ctx, env)
	}
}

func (s *Set) cmdNews(ctx context.Context, env *Envelope) error {
	return s.toggle(ctx, env, "news", settingsOf(env).News, replyNewsOn, replyNewsOff)
}

func (s *Set) cmdNSFW(ctx context.Context, env *Envelope) error {
	return s.toggle(ctx, env, "nsfw", settingsOf(env).NSFW, replyNSFWOn, replyNSFWOff)
}

func (s *Set) cmdAutoSticker(ctx context.Context, env *Envelope) error {
	return s.toggle(ctx, env, "autosticker", settingsOf(env).AutoSticker, replyStickerOn, replyStickerOff)
}

func (s *Set) cmdCaptcha(ctx context.Context, env *Envelope) error {
	return s.toggle(ctx, env, "captcha", settingsOf(env).Captcha, replyCaptchaOn, replyCaptchaOff)
}

// toggle flips a boolean settings key. Off deletes the key so untouched
// groups keep an empty settings blob; status reports the current state.
func (s *Set) toggle(ctx context.Context, env *Envelope, key string, current bool, onReply, offReply string) error {
	switch strings.ToLower(env.Arg(0)) {
	case "on":
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{key: true}); err != nil {
			return err
		}
		return s.reply(ctx, env, onReply)
	case "off":
		if err := s.configs.Merge(ctx, env.Chat, map[string]interface{}{key: nil}); err != nil {
			return err
		}
		return s.reply(ctx, env, offReply)
	case "", "status":
		if current {
			return s.reply(ctx, env, onReply)
		}
		return s.reply(ctx, env, offReply)
	default:
		return s.usage(ctx, env)
	}
}

// normalizeAllowArg lowercases a network name or reduces a URL to its host.
func normalizeAllowArg(arg string) string {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if arg == "" || KnownNetwork(arg) {
		return arg
	}
	return hostOf(arg)
}

// toStrings coerces a decoded JSON array (or a native one) to []string.
func toStrings(v interface{}) []string {
	switch list := v.(type) {
	case nil:
		return nil
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func appendUnique(list []string, v string) []string {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) ([]string, bool) {
	out := list[:0]
	changed := false
	for _, item := range list {
		if strings.EqualFold(item, v) {
			changed = true
			continue
		}
		out = append(out, item)
	}
	return out, changed
}
