package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/cache"
)

// captchaWindow is how long a newcomer has to react before removal.
const captchaWindow = 5 * time.Minute

// Greeter welcomes arriving members, says goodbye to leaving ones, and
// runs the reaction captcha. It satisfies the router's Greeter contract.
type Greeter struct {
	send     Replier
	configs  SettingsStore
	groups   GroupDirectory
	resolver Canonicalizer
	pending  *cache.Cache[any]
	window   time.Duration
	self     func() types.JID
	log      waLog.Logger

	ops GroupOps
}

// NewGreeter creates the greeter. pending is the shared short-lived event
// cache; captcha verification state lives there.
func NewGreeter(replier Replier, configs SettingsStore, groups GroupDirectory, resolver Canonicalizer, pending *cache.Cache[any], self func() types.JID, log waLog.Logger) *Greeter {
	return &Greeter{
		send:     replier,
		configs:  configs,
		groups:   groups,
		resolver: resolver,
		pending:  pending,
		window:   captchaWindow,
		self:     self,
		log:      log.Sub("Greeter"),
	}
}

// SetOps attaches the provider session (delayed initialization).
func (g *Greeter) SetOps(ops GroupOps) {
	g.ops = ops
}

// MembersJoined sends the welcome text and arms the captcha for each
// newcomer, per the group's settings.
func (g *Greeter) MembersJoined(ctx context.Context, group types.JID, members []types.JID) {
	settings, err := g.configs.Get(ctx, group)
	if err != nil {
		g.log.Warnf("Failed to load settings for %s: %v", group, err)
		return
	}
	if !settings.Welcome && !settings.Captcha {
		return
	}

	subject, desc := g.groupNames(ctx, group)

	for _, member := range members {
		id := g.resolver.Canonical(ctx, member, types.EmptyJID)
		if self := g.self(); !self.IsEmpty() && id.User == self.User {
			continue
		}
		if settings.Welcome {
			text := renderTemplate(orDefault(settings.WelcomeText, replyWelcomeDefault), id.User, subject, desc)
			if _, err := g.send.SendTagged(ctx, group, text, []types.JID{id}); err != nil {
				g.log.Warnf("Failed to welcome %s in %s: %v", id, group, err)
			}
		}
		if settings.Captcha {
			g.armCaptcha(ctx, group, id)
		}
	}
}

// MembersLeft sends the farewell text when the group has it enabled.
func (g *Greeter) MembersLeft(ctx context.Context, group types.JID, members []types.JID) {
	settings, err := g.configs.Get(ctx, group)
	if err != nil {
		g.log.Warnf("Failed to load settings for %s: %v", group, err)
		return
	}

	subject, desc := "", ""
	if settings.Farewell {
		subject, desc = g.groupNames(ctx, group)
	}

	for _, member := range members {
		id := g.resolver.Canonical(ctx, member, types.EmptyJID)
		g.pending.Delete(captchaKey(group, id))
		if !settings.Farewell {
			continue
		}
		if self := g.self(); !self.IsEmpty() && id.User == self.User {
			continue
		}
		text := renderTemplate(orDefault(settings.FarewellText, replyFarewellDefault), id.User, subject, desc)
		if _, err := g.send.SendTagged(ctx, group, text, []types.JID{id}); err != nil {
			g.log.Warnf("Failed to send farewell for %s in %s: %v", id, group, err)
		}
	}
}

// VerifyReaction clears a pending captcha when the newcomer reacts to any
// message in the group.
func (g *Greeter) VerifyReaction(ctx context.Context, evt *events.Message) {
	if !evt.Info.IsGroup {
		return
	}
	member := g.resolver.Canonical(ctx, evt.Info.Sender, evt.Info.SenderAlt)
	key := captchaKey(evt.Info.Chat, member)
	if _, pending := g.pending.Peek(key); !pending {
		return
	}
	g.pending.Delete(key)
	g.log.Infof("Captcha verified for %s in %s", member, evt.Info.Chat)
	confirm := fmt.Sprintf(replyCaptchaOK, member.User)
	if _, err := g.send.SendTagged(ctx, evt.Info.Chat, confirm, []types.JID{member}); err != nil {
		g.log.Debugf("Failed to confirm captcha for %s: %v", member, err)
	}
}

// armCaptcha opens the verification window. The cache entry outlives the
// timer so the expiry check never races the cache's own TTL.
func (g *Greeter) armCaptcha(ctx context.Context, group, member types.JID) {
	key := captchaKey(group, member)
	g.pending.SetTTL(key, time.Now().UTC(), 2*g.window)

	notice := fmt.Sprintf(replyCaptcha, member.User, int(g.window.Minutes()))
	if _, err := g.send.SendTagged(ctx, group, notice, []types.JID{member}); err != nil {
		g.log.Warnf("Failed to send captcha notice in %s: %v", group, err)
	}

	time.AfterFunc(g.window, func() {
		if _, pending := g.pending.Peek(key); !pending {
			return
		}
		g.pending.Delete(key)
		g.expel(group, member)
	})
}

// expel removes a member whose verification window closed unanswered.
func (g *Greeter) expel(group, member types.JID) {
	if g.ops == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	g.log.Infof("Captcha expired for %s in %s, removing", member, group)
	if _, err := g.ops.UpdateGroupParticipants(ctx, group, []types.JID{member}, whatsmeow.ParticipantChangeRemove); err != nil {
		g.log.Warnf("Failed to remove %s from %s: %v", member, group, err)
	}
}

func (g *Greeter) groupNames(ctx context.Context, group types.JID) (subject, desc string) {
	meta, err := g.groups.GetOrFetch(ctx, group)
	if err != nil || meta == nil {
		return "", ""
	}
	return meta.Subject, meta.Description
}

// captchaKey namespaces pending verifications inside the shared event cache.
func captchaKey(group, member types.JID) string {
	return "captcha|" + group.String() + "|" + member.ToNonAD().String()
}

// renderTemplate fills the {{user}}, {{group}} and {{desc}} placeholders.
// {{user}} becomes a mention tag; the caller tags the same id.
func renderTemplate(tpl, user, group, desc string) string {
	return strings.NewReplacer(
		"{{user}}", "@"+user,
		"{{group}}", group,
		"{{desc}}", desc,
	).Replace(tpl)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
