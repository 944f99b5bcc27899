package command

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/send"
)

var (
	// Explicit links: a scheme, www, or an invite shortener.
	linkPattern = regexp.MustCompile(`(?i)(?:https?://|www\.|wa\.me/|chat\.whatsapp\.com/)\S+`)

	// Bare domains with a known ending, for senders who drop the scheme.
	domainPattern = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]{0,62}(?:\.[a-z0-9][a-z0-9-]{0,62})*\.(?:com|net|org|io|gg|app|dev|me|br|co|xyz|site|online|shop|club|info|biz|tv|cc|ly|to|be|tk)\b(?:/\S*)?`)
)

// networkDomains maps allow-list network names to the domains they cover.
var networkDomains = map[string][]string{
	"instagram": {"instagram.com", "instagr.am", "ig.me"},
	"facebook":  {"facebook.com", "fb.com", "fb.watch", "fb.me"},
	"youtube":   {"youtube.com", "youtu.be"},
	"twitter":   {"twitter.com", "x.com", "t.co"},
	"x":         {"x.com", "twitter.com", "t.co"},
	"tiktok":    {"tiktok.com"},
	"telegram":  {"t.me", "telegram.me", "telegram.org"},
	"spotify":   {"spotify.com"},
	"twitch":    {"twitch.tv"},
	"kwai":      {"kwai.com", "kwai-video.com"},
	"pinterest": {"pinterest.com", "pin.it"},
}

// KnownNetwork reports whether name is a recognized allow-list network.
func KnownNetwork(name string) bool {
	_, ok := networkDomains[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// DetectLink returns the first link in text not covered by the allow
// lists, and whether one was found. Group invite links are never allowed.
func DetectLink(text string, networks, domains []string) (string, bool) {
	allowed := allowedSet(networks, domains)
	for _, m := range linkPattern.FindAllString(text, -1) {
		if isInvite(m) || !allowed(hostOf(m)) {
			return m, true
		}
	}
	for _, m := range domainPattern.FindAllString(text, -1) {
		if !allowed(hostOf(m)) {
			return m, true
		}
	}
	return "", false
}

func isInvite(link string) bool {
	return strings.Contains(strings.ToLower(link), "chat.whatsapp.com/")
}

// hostOf normalizes a match down to its bare host.
func hostOf(link string) string {
	s := strings.ToLower(link)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, ".")
}

// allowedSet builds the host predicate from the group's allow lists. A
// host passes when it equals an allowed domain or is a subdomain of one.
func allowedSet(networks, domains []string) func(string) bool {
	all := make([]string, 0, len(domains)+2*len(networks))
	for _, d := range domains {
		all = append(all, hostOf(strings.TrimSpace(d)))
	}
	for _, n := range networks {
		all = append(all, networkDomains[strings.ToLower(strings.TrimSpace(n))]...)
	}
	return func(host string) bool {
		for _, d := range all {
			if d == "" {
				continue
			}
			if host == d || strings.HasSuffix(host, "."+d) {
				return true
			}
		}
		return false
	}
}

// AntiLink enforces the per-group link policy: offending messages from
// non-admins are revoked and the sender removed; admins get a notice only.
type AntiLink struct {
	send   Replier
	groups GroupDirectory
	self   func() types.JID
	log    waLog.Logger

	ops GroupOps
}

// NewAntiLink creates the enforcer. Ops is attached after connect.
func NewAntiLink(replier Replier, groups GroupDirectory, self func() types.JID, log waLog.Logger) *AntiLink {
	return &AntiLink{
		send:   replier,
		groups: groups,
		self:   self,
		log:    log.Sub("AntiLink"),
	}
}

// SetOps attaches the provider session (delayed initialization).
func (a *AntiLink) SetOps(ops GroupOps) {
	a.ops = ops
}

// Enforce applies the link policy to one inbound group message. It reports
// whether the message was blocked and processing must stop. The bot's own
// messages are never targeted.
func (a *AntiLink) Enforce(ctx context.Context, env *Envelope) bool {
	if env.Settings == nil || !env.Settings.AntiLink {
		return false
	}
	link, found := DetectLink(env.Text, env.Settings.AllowedNetworks, env.Settings.AllowedDomains)
	if !found {
		return false
	}

	if self := a.self(); !self.IsEmpty() && env.Sender.User == self.User {
		return false
	}

	if a.groups.IsAdmin(ctx, env.Chat, env.Sender) {
		if _, err := a.send.SendText(ctx, env.Chat, replyAntiLinkAdmin,
			send.WithQuoted(env.Event), send.WithEphemeral(env.Expiration)); err != nil {
			a.log.Debugf("Failed to notify admin link in %s: %v", env.Chat, err)
		}
		return false
	}

	a.log.Infof("Link blocked in %s from %s: %s", env.Chat, env.Sender, link)

	if err := a.send.Revoke(ctx, env.Chat, env.Event.Info.Sender, env.Event.Info.ID); err != nil {
		a.log.Warnf("Failed to revoke %s in %s: %v", env.Event.Info.ID, env.Chat, err)
	}
	if a.ops != nil {
		if _, err := a.ops.UpdateGroupParticipants(ctx, env.Chat,
			[]types.JID{env.Event.Info.Sender}, whatsmeow.ParticipantChangeRemove); err != nil {
			a.log.Warnf("Failed to remove %s from %s: %v", env.Sender, env.Chat, err)
		}
	}
	notice := fmt.Sprintf(replyAntiLinkRemoved, env.Sender.User)
	if _, err := a.send.SendTagged(ctx, env.Chat, notice, []types.JID{env.Sender}); err != nil {
		a.log.Debugf("Failed to post removal notice in %s: %v", env.Chat, err)
	}
	return true
}
