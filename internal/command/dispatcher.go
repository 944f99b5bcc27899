package command

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/extract"
	"zelador/internal/metrics"
	"zelador/internal/send"
	"zelador/internal/store"
)

// Deps collects the dispatcher's collaborators.
type Deps struct {
	Registry *Registry
	Send     Replier
	Configs  SettingsStore
	Groups   GroupDirectory
	AntiLink *AntiLink
	Sticker  HandlerFunc

	Prefix   string
	Trigger  string
	LoginURL string
	Emoji    string
	Owner    types.JID
	Self     func() types.JID
	Log      waLog.Logger
}

// Dispatcher turns inbound messages into command invocations. At most one
// handler runs per message. It satisfies the router's Commander contract.
type Dispatcher struct {
	registry *Registry
	send     Replier
	configs  SettingsStore
	groups   GroupDirectory
	antilink *AntiLink
	sticker  HandlerFunc

	prefix   string
	trigger  string
	loginURL string
	emoji    string
	owner    types.JID
	self     func() types.JID
	log      waLog.Logger
}

// NewDispatcher creates the dispatcher.
func NewDispatcher(d Deps) *Dispatcher {
	return &Dispatcher{
		registry: d.Registry,
		send:     d.Send,
		configs:  d.Configs,
		groups:   d.Groups,
		antilink: d.AntiLink,
		sticker:  d.Sticker,
		prefix:   d.Prefix,
		trigger:  d.Trigger,
		loginURL: d.LoginURL,
		emoji:    d.Emoji,
		owner:    d.Owner,
		self:     d.Self,
		log:      d.Log.Sub("Commands"),
	}
}

// Dispatch processes one inbound message: settings and prefix resolution,
// link policy, the login trigger, then prefix command routing.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *events.Message, msg *store.Message) error {
	env := &Envelope{
		Event:      evt,
		Record:     msg,
		Chat:       evt.Info.Chat,
		Sender:     msg.SenderID,
		IsGroup:    evt.Info.IsGroup,
		Text:       strings.TrimSpace(msg.Content),
		Prefix:     d.prefix,
		Settings:   &store.GroupSettings{},
		Expiration: extract.Expiration(evt.Message),
	}

	if env.IsGroup {
		settings, err := d.configs.Get(ctx, env.Chat)
		if err != nil {
			d.log.Warnf("Failed to load settings for %s: %v", env.Chat, err)
		} else {
			env.Settings = settings
			if settings.Prefix != "" {
				env.Prefix = settings.Prefix
			}
		}
	}

	if env.IsGroup && !evt.Info.IsFromMe && d.antilink != nil {
		if blocked := d.antilink.Enforce(ctx, env); blocked {
			return nil
		}
	}

	if env.Text == "" {
		return nil
	}

	if d.trigger != "" && strings.EqualFold(env.Text, d.trigger) {
		metrics.CommandsTotal.WithLabelValues(d.trigger).Inc()
		return d.login(ctx, env)
	}

	if !strings.HasPrefix(env.Text, env.Prefix) {
		if env.IsGroup && env.Settings.AutoSticker && d.sticker != nil {
			return d.sticker(ctx, env)
		}
		return nil
	}

	name, tail := splitCommand(strings.TrimPrefix(env.Text, env.Prefix))
	if name == "" {
		return nil
	}
	env.Command = strings.ToLower(name)
	env.Tail = tail
	env.Args = strings.Fields(tail)

	// Acknowledge receipt before the handler runs; failures don't matter.
	if d.emoji != "" {
		if err := d.send.React(ctx, env.Chat, evt.Info.Sender, evt.Info.ID, d.emoji); err != nil {
			d.log.Debugf("Failed to react to %s: %v", evt.Info.ID, err)
		}
	}

	cmd, ok := d.registry.Lookup(env.Command)
	if !ok {
		metrics.CommandsTotal.WithLabelValues("unknown").Inc()
		return d.reply(ctx, env, fmt.Sprintf(replyUnknown, env.Command, env.Prefix))
	}
	metrics.CommandsTotal.WithLabelValues(env.Command).Inc()

	if denial := d.gate(ctx, env, cmd); denial != "" {
		return d.reply(ctx, env, denial)
	}

	d.send.Composing(ctx, env.Chat)

	if err := d.invoke(ctx, env, cmd); err != nil {
		d.log.Errorf("Command %s from %s failed: %v", env.Command, env.Sender, err)
		return d.reply(ctx, env, replyFailure)
	}
	return nil
}

// gate enforces the command's flags, returning the denial reply or "".
// The configured owner bypasses group admin checks.
func (d *Dispatcher) gate(ctx context.Context, env *Envelope, cmd *Command) string {
	if cmd.OwnerOnly && !d.isOwner(env.Sender) {
		return replyOwnerOnly
	}
	if cmd.GroupOnly && !env.IsGroup {
		return replyGroupOnly
	}
	if !env.IsGroup {
		return ""
	}
	if cmd.AdminOnly && !d.isOwner(env.Sender) && !d.groups.IsAdmin(ctx, env.Chat, env.Sender) {
		return replyAdminOnly
	}
	if cmd.BotAdmin && !d.groups.IsAdmin(ctx, env.Chat, d.self()) {
		return replyBotNotAdmin
	}
	return ""
}

// invoke runs the handler, containing panics to the one message.
func (d *Dispatcher) invoke(ctx context.Context, env *Envelope, cmd *Command) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s: %v", cmd.Name, rec)
		}
	}()
	return cmd.Run(ctx, env)
}

// login answers the plain-text login trigger with a personal access link.
// In a group the link is withheld and the sender redirected to private chat.
func (d *Dispatcher) login(ctx context.Context, env *Envelope) error {
	if env.IsGroup {
		return d.reply(ctx, env, fmt.Sprintf(replyLoginInGroup, d.trigger))
	}
	link := fmt.Sprintf("%s/%s", strings.TrimRight(d.loginURL, "/"), env.Sender.User)
	return d.reply(ctx, env, fmt.Sprintf(replyLogin, link))
}

func (d *Dispatcher) isOwner(id types.JID) bool {
	return !d.owner.IsEmpty() && id.User == d.owner.User
}

func (d *Dispatcher) reply(ctx context.Context, env *Envelope, text string) error {
	_, err := d.send.SendText(ctx, env.Chat, text,
		send.WithQuoted(env.Event), send.WithEphemeral(env.Expiration))
	return err
}
