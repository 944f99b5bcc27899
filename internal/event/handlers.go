package event

import (
	"context"
	"crypto/sha256"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"zelador/internal/extract"
	"zelador/internal/groups"
	"zelador/internal/metrics"
	"zelador/internal/store"
)

// msgKey is the message cache key. IDs are only unique per chat.
func msgKey(chat types.JID, id string) string {
	return chat.String() + "|" + id
}

func (r *Router) handleMessage(ctx context.Context, e *events.Message) {
	start := time.Now()
	defer func() {
		metrics.MessageHandleSeconds.Observe(time.Since(start).Seconds())
	}()

	info := e.Info
	r.log.Debugf("Message %s from %s in %s", info.ID, info.Sender, info.Chat)

	sender := r.resolver.Canonical(ctx, info.Sender, info.SenderAlt)
	msg := extract.FromEvent(e, sender)

	r.queue.EnqueueMessage(msg)
	r.tier.Messages.Set(msgKey(info.Chat, info.ID), msg)
	r.tier.Recents.Push(info.Chat.String(), info.ID)
	r.rememberChat(info)
	r.rememberSender(info, sender)

	if info.IsGroup {
		if _, err := r.groups.GetOrFetch(ctx, info.Chat); err != nil {
			r.log.Debugf("Failed to refresh group %s: %v", info.Chat, err)
		}
	}

	content := extract.Unwrap(e.Message)
	if update := content.GetPollUpdateMessage(); update != nil {
		r.handlePollVote(ctx, e, sender, update)
		return
	}
	if content.GetReactionMessage() != nil {
		r.greeter.VerifyReaction(ctx, e)
		return
	}

	if err := r.commands.Dispatch(ctx, e, msg); err != nil {
		metrics.EventErrorsTotal.WithLabelValues("Message").Inc()
		r.log.Warnf("Failed to handle message %s: %v", info.ID, err)
	}
}

// rememberChat keeps the chat row alive without a write per message: the
// upsert is skipped while the chat is cached and its name is unchanged.
func (r *Router) rememberChat(info types.MessageInfo) {
	name := ""
	if !info.IsGroup && !info.IsFromMe && info.PushName != "" {
		name = info.PushName
	}
	key := info.Chat.String()
	if cached, ok := r.tier.Chats.Get(key); ok {
		if name == "" || cached.Name == name {
			return
		}
	}
	chat := &store.Chat{ID: info.Chat, Name: name, UpdatedAt: info.Timestamp.UTC()}
	r.tier.Chats.Set(key, chat)
	r.queue.EnqueueChat(chat, store.ChatUpsertOptions{Partial: true})
}

// rememberSender records the sender's push name when it is new or changed.
func (r *Router) rememberSender(info types.MessageInfo, sender types.JID) {
	if info.IsFromMe || info.PushName == "" {
		return
	}
	id := sender.ToNonAD()
	key := id.String()
	cached, ok := r.tier.Contacts.Get(key)
	if ok && cached.PushName == info.PushName {
		return
	}
	c := &store.Contact{ID: id, PushName: info.PushName, UpdatedAt: time.Now().UTC()}
	if ok {
		c.Name = cached.Name
		c.LID = cached.LID
	}
	if c.LID.IsEmpty() && info.Sender.Server == types.HiddenUserServer {
		c.LID = info.Sender.ToNonAD()
	}
	r.tier.Contacts.Set(key, c)
	r.queue.EnqueueContact(c)
}

func (r *Router) handlePollVote(ctx context.Context, e *events.Message, voter types.JID, update *waE2E.PollUpdateMessage) {
	vote, err := r.polls.DecryptPollVote(ctx, e)
	if err != nil {
		r.log.Warnf("Failed to decrypt poll vote from %s: %v", e.Info.Sender, err)
		return
	}
	pollID := update.GetPollCreationMessageKey().GetID()
	original := r.lookupMessage(ctx, e.Info.Chat, pollID)
	if original == nil {
		r.log.Infof("Poll vote in %s references unknown poll %s", e.Info.Chat, pollID)
		return
	}
	parsed, err := extract.ParseEnvelope(original.Raw)
	if err != nil {
		r.log.Warnf("Failed to parse stored poll %s: %v", pollID, err)
		return
	}
	creation := pollCreation(extract.Unwrap(parsed))
	if creation == nil {
		r.log.Warnf("Stored message %s is not a poll", pollID)
		return
	}
	chosen := matchPollOptions(creation.GetOptions(), vote.GetSelectedOptions())
	r.log.Infof("Poll %q in %s: %s voted for %s",
		creation.GetName(), e.Info.Chat, voter, strings.Join(chosen, ", "))
}

// lookupMessage checks the cache before the store.
func (r *Router) lookupMessage(ctx context.Context, chat types.JID, id string) *store.Message {
	if m, ok := r.tier.Messages.Get(msgKey(chat, id)); ok {
		return m
	}
	m, err := r.messages.Get(ctx, chat, id)
	if err != nil {
		r.log.Warnf("Failed to load message %s: %v", id, err)
		return nil
	}
	return m
}

func pollCreation(m *waE2E.Message) *waE2E.PollCreationMessage {
	if m == nil {
		return nil
	}
	if p := m.GetPollCreationMessage(); p != nil {
		return p
	}
	if p := m.GetPollCreationMessageV2(); p != nil {
		return p
	}
	return m.GetPollCreationMessageV3()
}

// matchPollOptions resolves the hashed options carried by a vote back to the
// option names of the poll. Votes carry SHA-256 digests of the names.
func matchPollOptions(options []*waE2E.PollCreationMessage_Option, selected [][]byte) []string {
	byHash := make(map[[sha256.Size]byte]string, len(options))
	for _, opt := range options {
		byHash[sha256.Sum256([]byte(opt.GetOptionName()))] = opt.GetOptionName()
	}
	if len(selected) == 0 {
		return []string{"nothing (vote withdrawn)"}
	}
	names := make([]string, 0, len(selected))
	for _, sel := range selected {
		var key [sha256.Size]byte
		copy(key[:], sel)
		if name, ok := byHash[key]; ok {
			names = append(names, name)
		} else {
			names = append(names, "an unknown option")
		}
	}
	return names
}

func (r *Router) handleHistorySync(ctx context.Context, e *events.HistorySync) {
	data := extract.FromHistorySync(e, r.Self(), r.historyLimit)
	for _, m := range data.Mappings {
		r.resolver.Observe(ctx, m.LID, m.JID, m.Source)
	}
	for _, c := range data.Contacts {
		r.queue.EnqueueContact(c)
	}
	for _, ch := range data.Chats {
		r.queue.EnqueueChat(ch, store.ChatUpsertOptions{Partial: true})
	}
	for _, m := range data.Messages {
		r.queue.EnqueueMessage(m)
	}
	r.log.Infof("History sync %s: %d chats, %d messages, %d contacts, %d identity mappings",
		e.Data.GetSyncType(), len(data.Chats), len(data.Messages), len(data.Contacts), len(data.Mappings))
}

func (r *Router) handleGroupInfo(ctx context.Context, e *events.GroupInfo) {
	apply := func(action groups.ParticipantAction, members []types.JID) {
		if err := r.groups.ApplyParticipantChange(ctx, e.JID, action, members); err != nil {
			r.log.Warnf("Failed to apply %s change in %s: %v", action, e.JID, err)
		}
	}
	if len(e.Join) > 0 {
		r.log.Infof("%d member(s) joined %s", len(e.Join), e.JID)
		apply(groups.ActionJoin, e.Join)
		r.greeter.MembersJoined(ctx, e.JID, e.Join)
	}
	if len(e.Leave) > 0 {
		r.log.Infof("%d member(s) left %s", len(e.Leave), e.JID)
		apply(groups.ActionLeave, e.Leave)
		r.greeter.MembersLeft(ctx, e.JID, e.Leave)
	}
	if len(e.Promote) > 0 {
		apply(groups.ActionPromote, e.Promote)
	}
	if len(e.Demote) > 0 {
		apply(groups.ActionDemote, e.Demote)
	}
	if e.Name != nil || e.Topic != nil || e.Announce != nil || e.Locked != nil || e.Ephemeral != nil {
		r.groups.Invalidate(e.JID)
		r.log.Debugf("Group %s settings changed, cached metadata invalidated", e.JID)
	}
}

func (r *Router) handleJoinedGroup(ctx context.Context, e *events.JoinedGroup) {
	r.log.Infof("Joined group %s (%s)", e.JID, e.Name)
	if err := r.groups.Remember(ctx, &e.GroupInfo); err != nil {
		r.log.Warnf("Failed to store group %s: %v", e.JID, err)
	}
	chat := &store.Chat{ID: e.JID, Name: e.Name, UpdatedAt: time.Now().UTC()}
	r.tier.Chats.Set(e.JID.String(), chat)
	r.queue.EnqueueChat(chat, store.ChatUpsertOptions{Partial: true})
}

// upsertContact merges a partial update over the cached contact and queues
// the write.
func (r *Router) upsertContact(patch *store.Contact) {
	key := patch.ID.String()
	if cached, ok := r.tier.Contacts.Get(key); ok {
		if patch.Name == "" {
			patch.Name = cached.Name
		}
		if patch.PushName == "" {
			patch.PushName = cached.PushName
		}
		if patch.LID.IsEmpty() {
			patch.LID = cached.LID
		}
	}
	r.tier.Contacts.Set(key, patch)
	r.queue.EnqueueContact(patch)
}

func (r *Router) handleContact(e *events.Contact) {
	name := e.Action.GetFullName()
	if name == "" {
		name = e.Action.GetFirstName()
	}
	if name == "" {
		return
	}
	r.log.Debugf("Contact update for %s", e.JID)
	r.upsertContact(&store.Contact{ID: e.JID.ToNonAD(), Name: name, UpdatedAt: time.Now().UTC()})
}

func (r *Router) handlePushName(e *events.PushName) {
	if e.NewPushName == "" {
		return
	}
	r.log.Debugf("Push name for %s is now %q", e.JID, e.NewPushName)
	r.upsertContact(&store.Contact{ID: e.JID.ToNonAD(), PushName: e.NewPushName, UpdatedAt: time.Now().UTC()})
}

func (r *Router) handleBusinessName(e *events.BusinessName) {
	if e.NewBusinessName == "" {
		return
	}
	r.log.Debugf("Business name for %s is now %q", e.JID, e.NewBusinessName)
	r.upsertContact(&store.Contact{ID: e.JID.ToNonAD(), Name: e.NewBusinessName, UpdatedAt: time.Now().UTC()})
}

func (r *Router) handlePairSuccess(ctx context.Context, e *events.PairSuccess) {
	r.SetSelf(e.ID)
	if !e.LID.IsEmpty() {
		r.resolver.Observe(ctx, e.LID, e.ID.ToNonAD(), store.MappingSourceLID)
	}
	r.log.Infof("Paired as %s", e.ID)
}

func (r *Router) handleDeleteChat(ctx context.Context, jid types.JID) {
	if err := r.chats.Delete(ctx, jid); err != nil {
		r.log.Warnf("Failed to delete chat %s: %v", jid, err)
	}
	r.tier.Chats.Delete(jid.String())
	r.tier.Recents.Drop(jid.String())
	r.log.Infof("Chat %s deleted", jid)
}
