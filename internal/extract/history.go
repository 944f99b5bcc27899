package extract

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"zelador/internal/store"
)

// HistoryData is the bounded yield of one history-sync payload.
type HistoryData struct {
	Chats    []*store.Chat
	Messages []*store.Message
	Contacts []*store.Contact
	Mappings []*store.Mapping
}

// FromHistorySync mines a history-sync payload for chats, a bounded slice
// of messages per conversation, push names, and id mappings. ownID names
// the session account for from-me rows.
func FromHistorySync(evt *events.HistorySync, ownID types.JID, perChatLimit int) *HistoryData {
	data := &HistoryData{}
	hs := evt.Data
	now := time.Now().UTC()

	for _, m := range hs.GetPhoneNumberToLidMappings() {
		pn, _ := types.ParseJID(m.GetPnJID())
		lid, _ := types.ParseJID(m.GetLidJID())
		if pn.IsEmpty() || lid.IsEmpty() {
			continue
		}
		data.Mappings = append(data.Mappings, &store.Mapping{
			LID:       lid,
			JID:       pn,
			FirstSeen: now,
			LastSeen:  now,
			Source:    store.MappingSourceLID,
		})
	}

	for _, pn := range hs.GetPushnames() {
		jid, err := types.ParseJID(pn.GetID())
		if err != nil || jid.IsEmpty() || pn.GetPushname() == "" {
			continue
		}
		data.Contacts = append(data.Contacts, &store.Contact{
			ID:       jid,
			PushName: pn.GetPushname(),
		})
	}

	for _, conv := range hs.GetConversations() {
		chat, messages := historyConversation(conv, ownID, perChatLimit)
		if chat == nil {
			continue
		}
		data.Chats = append(data.Chats, chat)
		data.Messages = append(data.Messages, messages...)
	}

	return data
}

func historyConversation(conv *waHistorySync.Conversation, ownID types.JID, limit int) (*store.Chat, []*store.Message) {
	chatID, err := types.ParseJID(conv.GetID())
	if err != nil || chatID.IsEmpty() {
		return nil, nil
	}

	name := conv.GetDisplayName()
	if name == "" {
		name = conv.GetName()
	}
	chat := &store.Chat{ID: chatID, Name: name}

	var messages []*store.Message
	for _, histMsg := range conv.GetMessages() {
		if limit > 0 && len(messages) >= limit {
			break
		}
		if msg := historyMessage(histMsg, chatID, ownID); msg != nil {
			messages = append(messages, msg)
		}
	}
	return chat, messages
}

func historyMessage(histMsg *waHistorySync.HistorySyncMsg, chatID, ownID types.JID) *store.Message {
	webMsg := histMsg.GetMessage()
	if webMsg == nil || webMsg.GetKey().GetID() == "" {
		return nil
	}

	var sender types.JID
	if participant := webMsg.GetParticipant(); participant != "" {
		sender, _ = types.ParseJID(participant)
	}
	if sender.IsEmpty() {
		if webMsg.GetKey().GetFromMe() {
			sender = ownID
		} else if chatID.Server != types.GroupServer {
			sender = chatID
		}
	}
	if sender.IsEmpty() {
		return nil
	}

	var ts time.Time
	if sec := webMsg.GetMessageTimestamp(); sec > 0 {
		ts = time.Unix(int64(sec), 0).UTC()
	}

	inner := webMsg.GetMessage()
	info := rawInfo{
		ID:        webMsg.GetKey().GetID(),
		Chat:      chatID.String(),
		Sender:    sender.String(),
		PushName:  webMsg.GetPushName(),
		Timestamp: ts.Unix(),
		FromMe:    webMsg.GetKey().GetFromMe(),
		Kind:      Kind(inner),
	}

	return &store.Message{
		ChatID:    chatID,
		MessageID: webMsg.GetKey().GetID(),
		SenderID:  sender.ToNonAD(),
		Content:   Text(inner),
		Raw:       marshalEnvelope(info, inner),
		Timestamp: ts,
		CreatedAt: time.Now().UTC(),
	}
}
