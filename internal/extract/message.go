// Package extract pulls structured fields out of provider payloads.
package extract

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
)

// Unwrap resolves view-once and ephemeral wrappers to the inner payload.
func Unwrap(msg *waE2E.Message) *waE2E.Message {
	if msg == nil {
		return nil
	}
	if vo := msg.GetViewOnceMessage(); vo != nil && vo.GetMessage() != nil {
		return Unwrap(vo.GetMessage())
	}
	if vo2 := msg.GetViewOnceMessageV2(); vo2 != nil && vo2.GetMessage() != nil {
		return Unwrap(vo2.GetMessage())
	}
	if eph := msg.GetEphemeralMessage(); eph != nil && eph.GetMessage() != nil {
		return Unwrap(eph.GetMessage())
	}
	return msg
}

// Text returns the human-readable text of a message: plain conversation,
// extended text, or a media caption.
func Text(msg *waE2E.Message) string {
	msg = Unwrap(msg)
	if msg == nil {
		return ""
	}

	if txt := msg.GetConversation(); txt != "" {
		return txt
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
	}
	return ""
}

// Kind classifies the message payload.
func Kind(msg *waE2E.Message) string {
	msg = Unwrap(msg)
	if msg == nil {
		return "unknown"
	}

	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetLocationMessage() != nil || msg.GetLiveLocationMessage() != nil:
		return "location"
	case msg.GetContactMessage() != nil || msg.GetContactsArrayMessage() != nil:
		return "contact"
	case msg.GetPollCreationMessage() != nil || msg.GetPollCreationMessageV2() != nil || msg.GetPollCreationMessageV3() != nil:
		return "poll"
	case msg.GetPollUpdateMessage() != nil:
		return "poll_update"
	case msg.GetReactionMessage() != nil:
		return "reaction"
	case msg.GetGroupInviteMessage() != nil:
		return "group_invite"
	case msg.GetProtocolMessage() != nil:
		return protocolKind(msg.GetProtocolMessage())
	default:
		return "unknown"
	}
}

func protocolKind(pm *waE2E.ProtocolMessage) string {
	switch pm.GetType() {
	case waE2E.ProtocolMessage_REVOKE:
		return "revoke"
	case waE2E.ProtocolMessage_MESSAGE_EDIT:
		return "edit"
	case waE2E.ProtocolMessage_EPHEMERAL_SETTING:
		return "ephemeral_setting"
	case waE2E.ProtocolMessage_HISTORY_SYNC_NOTIFICATION:
		return "history_sync"
	default:
		return "protocol"
	}
}

// ContextInfo returns the context carried by any known payload kind.
func ContextInfo(msg *waE2E.Message) *waE2E.ContextInfo {
	msg = Unwrap(msg)
	if msg == nil {
		return nil
	}

	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetContextInfo()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetContextInfo()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetContextInfo()
	}
	if aud := msg.GetAudioMessage(); aud != nil {
		return aud.GetContextInfo()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc.GetContextInfo()
	}
	if stk := msg.GetStickerMessage(); stk != nil {
		return stk.GetContextInfo()
	}
	return nil
}

// Mentions returns the parsed mentioned ids, if any.
func Mentions(msg *waE2E.Message) []types.JID {
	ctx := ContextInfo(msg)
	if ctx == nil {
		return nil
	}
	mentioned := ctx.GetMentionedJID()
	if len(mentioned) == 0 {
		return nil
	}
	out := make([]types.JID, 0, len(mentioned))
	for _, raw := range mentioned {
		if jid, err := types.ParseJID(raw); err == nil {
			out = append(out, jid)
		}
	}
	return out
}

// Expiration returns the disappearing-message timer the payload carries,
// in seconds, or zero.
func Expiration(msg *waE2E.Message) uint32 {
	if ctx := ContextInfo(msg); ctx != nil {
		return ctx.GetExpiration()
	}
	return 0
}

// QuotedID returns the id of the quoted message, or empty.
func QuotedID(msg *waE2E.Message) string {
	if ctx := ContextInfo(msg); ctx != nil {
		return ctx.GetStanzaID()
	}
	return ""
}
