package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func textMsg(s string) *waE2E.Message {
	return &waE2E.Message{Conversation: proto.String(s)}
}

func extendedMsg(s string, ctx *waE2E.ContextInfo) *waE2E.Message {
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(s),
			ContextInfo: ctx,
		},
	}
}

func TestUnwrapViewOnce(t *testing.T) {
	inner := textMsg("segredo")
	wrapped := &waE2E.Message{
		ViewOnceMessage: &waE2E.FutureProofMessage{Message: inner},
	}

	assert.Same(t, inner, Unwrap(wrapped))
	assert.Equal(t, "segredo", Text(wrapped))
}

func TestUnwrapNestedEphemeral(t *testing.T) {
	inner := textMsg("some")
	wrapped := &waE2E.Message{
		EphemeralMessage: &waE2E.FutureProofMessage{
			Message: &waE2E.Message{
				ViewOnceMessageV2: &waE2E.FutureProofMessage{Message: inner},
			},
		},
	}

	assert.Same(t, inner, Unwrap(wrapped))
}

func TestUnwrapNil(t *testing.T) {
	assert.Nil(t, Unwrap(nil))
	assert.Empty(t, Text(nil))
	assert.Equal(t, "unknown", Kind(nil))
}

func TestText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"conversation", textMsg("oi"), "oi"},
		{"extended text", extendedMsg("linkado", nil), "linkado"},
		{
			"image caption",
			&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("foto")}},
			"foto",
		},
		{
			"video caption",
			&waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: proto.String("clipe")}},
			"clipe",
		},
		{
			"document caption",
			&waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{Caption: proto.String("arquivo")}},
			"arquivo",
		},
		{
			"sticker has no text",
			&waE2E.Message{StickerMessage: &waE2E.StickerMessage{}},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.msg))
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"text", textMsg("oi"), "text"},
		{"extended text", extendedMsg("oi", nil), "text"},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "image"},
		{"audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, "audio"},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "sticker"},
		{"poll", &waE2E.Message{PollCreationMessageV3: &waE2E.PollCreationMessage{}}, "poll"},
		{"reaction", &waE2E.Message{ReactionMessage: &waE2E.ReactionMessage{}}, "reaction"},
		{"group invite", &waE2E.Message{GroupInviteMessage: &waE2E.GroupInviteMessage{}}, "group_invite"},
		{
			"revoke",
			&waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
				Type: waE2E.ProtocolMessage_REVOKE.Enum(),
			}},
			"revoke",
		},
		{
			"edit",
			&waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
				Type: waE2E.ProtocolMessage_MESSAGE_EDIT.Enum(),
			}},
			"edit",
		},
		{"empty", &waE2E.Message{}, "unknown"},
		{
			"wrapped image",
			&waE2E.Message{ViewOnceMessage: &waE2E.FutureProofMessage{
				Message: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}},
			}},
			"image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.msg))
		})
	}
}

func TestMentions(t *testing.T) {
	msg := extendedMsg("oi @555", &waE2E.ContextInfo{
		MentionedJID: []string{"555@s.whatsapp.net", "777@s.whatsapp.net"},
	})

	got := Mentions(msg)
	require.Len(t, got, 2)
	assert.Equal(t, "555", got[0].User)
	assert.Equal(t, "777", got[1].User)

	assert.Nil(t, Mentions(textMsg("sem mencao")))
}

func TestQuotedIDAndExpiration(t *testing.T) {
	msg := extendedMsg("resposta", &waE2E.ContextInfo{
		StanzaID:   proto.String("quoted-1"),
		Expiration: proto.Uint32(86400),
	})

	assert.Equal(t, "quoted-1", QuotedID(msg))
	assert.Equal(t, uint32(86400), Expiration(msg))

	assert.Empty(t, QuotedID(textMsg("solta")))
	assert.Zero(t, Expiration(textMsg("solta")))
}
