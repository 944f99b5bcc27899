package command

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

func targetEnvelope(msg *waE2E.Message, args string) *Envelope {
	evt := groupEvent(testSender, "")
	evt.Message = msg
	tail := strings.TrimSpace(args)
	return &Envelope{
		Event:   evt,
		Chat:    testChat,
		Sender:  testSender,
		IsGroup: true,
		Tail:    tail,
		Args:    strings.Fields(tail),
	}
}

func taggedMsg(mentions ...string) *waE2E.Message {
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String("olha só"),
			ContextInfo: &waE2E.ContextInfo{MentionedJID: mentions},
		},
	}
}

func repliedMsg(participant string) *waE2E.Message {
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("esse aí"),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:    proto.String("QUOTED-1"),
				Participant: proto.String(participant),
			},
		},
	}
}

func plainMsg() *waE2E.Message {
	return &waE2E.Message{Conversation: proto.String("ban")}
}

func TestTargetsPrefersMentions(t *testing.T) {
	env := targetEnvelope(taggedMsg("111@s.whatsapp.net", "222@s.whatsapp.net"), "ban 333444555666")

	got := Targets(context.Background(), &passthroughCanon{}, env, 1)

	assert.Equal(t, []types.JID{
		types.NewJID("111", types.DefaultUserServer),
		types.NewJID("222", types.DefaultUserServer),
	}, got)
}

func TestTargetsFallsBackToReply(t *testing.T) {
	env := targetEnvelope(repliedMsg("333@s.whatsapp.net"), "ban")

	got := Targets(context.Background(), &passthroughCanon{}, env, 1)

	assert.Equal(t, []types.JID{types.NewJID("333", types.DefaultUserServer)}, got)
}

func TestTargetsParsesNumberArguments(t *testing.T) {
	env := targetEnvelope(plainMsg(), "ban +55(11)99999-0000 @5511888887777 444@s.whatsapp.net")

	got := Targets(context.Background(), &passthroughCanon{}, env, 1)

	assert.Equal(t, []types.JID{
		types.NewJID("5511999990000", types.DefaultUserServer),
		types.NewJID("5511888887777", types.DefaultUserServer),
		types.NewJID("444", types.DefaultUserServer),
	}, got)
}

func TestTargetsSkipsSubcommandWords(t *testing.T) {
	// "aprovar" and "todos" are subcommand words, not targets.
	env := targetEnvelope(plainMsg(), "aprovar todos 5511999990000")

	got := Targets(context.Background(), &passthroughCanon{}, env, 2)

	assert.Equal(t, []types.JID{types.NewJID("5511999990000", types.DefaultUserServer)}, got)
}

func TestTargetsSkipBeyondArgs(t *testing.T) {
	env := targetEnvelope(plainMsg(), "ban")

	got := Targets(context.Background(), &passthroughCanon{}, env, 5)

	assert.Empty(t, got)
}

func TestTargetsCanonicalizesAndDedupes(t *testing.T) {
	canon := &passthroughCanon{table: map[string]types.JID{
		"9001@lid": types.NewJID("555", types.DefaultUserServer),
	}}
	// The same person mentioned twice, once by lid and once by number.
	env := targetEnvelope(taggedMsg("9001@lid", "555@s.whatsapp.net"), "")

	got := Targets(context.Background(), canon, env, 0)

	assert.Equal(t, []types.JID{types.NewJID("555", types.DefaultUserServer)}, got)
}

func TestTargetsIgnoresShortAndNonUserArguments(t *testing.T) {
	env := targetEnvelope(plainMsg(), "ban 123 grupo@g.us abc")

	got := Targets(context.Background(), &passthroughCanon{}, env, 1)

	assert.Empty(t, got)
}
