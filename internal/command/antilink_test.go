package command

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/store"
)

func TestDetectLink(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		networks []string
		domains  []string
		want     string
		found    bool
	}{
		{
			name:  "explicit url",
			text:  "compra aqui https://promo.example.com/oferta",
			want:  "https://promo.example.com/oferta",
			found: true,
		},
		{
			name:  "www without scheme",
			text:  "visita www.promo.shop agora",
			want:  "www.promo.shop",
			found: true,
		},
		{
			name:  "bare domain with known ending",
			text:  "entra no promo.xyz",
			want:  "promo.xyz",
			found: true,
		},
		{
			name:     "allowed network",
			text:     "meu insta: instagram.com/eu",
			networks: []string{"instagram"},
			found:    false,
		},
		{
			name:     "subdomain of allowed network",
			text:     "https://business.instagram.com/conta",
			networks: []string{"instagram"},
			found:    false,
		},
		{
			name:    "allowed custom domain",
			text:    "docs em https://wiki.empresa.com.br/manual",
			domains: []string{"empresa.com.br"},
			found:   false,
		},
		{
			name:    "group invite never allowed",
			text:    "entrem: https://chat.whatsapp.com/AbCdEf123",
			domains: []string{"chat.whatsapp.com"},
			want:    "https://chat.whatsapp.com/AbCdEf123",
			found:   true,
		},
		{
			name:  "uppercase still caught",
			text:  "HTTPS://PROMO.EXAMPLE.COM",
			want:  "HTTPS://PROMO.EXAMPLE.COM",
			found: true,
		},
		{
			name:  "plain text",
			text:  "bom dia, tudo bem por aí?",
			found: false,
		},
		{
			name:  "version number is not a domain",
			text:  "atualizei para a 2.0.1 hoje",
			found: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := DetectLink(tt.text, tt.networks, tt.domains)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestKnownNetwork(t *testing.T) {
	assert.True(t, KnownNetwork("instagram"))
	assert.True(t, KnownNetwork("  Instagram  "))
	assert.True(t, KnownNetwork("x"))
	assert.False(t, KnownNetwork("orkut"))
	assert.False(t, KnownNetwork(""))
}

func TestHostOf(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://www.Example.com:8080/path?q=1", "example.com"},
		{"http://promo.xyz/", "promo.xyz"},
		{"www.promo.shop", "promo.shop"},
		{"wa.me/5511999990000", "wa.me"},
		{"promo.xyz.", "promo.xyz"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hostOf(tt.link), tt.link)
	}
}

func linkEnvelope(text string, settings *store.GroupSettings) *Envelope {
	evt := groupEvent(testRawLID, text)
	return &Envelope{
		Event:    evt,
		Chat:     testChat,
		Sender:   testSender, // canonical form of the raw lid sender
		IsGroup:  true,
		Text:     text,
		Settings: settings,
	}
}

func newTestAntiLink(replier *fakeReplier, dir *fakeDirectory) *AntiLink {
	return NewAntiLink(replier, dir, func() types.JID { return testSelf }, waLog.Noop)
}

func TestEnforceSkipsWhenDisabled(t *testing.T) {
	replier := &fakeReplier{}
	a := newTestAntiLink(replier, newFakeDirectory())

	env := linkEnvelope("https://spam.example.com", &store.GroupSettings{})
	assert.False(t, a.Enforce(context.Background(), env))
	assert.Empty(t, replier.revoked)
}

func TestEnforceIgnoresCleanMessages(t *testing.T) {
	replier := &fakeReplier{}
	a := newTestAntiLink(replier, newFakeDirectory())

	env := linkEnvelope("bom dia a todos", &store.GroupSettings{AntiLink: true})
	assert.False(t, a.Enforce(context.Background(), env))
	assert.Empty(t, replier.revoked)
	assert.Empty(t, replier.texts)
}

func TestEnforceRespectsAllowList(t *testing.T) {
	replier := &fakeReplier{}
	a := newTestAntiLink(replier, newFakeDirectory())

	env := linkEnvelope("segue lá: instagram.com/nosso_grupo", &store.GroupSettings{
		AntiLink:        true,
		AllowedNetworks: []string{"instagram"},
	})
	assert.False(t, a.Enforce(context.Background(), env))
	assert.Empty(t, replier.revoked)
}

func TestEnforceNeverTargetsSelf(t *testing.T) {
	replier := &fakeReplier{}
	a := newTestAntiLink(replier, newFakeDirectory())

	env := linkEnvelope("https://spam.example.com", &store.GroupSettings{AntiLink: true})
	env.Sender = testSelf

	assert.False(t, a.Enforce(context.Background(), env))
	assert.Empty(t, replier.revoked)
}

func TestEnforceWarnsAdminsWithoutRemoval(t *testing.T) {
	replier := &fakeReplier{}
	dir := newFakeDirectory()
	dir.grantAdmin(testChat, testSender)
	a := newTestAntiLink(replier, dir)

	env := linkEnvelope("https://spam.example.com", &store.GroupSettings{AntiLink: true})

	assert.False(t, a.Enforce(context.Background(), env))
	assert.Equal(t, replyAntiLinkAdmin, replier.lastText(t))
	assert.Empty(t, replier.revoked)
	assert.Empty(t, replier.tagged)
}

func TestEnforceRemovesOffender(t *testing.T) {
	replier := &fakeReplier{}
	a := newTestAntiLink(replier, newFakeDirectory())
	ops := &fakeOps{}
	a.SetOps(ops)

	env := linkEnvelope("corre que é promoção https://spam.example.com", &store.GroupSettings{AntiLink: true})

	assert.True(t, a.Enforce(context.Background(), env))

	// The provider acts on the raw sender id from the event.
	assert.Equal(t, []string{"MSG-1"}, replier.revoked)
	require.Len(t, ops.removed, 1)
	assert.Equal(t, []types.JID{testRawLID}, ops.removed[0])

	// The notice names and tags the canonical id.
	require.Len(t, replier.tagged, 1)
	assert.Equal(t, fmt.Sprintf(replyAntiLinkRemoved, testSender.User), replier.tagged[0].text)
	assert.Equal(t, []types.JID{testSender}, replier.tags[0])
}

func TestEnforceWithoutSessionStillRevokes(t *testing.T) {
	replier := &fakeReplier{}
	a := newTestAntiLink(replier, newFakeDirectory())

	env := linkEnvelope("https://spam.example.com", &store.GroupSettings{AntiLink: true})

	assert.True(t, a.Enforce(context.Background(), env))
	assert.Equal(t, []string{"MSG-1"}, replier.revoked)
	assert.Len(t, replier.tagged, 1)
}
