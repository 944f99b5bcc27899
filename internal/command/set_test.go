package command

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/infra/config"
	"zelador/internal/store"
)

type setFixture struct {
	set     *Set
	replier *fakeReplier
	configs *fakeSettings
	dir     *fakeDirectory
}

func newSetFixture() *setFixture {
	f := &setFixture{
		replier: &fakeReplier{},
		configs: newFakeSettings(),
		dir:     newFakeDirectory(),
	}
	f.set = NewSet(SetDeps{
		Registry:  NewRegistry(),
		Send:      f.replier,
		Groups:    f.dir,
		Configs:   f.configs,
		Resolver:  &passthroughCanon{},
		Broadcast: config.Default().Broadcast,
		Prefix:    "/",
		Owner:     testOwner,
		Self:      func() types.JID { return testSelf },
		Log:       waLog.Noop,
	})
	return f
}

func (f *setFixture) env(command, argline string) *Envelope {
	tail := strings.TrimSpace(argline)
	return &Envelope{
		Event:    groupEvent(testSender, ""),
		Chat:     testChat,
		Sender:   testSender,
		IsGroup:  true,
		Command:  command,
		Tail:     tail,
		Args:     strings.Fields(tail),
		Prefix:   "/",
		Settings: &store.GroupSettings{},
	}
}

func (f *setFixture) lastPatch(t *testing.T) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, f.configs.patches, "expected a settings write")
	return f.configs.patches[len(f.configs.patches)-1]
}

func TestToggleOnWritesKey(t *testing.T) {
	f := newSetFixture()

	require.NoError(t, f.set.cmdNews(context.Background(), f.env("noticias", "on")))

	assert.Equal(t, map[string]interface{}{"news": true}, f.lastPatch(t))
	assert.Equal(t, replyNewsOn, f.replier.lastText(t))
}

func TestToggleOffClearsKey(t *testing.T) {
	f := newSetFixture()

	require.NoError(t, f.set.cmdNews(context.Background(), f.env("noticias", "off")))

	patch := f.lastPatch(t)
	require.Contains(t, patch, "news")
	assert.Nil(t, patch["news"])
	assert.Equal(t, replyNewsOff, f.replier.lastText(t))
}

func TestToggleStatusReadsWithoutWriting(t *testing.T) {
	f := newSetFixture()
	env := f.env("nsfw", "")
	env.Settings = &store.GroupSettings{NSFW: true}

	require.NoError(t, f.set.cmdNSFW(context.Background(), env))

	assert.Empty(t, f.configs.patches)
	assert.Equal(t, replyNSFWOn, f.replier.lastText(t))

	require.NoError(t, f.set.cmdNSFW(context.Background(), f.env("nsfw", "status")))
	assert.Equal(t, replyNSFWOff, f.replier.lastText(t))
}

func TestToggleUnknownArgShowsUsage(t *testing.T) {
	f := newSetFixture()

	require.NoError(t, f.set.cmdNews(context.Background(), f.env("noticias", "talvez")))

	assert.Empty(t, f.configs.patches)
	assert.Equal(t, fmt.Sprintf(replyUsage, "/", "noticias on|off|status"), f.replier.lastText(t))
}

func TestPrefixSet(t *testing.T) {
	f := newSetFixture()

	require.NoError(t, f.set.cmdPrefix(context.Background(), f.env("prefixo", "set !")))

	assert.Equal(t, map[string]interface{}{"prefix": "!"}, f.lastPatch(t))
	assert.Equal(t, fmt.Sprintf(replyPrefixSet, "!"), f.replier.lastText(t))
}

func TestPrefixSetRejectsBadValues(t *testing.T) {
	f := newSetFixture()

	for _, argline := range []string{"set abcd", "set @", "set"} {
		require.NoError(t, f.set.cmdPrefix(context.Background(), f.env("prefixo", argline)))
	}

	assert.Empty(t, f.configs.patches)
}

func TestPrefixReset(t *testing.T) {
	f := newSetFixture()

	require.NoError(t, f.set.cmdPrefix(context.Background(), f.env("prefixo", "reset")))

	patch := f.lastPatch(t)
	require.Contains(t, patch, "prefix")
	assert.Nil(t, patch["prefix"])
	assert.Equal(t, fmt.Sprintf(replyPrefixReset, "/"), f.replier.lastText(t))
}

func TestPrefixStatus(t *testing.T) {
	f := newSetFixture()
	env := f.env("prefixo", "")
	env.Prefix = "!"

	require.NoError(t, f.set.cmdPrefix(context.Background(), env))

	assert.Empty(t, f.configs.patches)
	assert.Equal(t, fmt.Sprintf(replyPrefixStatus, "!"), f.replier.lastText(t))
}

func TestWelcomeSetText(t *testing.T) {
	f := newSetFixture()

	env := f.env("boasvindas", "set Olá {{user}}, leia as regras")
	require.NoError(t, f.set.cmdWelcome(context.Background(), env))

	assert.Equal(t, map[string]interface{}{
		"welcome":      true,
		"welcome_text": "Olá {{user}}, leia as regras",
	}, f.lastPatch(t))
	assert.Equal(t, replyWelcomeSet, f.replier.lastText(t))
}

func TestWelcomeSetWithoutTextShowsUsage(t *testing.T) {
	f := newSetFixture()

	require.NoError(t, f.set.cmdWelcome(context.Background(), f.env("boasvindas", "set")))

	assert.Empty(t, f.configs.patches)
	assert.Contains(t, f.replier.lastText(t), "Uso:")
}

func TestAntiLinkAllowNetwork(t *testing.T) {
	f := newSetFixture()

	env := f.env("antilink", "liberar Instagram")
	require.NoError(t, f.set.cmdAntiLink(context.Background(), env))

	cfg := f.configs.raw[testChat.String()]
	assert.Equal(t, []string{"instagram"}, cfg["allowed_networks"])
	assert.Equal(t, fmt.Sprintf(replyAntiLinkFreed, "instagram"), f.replier.lastText(t))
}

func TestAntiLinkAllowDomainFromURL(t *testing.T) {
	f := newSetFixture()

	env := f.env("antilink", "liberar https://promo.xyz/oferta")
	require.NoError(t, f.set.cmdAntiLink(context.Background(), env))

	cfg := f.configs.raw[testChat.String()]
	assert.Equal(t, []string{"promo.xyz"}, cfg["allowed_domains"])
}

func TestAntiLinkAllowIsIdempotent(t *testing.T) {
	f := newSetFixture()

	for i := 0; i < 2; i++ {
		require.NoError(t, f.set.cmdAntiLink(context.Background(), f.env("antilink", "liberar instagram")))
	}

	cfg := f.configs.raw[testChat.String()]
	assert.Equal(t, []string{"instagram"}, cfg["allowed_networks"])
}

func TestAntiLinkBlockRemovesEntry(t *testing.T) {
	f := newSetFixture()
	require.NoError(t, f.set.cmdAntiLink(context.Background(), f.env("antilink", "liberar instagram")))

	require.NoError(t, f.set.cmdAntiLink(context.Background(), f.env("antilink", "bloquear instagram")))

	cfg := f.configs.raw[testChat.String()]
	assert.NotContains(t, cfg, "allowed_networks")
	assert.Equal(t, fmt.Sprintf(replyAntiLinkBarred, "instagram"), f.replier.lastText(t))
}

func TestAntiLinkList(t *testing.T) {
	f := newSetFixture()
	env := f.env("antilink", "lista")
	env.Settings = &store.GroupSettings{
		AllowedNetworks: []string{"instagram"},
		AllowedDomains:  []string{"promo.xyz"},
	}

	require.NoError(t, f.set.cmdAntiLink(context.Background(), env))

	reply := f.replier.lastText(t)
	assert.Contains(t, reply, "instagram (rede)")
	assert.Contains(t, reply, "promo.xyz")
}

func TestAntiLinkOnOff(t *testing.T) {
	f := newSetFixture()

	require.NoError(t, f.set.cmdAntiLink(context.Background(), f.env("antilink", "on")))
	assert.Equal(t, map[string]interface{}{"antilink": true}, f.lastPatch(t))

	require.NoError(t, f.set.cmdAntiLink(context.Background(), f.env("antilink", "off")))
	patch := f.lastPatch(t)
	require.Contains(t, patch, "antilink")
	assert.Nil(t, patch["antilink"])
}
