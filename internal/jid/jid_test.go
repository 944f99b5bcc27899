package jid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mau.fi/whatsmeow/types"
)

func TestFromPhoneStripsFormatting(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+55 (11) 99999-0000", "5511999990000"},
		{"5511999990000", "5511999990000"},
		{"55.11.98888.7777", "5511988887777"},
	}
	for _, tt := range tests {
		got := FromPhone(tt.in)
		assert.Equal(t, tt.want, got.User, tt.in)
		assert.Equal(t, types.DefaultUserServer, got.Server)
	}
}

func TestNamespacePredicates(t *testing.T) {
	pn := types.NewJID("555", types.DefaultUserServer)
	lid := types.NewJID("9001", types.HiddenUserServer)
	group := types.NewJID("123456789", types.GroupServer)
	news := types.NewJID("120363", types.NewsletterServer)
	status := types.NewJID("status", types.BroadcastServer)

	assert.True(t, IsUser(pn))
	assert.True(t, IsUser(lid))
	assert.False(t, IsUser(group))

	assert.True(t, IsPN(pn))
	assert.False(t, IsPN(lid))

	assert.True(t, IsLID(lid))
	assert.False(t, IsLID(pn))

	assert.True(t, IsGroup(group))
	assert.False(t, IsGroup(pn))

	assert.True(t, IsNewsletter(news))
	assert.True(t, IsBroadcast(status))
}

func TestBareStripsDeviceSuffix(t *testing.T) {
	full := types.JID{User: "555", Device: 7, Server: types.DefaultUserServer}
	bare := Bare(full)
	assert.Equal(t, "555", bare.User)
	assert.Zero(t, bare.Device)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(types.JID{}))
	assert.False(t, IsEmpty(types.NewJID("555", types.DefaultUserServer)))
}
