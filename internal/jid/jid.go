// Package jid holds small helpers over whatsmeow JIDs.
package jid

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// Parse parses a JID string into types.JID.
func Parse(s string) (types.JID, error) {
	return types.ParseJID(s)
}

// FromPhone creates a user JID from a phone number, stripping any
// non-digit characters.
func FromPhone(phone string) types.JID {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	return types.JID{
		User:   cleaned,
		Server: types.DefaultUserServer,
	}
}

// IsUser returns true if the JID is a user in either namespace.
func IsUser(j types.JID) bool {
	return j.Server == types.DefaultUserServer || j.Server == types.HiddenUserServer
}

// IsGroup returns true if the JID is a group.
func IsGroup(j types.JID) bool {
	return j.Server == types.GroupServer
}

// IsLID returns true if the JID is in the hidden-user (lid) namespace.
func IsLID(j types.JID) bool {
	return j.Server == types.HiddenUserServer
}

// IsPN returns true if the JID is in the phone-number namespace.
func IsPN(j types.JID) bool {
	return j.Server == types.DefaultUserServer
}

// IsNewsletter returns true if the JID is a newsletter/channel.
func IsNewsletter(j types.JID) bool {
	return j.Server == types.NewsletterServer
}

// IsBroadcast returns true if the JID is a broadcast list, including status.
func IsBroadcast(j types.JID) bool {
	return j.Server == types.BroadcastServer
}

// Bare strips device and agent suffixes, keeping user@server only.
func Bare(j types.JID) types.JID {
	return j.ToNonAD()
}

// IsEmpty returns true for the zero JID.
func IsEmpty(j types.JID) bool {
	return j.User == "" && j.Server == ""
}
