package command

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"

	"zelador/internal/send"
	"zelador/internal/store"
)

// Replier is the outbound slice the command layer uses.
type Replier interface {
	SendText(ctx context.Context, to types.JID, text string, opts ...send.Option) (*send.Result, error)
	SendTagged(ctx context.Context, to types.JID, text string, mentions []types.JID, opts ...send.Option) (*send.Result, error)
	React(ctx context.Context, chat, sender types.JID, id, emoji string) error
	Revoke(ctx context.Context, chat, sender types.JID, id string) error
	Composing(ctx context.Context, chat types.JID)
}

// GroupDirectory answers group metadata and role questions.
type GroupDirectory interface {
	GetOrFetch(ctx context.Context, gid types.JID) (*store.Group, error)
	IsAdmin(ctx context.Context, gid, member types.JID) bool
	Invalidate(gid types.JID)
}

// SettingsStore reads and mutates the per-group settings blobs.
type SettingsStore interface {
	Get(ctx context.Context, id types.JID) (*store.GroupSettings, error)
	GetGlobal(ctx context.Context) (*store.GlobalSettings, error)
	Merge(ctx context.Context, id types.JID, patch map[string]interface{}) error
	Mutate(ctx context.Context, id string, fn func(cfg map[string]interface{})) error
	ListNewsEnabled(ctx context.Context) ([]types.JID, error)
}

// Canonicalizer resolves a participant id to its canonical form.
type Canonicalizer interface {
	Canonical(ctx context.Context, id, alt types.JID) types.JID
}

// GroupOps is the provider slice for group administration. The session
// client satisfies it; it is attached after connect.
type GroupOps interface {
	UpdateGroupParticipants(ctx context.Context, jid types.JID, participantChanges []types.JID, action whatsmeow.ParticipantChange) ([]types.GroupParticipant, error)
	SetGroupName(ctx context.Context, jid types.JID, name string) error
	SetGroupTopic(ctx context.Context, jid types.JID, previousID, newID, topic string) error
	SetGroupAnnounce(ctx context.Context, jid types.JID, announce bool) error
	SetGroupLocked(ctx context.Context, jid types.JID, locked bool) error
	LeaveGroup(ctx context.Context, jid types.JID) error
	GetGroupInviteLink(ctx context.Context, jid types.JID, reset bool) (string, error)
	JoinGroupWithLink(ctx context.Context, code string) (types.JID, error)
	GetGroupInfoFromLink(ctx context.Context, code string) (*types.GroupInfo, error)
	GetGroupRequestParticipants(ctx context.Context, jid types.JID) ([]types.GroupParticipantRequest, error)
	UpdateGroupRequestParticipants(ctx context.Context, jid types.JID, participantChanges []types.JID, action whatsmeow.ParticipantRequestChange) ([]types.GroupParticipant, error)
	SetGroupMemberAddMode(ctx context.Context, jid types.JID, mode types.GroupMemberAddMode) error
	SetDisappearingTimer(ctx context.Context, chat types.JID, timer time.Duration, settingTS time.Time) error
}
