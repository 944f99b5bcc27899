package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
)

func (s *Set) cmdAdd(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	targets := Targets(ctx, s.resolver, env, 0)
	if len(targets) == 0 {
		return s.reply(ctx, env, replyNoTargets)
	}

	result, err := ops.UpdateGroupParticipants(ctx, env.Chat, targets, whatsmeow.ParticipantChangeAdd)
	if err != nil {
		return fmt.Errorf("failed to add participants: %w", err)
	}
	added, failed := countResults(result)
	s.groups.Invalidate(env.Chat)
	return s.reply(ctx, env, fmt.Sprintf(replyAddDone, added, failed))
}

func (s *Set) cmdBan(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	targets := s.withoutSelf(Targets(ctx, s.resolver, env, 0))
	if len(targets) == 0 {
		return s.reply(ctx, env, replyNoTargets)
	}

	result, err := ops.UpdateGroupParticipants(ctx, env.Chat, targets, whatsmeow.ParticipantChangeRemove)
	if err != nil {
		return fmt.Errorf("failed to remove participants: %w", err)
	}
	removed, _ := countResults(result)
	s.groups.Invalidate(env.Chat)
	return s.replyTagged(ctx, env, fmt.Sprintf(replyBanDone, removed), targets)
}

func (s *Set) cmdPromote(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	targets := Targets(ctx, s.resolver, env, 0)
	if len(targets) == 0 {
		return s.reply(ctx, env, replyNoTargets)
	}

	result, err := ops.UpdateGroupParticipants(ctx, env.Chat, targets, whatsmeow.ParticipantChangePromote)
	if err != nil {
		return fmt.Errorf("failed to promote participants: %w", err)
	}
	promoted, _ := countResults(result)
	s.groups.Invalidate(env.Chat)
	return s.replyTagged(ctx, env, fmt.Sprintf(replyPromoteDone, promoted), targets)
}

func (s *Set) cmdDemote(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	targets := s.withoutSelf(Targets(ctx, s.resolver, env, 0))
	if len(targets) == 0 {
		return s.reply(ctx, env, replyNoTargets)
	}

	result, err := ops.UpdateGroupParticipants(ctx, env.Chat, targets, whatsmeow.ParticipantChangeDemote)
	if err != nil {
		return fmt.Errorf("failed to demote participants: %w", err)
	}
	demoted, _ := countResults(result)
	s.groups.Invalidate(env.Chat)
	return s.replyTagged(ctx, env, fmt.Sprintf(replyDemoteDone, demoted), targets)
}

func (s *Set) cmdName(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	name := env.Tail
	if name == "" {
		return s.usage(ctx, env)
	}
	if err := ops.SetGroupName(ctx, env.Chat, name); err != nil {
		return fmt.Errorf("failed to set group name: %w", err)
	}
	s.groups.Invalidate(env.Chat)
	return s.reply(ctx, env, replyNameSet)
}

func (s *Set) cmdDescription(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	desc := env.Tail
	if desc == "" {
		return s.usage(ctx, env)
	}
	if err := ops.SetGroupTopic(ctx, env.Chat, "", "", desc); err != nil {
		return fmt.Errorf("failed to set group description: %w", err)
	}
	s.groups.Invalidate(env.Chat)
	return s.reply(ctx, env, replyDescSet)
}

// cmdGroup toggles announce mode: closed means only admins may post.
func (s *Set) cmdGroup(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	switch strings.ToLower(env.Arg(0)) {
	case "fechar":
		if err := ops.SetGroupAnnounce(ctx, env.Chat, true); err != nil {
			return fmt.Errorf("failed to close group: %w", err)
		}
		return s.reply(ctx, env, replyGroupClosed)
	case "abrir":
		if err := ops.SetGroupAnnounce(ctx, env.Chat, false); err != nil {
			return fmt.Errorf("failed to open group: %w", err)
		}
		return s.reply(ctx, env, replyGroupOpened)
	default:
		return s.usage(ctx, env)
	}
}

// cmdRestrict toggles locked mode: group data editable by admins only.
func (s *Set) cmdRestrict(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	switch strings.ToLower(env.Arg(0)) {
	case "on":
		if err := ops.SetGroupLocked(ctx, env.Chat, true); err != nil {
			return fmt.Errorf("failed to lock group: %w", err)
		}
		return s.reply(ctx, env, replyGroupLocked)
	case "off":
		if err := ops.SetGroupLocked(ctx, env.Chat, false); err != nil {
			return fmt.Errorf("failed to unlock group: %w", err)
		}
		return s.reply(ctx, env, replyGroupFreed)
	default:
		return s.usage(ctx, env)
	}
}

func (s *Set) cmdLink(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	link, err := ops.GetGroupInviteLink(ctx, env.Chat, false)
	if err != nil {
		return fmt.Errorf("failed to get invite link: %w", err)
	}
	return s.reply(ctx, env, link)
}

func (s *Set) cmdRevokeLink(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	link, err := ops.GetGroupInviteLink(ctx, env.Chat, true)
	if err != nil {
		return fmt.Errorf("failed to revoke invite link: %w", err)
	}
	return s.reply(ctx, env, fmt.Sprintf(replyLinkRevoked, link))
}

func (s *Set) cmdRequests(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}

	switch strings.ToLower(env.Arg(0)) {
	case "", "listar":
		reqs, err := ops.GetGroupRequestParticipants(ctx, env.Chat)
		if err != nil {
			return fmt.Errorf("failed to list join requests: %w", err)
		}
		if len(reqs) == 0 {
			return s.reply(ctx, env, replyRequestsNone)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Solicitações pendentes: %d", len(reqs))
		for _, r := range reqs {
			fmt.Fprintf(&b, "\n· +%s (%s)", r.JID.User, r.RequestedAt.Format("02/01 15:04"))
		}
		return s.reply(ctx, env, b.String())

	case "aprovar":
		return s.resolveRequests(ctx, env, ops, whatsmeow.ParticipantChangeApprove)
	case "recusar":
		return s.resolveRequests(ctx, env, ops, whatsmeow.ParticipantChangeReject)
	default:
		return s.usage(ctx, env)
	}
}

func (s *Set) resolveRequests(ctx context.Context, env *Envelope, ops GroupOps, action whatsmeow.ParticipantRequestChange) error {
	var targets []types.JID
	if strings.EqualFold(env.Arg(1), "todos") {
		reqs, err := ops.GetGroupRequestParticipants(ctx, env.Chat)
		if err != nil {
			return fmt.Errorf("failed to list join requests: %w", err)
		}
		for _, r := range reqs {
			targets = append(targets, r.JID)
		}
	} else {
		targets = Targets(ctx, s.resolver, env, 1)
	}
	if len(targets) == 0 {
		return s.reply(ctx, env, replyRequestsNone)
	}

	result, err := ops.UpdateGroupRequestParticipants(ctx, env.Chat, targets, action)
	if err != nil {
		return fmt.Errorf("failed to update join requests: %w", err)
	}
	done, _ := countResults(result)
	s.groups.Invalidate(env.Chat)
	return s.reply(ctx, env, fmt.Sprintf(replyRequestsDone, done))
}

func (s *Set) cmdEphemeral(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}

	var timer time.Duration
	var label string
	switch strings.ToLower(env.Arg(0)) {
	case "off", "0":
		timer, label = 0, ""
	case "24h":
		timer, label = 24*time.Hour, "24 horas"
	case "7d":
		timer, label = 7*24*time.Hour, "7 dias"
	case "90d":
		timer, label = 90*24*time.Hour, "90 dias"
	default:
		return s.usage(ctx, env)
	}

	if err := ops.SetDisappearingTimer(ctx, env.Chat, timer, time.Time{}); err != nil {
		return fmt.Errorf("failed to set disappearing timer: %w", err)
	}
	if timer == 0 {
		return s.reply(ctx, env, replyEphemeralOff)
	}
	return s.reply(ctx, env, fmt.Sprintf(replyEphemeralSet, label))
}

func (s *Set) cmdAddMode(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	switch strings.ToLower(env.Arg(0)) {
	case "admin":
		if err := ops.SetGroupMemberAddMode(ctx, env.Chat, types.GroupMemberAddModeAdmin); err != nil {
			return fmt.Errorf("failed to set add mode: %w", err)
		}
		return s.reply(ctx, env, replyAddModeAdmin)
	case "todos":
		if err := ops.SetGroupMemberAddMode(ctx, env.Chat, types.GroupMemberAddModeAllMember); err != nil {
			return fmt.Errorf("failed to set add mode: %w", err)
		}
		return s.reply(ctx, env, replyAddModeAll)
	default:
		return s.usage(ctx, env)
	}
}

func (s *Set) cmdLeave(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	if !strings.EqualFold(env.Arg(0), "confirmar") {
		return s.reply(ctx, env, fmt.Sprintf(replyLeaveConfirm, env.Prefix))
	}
	_ = s.reply(ctx, env, replyLeft)
	if err := ops.LeaveGroup(ctx, env.Chat); err != nil {
		return fmt.Errorf("failed to leave group: %w", err)
	}
	s.groups.Invalidate(env.Chat)
	return nil
}

func (s *Set) cmdJoin(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	code := inviteCode(env.Arg(0))
	if code == "" {
		return s.usage(ctx, env)
	}
	gid, err := ops.JoinGroupWithLink(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to join group: %w", err)
	}
	return s.reply(ctx, env, fmt.Sprintf(replyJoined, gid))
}

func (s *Set) cmdPeek(ctx context.Context, env *Envelope) error {
	ops, err := s.client()
	if err != nil {
		return err
	}
	code := inviteCode(env.Arg(0))
	if code == "" {
		return s.usage(ctx, env)
	}
	info, err := ops.GetGroupInfoFromLink(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to inspect invite: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", info.Name)
	fmt.Fprintf(&b, "Participantes: %d\n", len(info.Participants))
	if !info.GroupCreated.IsZero() {
		fmt.Fprintf(&b, "Criado em: %s\n", info.GroupCreated.Format("02/01/2006"))
	}
	if info.Topic != "" {
		fmt.Fprintf(&b, "\n%s", info.Topic)
	}
	return s.reply(ctx, env, b.String())
}

// withoutSelf drops the bot's own id from a target list.
func (s *Set) withoutSelf(targets []types.JID) []types.JID {
	self := s.self()
	if self.IsEmpty() {
		return targets
	}
	out := targets[:0]
	for _, t := range targets {
		if t.User != self.User {
			out = append(out, t)
		}
	}
	return out
}

// countResults splits a participant-change result into successes and
// per-participant refusals.
func countResults(result []types.GroupParticipant) (ok, failed int) {
	for _, p := range result {
		if p.Error == 0 {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// inviteCode extracts the code from an invite link or returns the bare
// code unchanged.
func inviteCode(arg string) string {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return ""
	}
	if i := strings.Index(strings.ToLower(arg), "chat.whatsapp.com/"); i >= 0 {
		arg = arg[i+len("chat.whatsapp.com/"):]
	}
	if i := strings.IndexAny(arg, "?#"); i >= 0 {
		arg = arg[:i]
	}
	return strings.Trim(arg, "/")
}
