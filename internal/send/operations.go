package send

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/types"
)

// React sends a reaction to a message. An empty emoji removes it.
func (s *Service) React(ctx context.Context, chat, sender types.JID, id, emoji string) error {
	if s.client == nil {
		return fmt.Errorf("client not initialized")
	}
	msg := s.client.BuildReaction(chat, sender, id, emoji)
	if _, err := s.client.SendMessage(ctx, chat, msg); err != nil {
		return fmt.Errorf("failed to send reaction: %w", err)
	}
	return nil
}

// Revoke deletes a message for everyone. sender must be set when revoking
// someone else's group message.
func (s *Service) Revoke(ctx context.Context, chat, sender types.JID, id string) error {
	if s.client == nil {
		return fmt.Errorf("client not initialized")
	}
	msg := s.client.BuildRevoke(chat, sender, id)
	if _, err := s.client.SendMessage(ctx, chat, msg); err != nil {
		return fmt.Errorf("failed to revoke message: %w", err)
	}
	return nil
}

// Composing shows the typing indicator in a chat. Best effort.
func (s *Service) Composing(ctx context.Context, chat types.JID) {
	if s.client == nil {
		return
	}
	if err := s.client.SendChatPresence(ctx, chat, types.ChatPresenceComposing, types.ChatPresenceMediaText); err != nil {
		s.log.Debugf("Failed to send composing presence to %s: %v", chat, err)
	}
}

// Paused clears the typing indicator in a chat. Best effort.
func (s *Service) Paused(ctx context.Context, chat types.JID) {
	if s.client == nil {
		return
	}
	if err := s.client.SendChatPresence(ctx, chat, types.ChatPresencePaused, types.ChatPresenceMediaText); err != nil {
		s.log.Debugf("Failed to send paused presence to %s: %v", chat, err)
	}
}

// MarkRead marks the given messages as read. Best effort.
func (s *Service) MarkRead(ctx context.Context, chat, sender types.JID, ids ...string) {
	if s.client == nil || len(ids) == 0 {
		return
	}
	if err := s.client.MarkRead(ctx, ids, time.Now(), chat, sender); err != nil {
		s.log.Debugf("Failed to mark read in %s: %v", chat, err)
	}
}
