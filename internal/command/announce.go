package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zelador/internal/broadcast"
)

func (s *Set) cmdAnnounce(ctx context.Context, env *Envelope) error {
	mode, text := s.broadcast.Default, env.Tail
	switch strings.ToLower(env.Arg(0)) {
	case "rapido", "rápido":
		mode, text = s.broadcast.Mode("fast"), env.TailAfter(1)
	case "seguro":
		mode, text = s.broadcast.Mode("safe"), env.TailAfter(1)
	}
	if strings.TrimSpace(text) == "" {
		return s.usage(ctx, env)
	}

	targets, err := s.configs.ListNewsEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscribed groups: %w", err)
	}
	if len(targets) == 0 {
		return s.reply(ctx, env, fmt.Sprintf(replyAnnounceEmpty, env.Prefix))
	}

	if err := s.reply(ctx, env, fmt.Sprintf(replyAnnounceStart, len(targets))); err != nil {
		return err
	}

	// Progress notes go back to the invoking chat; the run itself blocks
	// until every target is resolved.
	progress := func(done, total int) {
		if done == total {
			return
		}
		if _, err := s.send.SendText(ctx, env.Chat, fmt.Sprintf(replyAnnounceProgress, done, total)); err != nil {
			s.log.Debugf("Failed to post announce progress: %v", err)
		}
	}

	report := s.engine.Run(ctx, targets, text, mode, progress)
	s.log.Infof("Announce %s finished: %d/%d sent, %d failed, %d rate limit hits",
		report.RunID, report.Sent, report.Total, report.Failed, report.RateLimitHits)
	return s.reply(ctx, env, formatReport(report))
}

func formatReport(r *broadcast.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, replyAnnounceDone, r.Sent, r.Total, r.Elapsed.Round(time.Second))
	if r.Failed > 0 {
		fmt.Fprintf(&b, "\nFalharam: %d", r.Failed)
		for _, f := range r.FailedSample {
			fmt.Fprintf(&b, "\n· %s", f)
		}
	}
	if r.RateLimitHits > 0 {
		fmt.Fprintf(&b, "\nPausas por limite do servidor: %d", r.RateLimitHits)
	}
	return b.String()
}
