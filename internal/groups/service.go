// Package groups keeps group metadata fresh across the cache, the store
// and the provider, behind a 30-minute staleness window.
package groups

import (
	"context"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"zelador/internal/cache"
	"zelador/internal/infra/config"
	"zelador/internal/store"
)

// preloadConcurrency bounds the boot-time group fan-out.
const preloadConcurrency = 4

// Client is the slice of the provider session the service needs.
type Client interface {
	GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
	GetJoinedGroups(ctx context.Context) ([]*types.GroupInfo, error)
}

// MetadataStore is the slice of the group repository the service needs.
type MetadataStore interface {
	Get(ctx context.Context, id types.JID) (*store.Group, error)
	Put(ctx context.Context, g *store.Group) error
	UpdateParticipants(ctx context.Context, id types.JID, participants []store.Participant, cachedAt time.Time) error
}

// Canonicalizer resolves participant ids and learns dual-id sightings.
type Canonicalizer interface {
	Canonical(ctx context.Context, id, alt types.JID) types.JID
	Observe(ctx context.Context, lid, pn types.JID, source string)
}

// ParticipantAction is one membership mutation kind.
type ParticipantAction string

const (
	ActionJoin    ParticipantAction = "join"
	ActionLeave   ParticipantAction = "leave"
	ActionPromote ParticipantAction = "promote"
	ActionDemote  ParticipantAction = "demote"
)

// Service resolves group metadata cache-first, then store, then provider.
type Service struct {
	client   Client
	groups   MetadataStore
	tier     *cache.Tier
	resolver Canonicalizer

	staleness time.Duration
	limiter   *rate.Limiter
	refresh   refresher
	log       waLog.Logger
}

// New creates the service. The client is attached later via SetClient.
func New(groups MetadataStore, tier *cache.Tier, resolver Canonicalizer, cfg config.SyncConfig, log waLog.Logger) *Service {
	return &Service{
		groups:    groups,
		tier:      tier,
		resolver:  resolver,
		staleness: cfg.GroupStaleness,
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		log:       log.Sub("Groups"),
	}
}

// SetClient attaches the provider session (delayed initialization).
func (s *Service) SetClient(c Client) {
	s.client = c
}

// GetOrFetch returns group metadata, consulting the cache, then a stored
// row younger than the staleness window, then the provider.
func (s *Service) GetOrFetch(ctx context.Context, gid types.JID) (*store.Group, error) {
	key := gid.String()

	if g, ok := s.tier.Groups.Get(key); ok {
		return s.view(g), nil
	}

	g, err := s.groups.Get(ctx, gid)
	if err != nil {
		s.log.Warnf("Failed to read group %s: %v", gid, err)
	} else if g != nil && time.Since(g.CachedAt) < s.staleness {
		s.tier.Groups.Set(key, g)
		return s.view(g), nil
	}

	return s.fetch(ctx, gid)
}

// HasValid reports whether fresh metadata exists without contacting the
// provider.
func (s *Service) HasValid(ctx context.Context, gid types.JID) bool {
	if s.tier.Groups.Contains(gid.String()) {
		return true
	}
	g, err := s.groups.Get(ctx, gid)
	return err == nil && g != nil && time.Since(g.CachedAt) < s.staleness
}

// Invalidate drops the cached entry so the next read refetches.
func (s *Service) Invalidate(gid types.JID) {
	s.tier.Groups.Delete(gid.String())
}

// Preload warms metadata for a set of group ids with bounded concurrency
// and request pacing. Per-group failures are logged, the batch continues.
func (s *Service) Preload(ctx context.Context, gids []types.JID) int {
	var eg errgroup.Group
	eg.SetLimit(preloadConcurrency)

	var loaded atomic.Int64
	for _, gid := range gids {
		eg.Go(func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
			if _, err := s.GetOrFetch(ctx, gid); err != nil {
				s.log.Warnf("Failed to preload group %s: %v", gid, err)
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	_ = eg.Wait()
	return int(loaded.Load())
}

// SyncJoined lists every joined group and persists the returned metadata,
// participants included, in one pass.
func (s *Service) SyncJoined(ctx context.Context) (int, error) {
	infos, err := s.client.GetJoinedGroups(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, info := range infos {
		g := s.fromInfo(ctx, info)
		if err := s.groups.Put(ctx, g); err != nil {
			s.log.Warnf("Failed to save group %s: %v", g.ID, err)
			continue
		}
		s.tier.Groups.Set(g.ID.String(), g)
		synced++
	}
	s.log.Infof("Synced %d joined groups", synced)
	return synced, nil
}

// ApplyParticipantChange folds a membership event into the known list,
// refreshes the staleness clock and persists the result. Adding a known
// member or removing an unknown one is a no-op on the set.
func (s *Service) ApplyParticipantChange(ctx context.Context, gid types.JID, action ParticipantAction, members []types.JID) error {
	g, err := s.GetOrFetch(ctx, gid)
	if err != nil {
		return err
	}
	g = g.Clone()

	for _, member := range members {
		id := s.resolver.Canonical(ctx, member, types.EmptyJID).String()
		switch action {
		case ActionJoin:
			if g.Participant(id) == nil {
				g.Participants = append(g.Participants, store.Participant{ID: id, Role: store.RoleMember})
			}
		case ActionLeave:
			g.Participants = removeParticipant(g.Participants, id)
		case ActionPromote:
			if p := g.Participant(id); p != nil {
				p.Role = store.RoleAdmin
			} else {
				g.Participants = append(g.Participants, store.Participant{ID: id, Role: store.RoleAdmin})
			}
		case ActionDemote:
			if p := g.Participant(id); p != nil {
				p.Role = store.RoleMember
			}
		}
	}

	g.ParticipantCount = len(g.Participants)
	g.CachedAt = time.Now().UTC()
	g.SortParticipants()

	if err := s.groups.UpdateParticipants(ctx, g.ID, g.Participants, g.CachedAt); err != nil {
		return err
	}
	s.tier.Groups.Set(g.ID.String(), g)
	return nil
}

// Remember persists provider metadata that arrived by event rather than
// by fetch (joined-group announcements, metadata change snapshots).
func (s *Service) Remember(ctx context.Context, info *types.GroupInfo) error {
	g := s.fromInfo(ctx, info)
	if err := s.groups.Put(ctx, g); err != nil {
		return err
	}
	s.tier.Groups.Set(g.ID.String(), g)
	return nil
}

// IsAdmin reports whether the canonical id holds an admin role in the
// group. Unknown groups resolve through GetOrFetch.
func (s *Service) IsAdmin(ctx context.Context, gid, member types.JID) bool {
	g, err := s.GetOrFetch(ctx, gid)
	if err != nil || g == nil {
		return false
	}
	id := s.resolver.Canonical(ctx, member, types.EmptyJID).String()
	p := g.Participant(id)
	return p != nil && p.IsAdmin()
}

func (s *Service) fetch(ctx context.Context, gid types.JID) (*store.Group, error) {
	info, err := s.client.GetGroupInfo(ctx, gid)
	if err != nil {
		return nil, err
	}

	g := s.fromInfo(ctx, info)
	if err := s.groups.Put(ctx, g); err != nil {
		s.log.Warnf("Failed to save group %s: %v", gid, err)
	}
	s.tier.Groups.Set(g.ID.String(), g)
	return s.view(g), nil
}

// fromInfo converts provider metadata, resolving every participant to its
// canonical id and seeding the mapping table from the dual-id fields.
func (s *Service) fromInfo(ctx context.Context, info *types.GroupInfo) *store.Group {
	g := &store.Group{
		ID:          info.JID,
		Subject:     info.Name,
		Description: info.Topic,
		Owner:       s.resolver.Canonical(ctx, info.OwnerJID, types.EmptyJID),
		Creation:    info.GroupCreated,
		CachedAt:    time.Now().UTC(),
	}

	g.Participants = make([]store.Participant, 0, len(info.Participants))
	for _, p := range info.Participants {
		if !p.JID.IsEmpty() && !p.LID.IsEmpty() {
			s.resolver.Observe(ctx, p.LID, p.JID, store.MappingSourceGroup)
		}
		id := s.resolver.Canonical(ctx, p.JID, p.LID)
		role := store.RoleMember
		if p.IsSuperAdmin {
			role = store.RoleSuperAdmin
		} else if p.IsAdmin {
			role = store.RoleAdmin
		}
		g.Participants = append(g.Participants, store.Participant{ID: id.String(), Role: role})
	}
	g.ParticipantCount = len(g.Participants)
	g.SortParticipants()
	return g
}

// view applies the clone-on-get policy before handing out cached state.
func (s *Service) view(g *store.Group) *store.Group {
	if s.tier.CloneOnGet() {
		return g.Clone()
	}
	return g
}

func removeParticipant(list []store.Participant, id string) []store.Participant {
	out := list[:0]
	for _, p := range list {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
