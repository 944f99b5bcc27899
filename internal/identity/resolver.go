// Package identity resolves lid-form sender ids to their canonical
// phone-number form and keeps the mapping table reconciled.
package identity

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/cache"
	"zelador/internal/infra/config"
	"zelador/internal/jid"
	"zelador/internal/store"
)

// DeviceLIDs is the slice of the provider session's own mapping container
// the resolver consults as a last resort.
type DeviceLIDs interface {
	GetPNForLID(ctx context.Context, lid types.JID) (types.JID, error)
}

// MappingStore is the slice of the mapping repository the resolver needs.
type MappingStore interface {
	Get(ctx context.Context, lid types.JID) (*store.Mapping, error)
	UpsertTx(ctx context.Context, tx *sqlx.Tx, m *store.Mapping) error
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// MessageRewriter rewrites stored sender ids and mines raw payloads for
// alternate-participant sightings.
type MessageRewriter interface {
	RewriteSenderTx(ctx context.Context, tx *sqlx.Tx, from, to types.JID, batch int) (int64, error)
	ScanAltParticipants(ctx context.Context, limit, offset int) ([]store.AltPair, error)
}

// Enqueuer accepts asynchronous mapping refreshes.
type Enqueuer interface {
	EnqueueMapping(m *store.Mapping)
}

// Resolver answers "who is this, really". The canonical form of an id is
// the phone-number JID; lid forms resolve through the stored mapping, an
// alternate id carried by the event, then the session's own container, in
// that order. Unresolvable lids pass through unchanged.
type Resolver struct {
	mappings MappingStore
	messages MessageRewriter
	queue    Enqueuer
	device   DeviceLIDs

	cache *cache.Cache[types.JID]
	batch int
	log   waLog.Logger

	// reconciling guards against concurrent sweeps for the same lid.
	reconciling sync.Map
}

// NewResolver creates the resolver. The device container is attached later
// via SetDevice, once the session exists.
func NewResolver(mappings MappingStore, messages MessageRewriter, q Enqueuer, cfg config.IdentityConfig, log waLog.Logger) *Resolver {
	batch := cfg.BackfillBatch
	if batch < 1 {
		batch = 500
	}
	return &Resolver{
		mappings: mappings,
		messages: messages,
		queue:    q,
		cache:    cache.New[types.JID]("identity", 0, cfg.ResolveTTL),
		batch:    batch,
		log:      log.Sub("Identity"),
	}
}

// SetDevice attaches the session's mapping container (delayed initialization).
func (r *Resolver) SetDevice(d DeviceLIDs) {
	r.device = d
}

// Canonical resolves id to its canonical form. alt is the alternate form
// the event carried for the same participant, when any.
func (r *Resolver) Canonical(ctx context.Context, id, alt types.JID) types.JID {
	id = jid.Bare(id)
	alt = jid.Bare(alt)

	if jid.IsEmpty(id) {
		if jid.IsPN(alt) {
			return alt
		}
		return id
	}

	if !jid.IsLID(id) {
		// Already canonical. A lid alternate is still worth learning.
		if jid.IsPN(id) && jid.IsLID(alt) {
			r.Observe(ctx, alt, id, store.MappingSourceMessage)
		}
		return id
	}

	if mapped, ok := r.cache.Get(id.String()); ok {
		return mapped
	}

	m, err := r.mappings.Get(ctx, id)
	if err != nil {
		r.log.Warnf("Failed to look up mapping for %s: %v", id, err)
	} else if m != nil && !m.JID.IsEmpty() {
		r.cache.Set(id.String(), m.JID)
		return m.JID
	}

	if jid.IsPN(alt) {
		r.Observe(ctx, id, alt, store.MappingSourceMessage)
		return alt
	}

	if r.device != nil {
		pn, err := r.device.GetPNForLID(ctx, id)
		if err != nil {
			r.log.Debugf("Device lookup for %s failed: %v", id, err)
		} else if jid.IsPN(pn) {
			pn = jid.Bare(pn)
			r.Observe(ctx, id, pn, store.MappingSourceLID)
			return pn
		}
	}

	return id
}

// Observe learns that lid and pn name the same participant. Known and
// unchanged pairs refresh asynchronously; a first or changed resolution
// runs the reconciliation sweep before the pair is served from cache.
func (r *Resolver) Observe(ctx context.Context, lid, pn types.JID, source string) {
	lid = jid.Bare(lid)
	pn = jid.Bare(pn)
	if !jid.IsLID(lid) || !jid.IsPN(pn) {
		return
	}

	now := time.Now().UTC()
	mapping := &store.Mapping{LID: lid, JID: pn, FirstSeen: now, LastSeen: now, Source: source}

	if cached, ok := r.cache.Peek(lid.String()); ok && cached.User == pn.User {
		r.queue.EnqueueMapping(mapping)
		return
	}

	stored, err := r.mappings.Get(ctx, lid)
	if err != nil {
		r.log.Warnf("Failed to look up mapping for %s: %v", lid, err)
		r.queue.EnqueueMapping(mapping)
		return
	}
	if stored != nil && stored.JID.User == pn.User {
		r.cache.Set(lid.String(), pn)
		r.queue.EnqueueMapping(mapping)
		return
	}

	if err := r.reconcile(ctx, mapping); err != nil {
		r.log.Warnf("Failed to reconcile %s -> %s: %v", lid, pn, err)
		return
	}
	r.cache.Set(lid.String(), pn)
}

// reconcile upserts the mapping and rewrites stored messages still keyed
// by the lid, all inside one transaction so a crash leaves either both or
// neither. Rewrites run in bounded batches; the whole sweep is idempotent.
func (r *Resolver) reconcile(ctx context.Context, m *store.Mapping) error {
	key := m.LID.String()
	if _, busy := r.reconciling.LoadOrStore(key, struct{}{}); busy {
		return nil
	}
	defer r.reconciling.Delete(key)

	var rewritten int64
	err := r.mappings.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.mappings.UpsertTx(ctx, tx, m); err != nil {
			return err
		}
		for {
			n, err := r.messages.RewriteSenderTx(ctx, tx, m.LID, m.JID, r.batch)
			if err != nil {
				return err
			}
			rewritten += n
			if n < int64(r.batch) {
				return nil
			}
		}
	})
	if err != nil {
		return err
	}
	if rewritten > 0 {
		r.log.Infof("Reconciled %d stored messages from %s to %s", rewritten, m.LID, m.JID)
	}
	return nil
}

// Backfill mines stored raw payloads for alternate-participant sightings
// and learns every pair found. Gated by configuration; safe to re-run.
func (r *Resolver) Backfill(ctx context.Context) error {
	offset := 0
	learned := 0
	for {
		pairs, err := r.messages.ScanAltParticipants(ctx, r.batch, offset)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			lid, err := types.ParseJID(p.LID)
			if err != nil {
				continue
			}
			pn, err := types.ParseJID(p.JID)
			if err != nil {
				continue
			}
			r.Observe(ctx, lid, pn, store.MappingSourceMessage)
			learned++
		}
		if len(pairs) < r.batch {
			break
		}
		offset += len(pairs)
	}
	r.log.Infof("Backfill learned %d lid mappings from stored messages", learned)
	return nil
}
