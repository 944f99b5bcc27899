package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/infra/config"
	"zelador/internal/store"
)

type fakeMappings struct {
	mu      sync.Mutex
	rows    map[string]*store.Mapping
	getErr  error
	gets    int
	upserts []*store.Mapping
	txRuns  int
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{rows: make(map[string]*store.Mapping)}
}

func (f *fakeMappings) Get(_ context.Context, lid types.JID) (*store.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.rows[lid.String()], nil
}

func (f *fakeMappings) UpsertTx(_ context.Context, _ *sqlx.Tx, m *store.Mapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, m)
	f.rows[m.LID.String()] = m
	return nil
}

func (f *fakeMappings) WithTx(_ context.Context, fn func(tx *sqlx.Tx) error) error {
	f.mu.Lock()
	f.txRuns++
	f.mu.Unlock()
	return fn(nil)
}

type rewriteCall struct {
	from, to types.JID
}

type fakeMessages struct {
	mu       sync.Mutex
	rewrites []rewriteCall
	// counts scripts the return value per rewrite call; past the end every
	// call rewrites zero rows.
	counts []int64
	pages  [][]store.AltPair
}

func (f *fakeMessages) RewriteSenderTx(_ context.Context, _ *sqlx.Tx, from, to types.JID, _ int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(0)
	if len(f.rewrites) < len(f.counts) {
		n = f.counts[len(f.rewrites)]
	}
	f.rewrites = append(f.rewrites, rewriteCall{from: from, to: to})
	return n, nil
}

func (f *fakeMessages) ScanAltParticipants(_ context.Context, _, _ int) ([]store.AltPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	mappings []*store.Mapping
}

func (f *fakeEnqueuer) EnqueueMapping(m *store.Mapping) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mappings = append(f.mappings, m)
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mappings)
}

type fakeDevice struct {
	pn  types.JID
	err error
}

func (f *fakeDevice) GetPNForLID(_ context.Context, _ types.JID) (types.JID, error) {
	return f.pn, f.err
}

func lid(user string) types.JID {
	return types.NewJID(user, types.HiddenUserServer)
}

func pn(user string) types.JID {
	return types.NewJID(user, types.DefaultUserServer)
}

func newTestResolver(mappings *fakeMappings, messages *fakeMessages, q *fakeEnqueuer) *Resolver {
	cfg := config.IdentityConfig{ResolveTTL: time.Minute, BackfillBatch: 2}
	return NewResolver(mappings, messages, q, cfg, waLog.Noop)
}

func TestCanonicalPhoneNumberPassesThrough(t *testing.T) {
	r := newTestResolver(newFakeMappings(), &fakeMessages{}, &fakeEnqueuer{})

	in := pn("5511999990000")
	in.Device = 7

	got := r.Canonical(context.Background(), in, types.JID{})
	assert.Equal(t, pn("5511999990000"), got)
}

func TestCanonicalEmptyFallsBackToAlt(t *testing.T) {
	r := newTestResolver(newFakeMappings(), &fakeMessages{}, &fakeEnqueuer{})

	got := r.Canonical(context.Background(), types.JID{}, pn("555"))
	assert.Equal(t, pn("555"), got)

	got = r.Canonical(context.Background(), types.JID{}, types.JID{})
	assert.True(t, got.IsEmpty())
}

func TestCanonicalResolvesFromStoredMapping(t *testing.T) {
	mappings := newFakeMappings()
	mappings.rows[lid("9001").String()] = &store.Mapping{LID: lid("9001"), JID: pn("555")}
	r := newTestResolver(mappings, &fakeMessages{}, &fakeEnqueuer{})

	got := r.Canonical(context.Background(), lid("9001"), types.JID{})
	assert.Equal(t, pn("555"), got)

	// Second resolution is served from cache, not another lookup.
	got = r.Canonical(context.Background(), lid("9001"), types.JID{})
	assert.Equal(t, pn("555"), got)
	assert.Equal(t, 1, mappings.gets)
}

func TestCanonicalLearnsFromAlt(t *testing.T) {
	mappings := newFakeMappings()
	messages := &fakeMessages{}
	r := newTestResolver(mappings, messages, &fakeEnqueuer{})

	got := r.Canonical(context.Background(), lid("9001"), pn("555"))
	assert.Equal(t, pn("555"), got)

	// First sighting runs the reconciliation sweep.
	require.Len(t, mappings.upserts, 1)
	assert.Equal(t, pn("555"), mappings.upserts[0].JID)
	assert.Equal(t, store.MappingSourceMessage, mappings.upserts[0].Source)
	require.NotEmpty(t, messages.rewrites)
	assert.Equal(t, lid("9001"), messages.rewrites[0].from)
	assert.Equal(t, pn("555"), messages.rewrites[0].to)

	// And later lookups are answered from cache.
	gets := mappings.gets
	got = r.Canonical(context.Background(), lid("9001"), types.JID{})
	assert.Equal(t, pn("555"), got)
	assert.Equal(t, gets, mappings.gets)
}

func TestCanonicalConsultsDeviceContainer(t *testing.T) {
	mappings := newFakeMappings()
	r := newTestResolver(mappings, &fakeMessages{}, &fakeEnqueuer{})
	r.SetDevice(&fakeDevice{pn: pn("777")})

	got := r.Canonical(context.Background(), lid("9002"), types.JID{})
	assert.Equal(t, pn("777"), got)

	require.Len(t, mappings.upserts, 1)
	assert.Equal(t, store.MappingSourceLID, mappings.upserts[0].Source)
}

func TestCanonicalUnresolvableLIDPassesThrough(t *testing.T) {
	r := newTestResolver(newFakeMappings(), &fakeMessages{}, &fakeEnqueuer{})

	got := r.Canonical(context.Background(), lid("9003"), types.JID{})
	assert.Equal(t, lid("9003"), got)

	// Device errors degrade to the same passthrough.
	r.SetDevice(&fakeDevice{err: errors.New("no session")})
	got = r.Canonical(context.Background(), lid("9003"), types.JID{})
	assert.Equal(t, lid("9003"), got)
}

func TestCanonicalLearnsLIDAltForPhoneNumber(t *testing.T) {
	mappings := newFakeMappings()
	r := newTestResolver(mappings, &fakeMessages{}, &fakeEnqueuer{})

	got := r.Canonical(context.Background(), pn("555"), lid("9001"))
	assert.Equal(t, pn("555"), got)

	require.Len(t, mappings.upserts, 1)
	assert.Equal(t, lid("9001"), mappings.upserts[0].LID)
	assert.Equal(t, pn("555"), mappings.upserts[0].JID)
}

func TestObserveKnownPairRefreshesAsync(t *testing.T) {
	mappings := newFakeMappings()
	q := &fakeEnqueuer{}
	r := newTestResolver(mappings, &fakeMessages{}, q)

	r.Observe(context.Background(), lid("9001"), pn("555"), store.MappingSourceGroup)
	require.Len(t, mappings.upserts, 1)
	assert.Equal(t, 0, q.count())

	// The pair is cached now; repeats go through the write queue only.
	r.Observe(context.Background(), lid("9001"), pn("555"), store.MappingSourceGroup)
	assert.Len(t, mappings.upserts, 1)
	assert.Equal(t, 1, q.count())
}

func TestObserveChangedPairReconciles(t *testing.T) {
	mappings := newFakeMappings()
	mappings.rows[lid("9001").String()] = &store.Mapping{LID: lid("9001"), JID: pn("111")}
	messages := &fakeMessages{}
	r := newTestResolver(mappings, messages, &fakeEnqueuer{})

	r.Observe(context.Background(), lid("9001"), pn("222"), store.MappingSourceContacts)

	require.Len(t, mappings.upserts, 1)
	assert.Equal(t, pn("222"), mappings.upserts[0].JID)
	assert.NotEmpty(t, messages.rewrites)

	got := r.Canonical(context.Background(), lid("9001"), types.JID{})
	assert.Equal(t, pn("222"), got)
}

func TestObserveIgnoresMalformedPairs(t *testing.T) {
	mappings := newFakeMappings()
	q := &fakeEnqueuer{}
	r := newTestResolver(mappings, &fakeMessages{}, q)

	r.Observe(context.Background(), pn("555"), pn("555"), store.MappingSourceMessage)
	r.Observe(context.Background(), lid("9001"), lid("9001"), store.MappingSourceMessage)
	r.Observe(context.Background(), types.JID{}, pn("555"), store.MappingSourceMessage)

	assert.Empty(t, mappings.upserts)
	assert.Equal(t, 0, q.count())
}

func TestObserveLookupErrorStillQueuesRefresh(t *testing.T) {
	mappings := newFakeMappings()
	mappings.getErr = errors.New("gone away")
	q := &fakeEnqueuer{}
	r := newTestResolver(mappings, &fakeMessages{}, q)

	r.Observe(context.Background(), lid("9001"), pn("555"), store.MappingSourceMessage)

	assert.Empty(t, mappings.upserts)
	assert.Equal(t, 1, q.count())
}

func TestReconcileRewritesInBatches(t *testing.T) {
	mappings := newFakeMappings()
	// Batch size is 2: two full batches then a short one ends the loop.
	messages := &fakeMessages{counts: []int64{2, 2, 1}}
	r := newTestResolver(mappings, messages, &fakeEnqueuer{})

	r.Observe(context.Background(), lid("9001"), pn("555"), store.MappingSourceMessage)

	assert.Len(t, messages.rewrites, 3)
	assert.Equal(t, 1, mappings.txRuns)
}

func TestBackfillLearnsPairsAcrossPages(t *testing.T) {
	mappings := newFakeMappings()
	messages := &fakeMessages{pages: [][]store.AltPair{
		{
			{LID: lid("9001").String(), JID: pn("111").String()},
			{LID: lid("9002").String(), JID: pn("222").String()},
		},
		{
			{LID: "not a jid", JID: pn("333").String()},
		},
	}}
	r := newTestResolver(mappings, messages, &fakeEnqueuer{})

	err := r.Backfill(context.Background())
	require.NoError(t, err)

	require.Len(t, mappings.upserts, 2)
	assert.Equal(t, pn("111"), mappings.upserts[0].JID)
	assert.Equal(t, pn("222"), mappings.upserts[1].JID)
}
