package cache

import (
	"sync"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/infra/config"
	"zelador/internal/metrics"
	"zelador/internal/store"
)

// recentsPerChat bounds the per-chat recent message id window.
const recentsPerChat = 100

// shrinker is the uniform view the janitor has over the typed caches.
type shrinker interface {
	Name() string
	Len() int
	CleanupExpired() int
	EvictOldest(keep int) int
	Flush() int
}

// Tier bundles the typed caches behind one janitor. Every cache feeds
// the same eviction metrics.
type Tier struct {
	Messages *Cache[*store.Message]
	Events   *Cache[any]
	Groups   *Cache[*store.Group]
	Contacts *Cache[*store.Contact]
	Chats    *Cache[*store.Chat]

	Recents *RecentsIndex

	cfg config.CacheConfig
	log waLog.Logger
	all []shrinker

	stop chan struct{}
	done chan struct{}
}

// NewTier builds the cache tier. Call Start to run the janitor.
func NewTier(cfg config.CacheConfig, log waLog.Logger) *Tier {
	t := &Tier{
		Messages: New[*store.Message]("messages", cfg.PerCacheMax, cfg.MessagesTTL),
		Events:   New[any]("events", cfg.PerCacheMax, cfg.EventsTTL),
		Groups:   New[*store.Group]("groups", cfg.PerCacheMax, cfg.GroupsTTL),
		Contacts: New[*store.Contact]("contacts", cfg.PerCacheMax, cfg.ContactsTTL),
		Chats:    New[*store.Chat]("chats", cfg.PerCacheMax, cfg.ChatsTTL),
		Recents:  newRecentsIndex(recentsPerChat),
		cfg:      cfg,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	t.all = []shrinker{t.Messages, t.Events, t.Groups, t.Contacts, t.Chats}

	t.Messages.SetOnEvict(t.observeEviction)
	t.Events.SetOnEvict(t.observeEviction)
	t.Groups.SetOnEvict(t.observeEviction)
	t.Contacts.SetOnEvict(t.observeEviction)
	t.Chats.SetOnEvict(t.observeEviction)

	return t
}

// Start launches the janitor goroutine when auto-clean is enabled.
func (t *Tier) Start() {
	if !t.cfg.AutoClean {
		close(t.done)
		return
	}
	go t.run()
}

// Stop halts the janitor and waits for it to exit.
func (t *Tier) Stop() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	<-t.done
}

// FlushAll empties every cache and the recents index.
func (t *Tier) FlushAll() {
	for _, c := range t.all {
		c.Flush()
	}
	t.Recents.Flush()
	t.publishSizes()
}

// Stats returns the live entry count per cache.
func (t *Tier) Stats() map[string]int {
	stats := make(map[string]int, len(t.all))
	for _, c := range t.all {
		stats[c.Name()] = c.Len()
	}
	return stats
}

// CloneOnGet reports whether cached values must be copied before being
// handed to callers that mutate them.
func (t *Tier) CloneOnGet() bool {
	return t.cfg.CloneOnGet
}

func (t *Tier) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-t.stop:
			return
		}
	}
}

// Sweep removes expired entries, then enforces the per-cache and global
// size caps by dropping the oldest entries down to the keep count.
func (t *Tier) Sweep() {
	expired := 0
	for _, c := range t.all {
		expired += c.CleanupExpired()
	}

	swept := 0
	total := 0
	for _, c := range t.all {
		if t.cfg.PerCacheMax > 0 && c.Len() > t.cfg.PerCacheMax {
			swept += c.EvictOldest(t.cfg.KeepAfterSweep)
		}
		total += c.Len()
	}

	if t.cfg.GlobalMax > 0 && total > t.cfg.GlobalMax {
		for _, c := range t.all {
			swept += c.EvictOldest(t.cfg.KeepAfterSweep)
		}
	}

	if expired > 0 || swept > 0 {
		t.log.Debugf("Cache sweep removed %d expired and %d over-cap entries", expired, swept)
	}
	t.publishSizes()
}

func (t *Tier) observeEviction(cache, _ string, reason EvictReason) {
	metrics.CacheEvictionsTotal.WithLabelValues(cache, string(reason)).Inc()
}

func (t *Tier) publishSizes() {
	for _, c := range t.all {
		metrics.CacheEntries.WithLabelValues(c.Name()).Set(float64(c.Len()))
	}
}

// RecentsIndex keeps a bounded window of recent message ids per chat,
// newest last. It backs revoke and reaction lookups without a DB read.
type RecentsIndex struct {
	mu     sync.Mutex
	byChat map[string][]string
	limit  int
}

func newRecentsIndex(limit int) *RecentsIndex {
	return &RecentsIndex{
		byChat: make(map[string][]string),
		limit:  limit,
	}
}

// Push records a message id for a chat, dropping the oldest beyond the
// window.
func (r *RecentsIndex) Push(chatID, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := append(r.byChat[chatID], messageID)
	if len(ids) > r.limit {
		ids = ids[len(ids)-r.limit:]
	}
	r.byChat[chatID] = ids
}

// List returns a copy of the chat's window, oldest first.
func (r *RecentsIndex) List(chatID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byChat[chatID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Contains reports whether the chat's window holds the message id.
func (r *RecentsIndex) Contains(chatID, messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.byChat[chatID] {
		if id == messageID {
			return true
		}
	}
	return false
}

// Drop forgets one chat's window.
func (r *RecentsIndex) Drop(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byChat, chatID)
}

// Flush forgets every window.
func (r *RecentsIndex) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byChat = make(map[string][]string)
}
