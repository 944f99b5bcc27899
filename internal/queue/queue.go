// Package queue serializes persistence writes behind a single consumer so
// rows of the same logical key are applied in enqueue order.
package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/metrics"
	"zelador/internal/store"
)

// Op identifies a write kind.
type Op string

// Write kinds. New bulk kinds follow the same pattern.
const (
	OpInsertMessage    Op = "insert-message"
	OpUpsertChat       Op = "upsert-chat"
	OpUpsertContact    Op = "upsert-contact"
	OpUpsertLIDMapping Op = "upsert-lid-mapping"
)

// Item is one queued write.
type Item struct {
	Op       Op
	Message  *store.Message
	Chat     *store.Chat
	ChatOpts store.ChatUpsertOptions
	Contact  *store.Contact
	Mapping  *store.Mapping
}

// Sink receives the serialized writes.
type Sink interface {
	PutMessage(ctx context.Context, m *store.Message) error
	UpsertChat(ctx context.Context, c *store.Chat, opts store.ChatUpsertOptions) error
	UpsertContact(ctx context.Context, c *store.Contact) error
	UpsertMapping(ctx context.Context, m *store.Mapping) error
}

// Queue is the bounded single-consumer write pipeline. Producers never
// block: when the buffer is full the item is dropped with a warning.
type Queue struct {
	sink   Sink
	items  chan Item
	stop   chan struct{}
	done   chan struct{}
	closed atomic.Bool

	itemTimeout  time.Duration
	drainTimeout time.Duration
	maxTries     uint
	log          waLog.Logger
}

// New starts the consumer goroutine.
func New(sink Sink, size int, drainTimeout time.Duration, log waLog.Logger) *Queue {
	q := &Queue{
		sink:         sink,
		items:        make(chan Item, size),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		itemTimeout:  10 * time.Second,
		drainTimeout: drainTimeout,
		maxTries:     3,
		log:          log.Sub("Queue"),
	}
	go q.run()
	return q
}

// EnqueueMessage queues a message insert.
func (q *Queue) EnqueueMessage(m *store.Message) {
	q.enqueue(Item{Op: OpInsertMessage, Message: m})
}

// EnqueueChat queues a chat upsert.
func (q *Queue) EnqueueChat(c *store.Chat, opts store.ChatUpsertOptions) {
	q.enqueue(Item{Op: OpUpsertChat, Chat: c, ChatOpts: opts})
}

// EnqueueContact queues a contact upsert.
func (q *Queue) EnqueueContact(c *store.Contact) {
	q.enqueue(Item{Op: OpUpsertContact, Contact: c})
}

// EnqueueMapping queues an identity-mapping upsert.
func (q *Queue) EnqueueMapping(m *store.Mapping) {
	q.enqueue(Item{Op: OpUpsertLIDMapping, Mapping: m})
}

func (q *Queue) enqueue(it Item) {
	if q.closed.Load() {
		metrics.QueueDroppedTotal.WithLabelValues("closed").Inc()
		q.log.Warnf("Write queue closed, dropping %s", it.Op)
		return
	}
	select {
	case q.items <- it:
		metrics.QueueDepth.Set(float64(len(q.items)))
	default:
		metrics.QueueDroppedTotal.WithLabelValues("full").Inc()
		q.log.Warnf("Write queue full, dropping %s", it.Op)
	}
}

// Depth returns the number of waiting items.
func (q *Queue) Depth() int {
	return len(q.items)
}

// Close stops intake and drains the buffer within the grace period.
func (q *Queue) Close() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	close(q.stop)
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case it := <-q.items:
			q.apply(it)
			metrics.QueueDepth.Set(float64(len(q.items)))
		case <-q.stop:
			q.drain()
			return
		}
	}
}

// drain flushes buffered items until empty or the grace period runs out.
func (q *Queue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), q.drainTimeout)
	defer cancel()
	for {
		select {
		case it := <-q.items:
			q.applyCtx(ctx, it)
			if ctx.Err() != nil {
				remaining := len(q.items)
				if remaining > 0 {
					metrics.QueueDroppedTotal.WithLabelValues("drain-timeout").Add(float64(remaining))
					q.log.Errorf("Drain timed out with %d items remaining", remaining)
				}
				return
			}
		default:
			metrics.QueueDepth.Set(0)
			return
		}
	}
}

func (q *Queue) apply(it Item) {
	ctx, cancel := context.WithTimeout(context.Background(), q.itemTimeout)
	defer cancel()
	q.applyCtx(ctx, it)
}

// applyCtx writes one item, retrying transient faults with a short backoff.
// On exhaustion or a permanent fault the item is dropped; the consumer never
// blocks the event flow.
func (q *Queue) applyCtx(ctx context.Context, it Item) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	operation := func() (struct{}, error) {
		err := q.write(ctx, it)
		if err == nil {
			return struct{}{}, nil
		}
		if store.IsTransient(err) {
			metrics.QueueRetriesTotal.Inc()
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(q.maxTries))
	if err != nil {
		metrics.QueueDroppedTotal.WithLabelValues("write-failed").Inc()
		q.log.Errorf("Failed to apply %s, dropping: %v", it.Op, err)
	}
}

func (q *Queue) write(ctx context.Context, it Item) error {
	switch it.Op {
	case OpInsertMessage:
		return q.sink.PutMessage(ctx, it.Message)
	case OpUpsertChat:
		return q.sink.UpsertChat(ctx, it.Chat, it.ChatOpts)
	case OpUpsertContact:
		return q.sink.UpsertContact(ctx, it.Contact)
	case OpUpsertLIDMapping:
		return q.sink.UpsertMapping(ctx, it.Mapping)
	default:
		q.log.Warnf("Unknown queue op %q", it.Op)
		return nil
	}
}
