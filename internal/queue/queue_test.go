package queue

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/store"
)

// recordingSink captures applied writes and can be scripted to fail or stall.
type recordingSink struct {
	mu       sync.Mutex
	ops      []Op
	messages []*store.Message
	contacts []*store.Contact

	// failWith returns the error for the given call number (1-based), nil to
	// succeed. Leave unset for an always-succeeding sink.
	failWith func(call int) error
	calls    int

	// entered is signalled when a write starts; gate, when set, blocks the
	// write until closed.
	entered chan struct{}
	gate    chan struct{}
}

func (s *recordingSink) record(op Op) error {
	s.mu.Lock()
	s.calls++
	call := s.calls
	fail := s.failWith
	entered := s.entered
	gate := s.gate
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if fail != nil {
		if err := fail(call); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.ops = append(s.ops, op)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) PutMessage(_ context.Context, m *store.Message) error {
	err := s.record(OpInsertMessage)
	if err == nil {
		s.mu.Lock()
		s.messages = append(s.messages, m)
		s.mu.Unlock()
	}
	return err
}

func (s *recordingSink) UpsertChat(_ context.Context, _ *store.Chat, _ store.ChatUpsertOptions) error {
	return s.record(OpUpsertChat)
}

func (s *recordingSink) UpsertContact(_ context.Context, c *store.Contact) error {
	err := s.record(OpUpsertContact)
	if err == nil {
		s.mu.Lock()
		s.contacts = append(s.contacts, c)
		s.mu.Unlock()
	}
	return err
}

func (s *recordingSink) UpsertMapping(_ context.Context, _ *store.Mapping) error {
	return s.record(OpUpsertLIDMapping)
}

func (s *recordingSink) opLog() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.ops...)
}

func (s *recordingSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testMessage(id string) *store.Message {
	return &store.Message{
		ChatID:    types.NewJID("123", types.GroupServer),
		MessageID: id,
		SenderID:  types.NewJID("555", types.DefaultUserServer),
		Content:   "oi",
		Timestamp: time.Now().UTC(),
	}
}

func TestQueueAppliesInOrder(t *testing.T) {
	sink := &recordingSink{}
	q := New(sink, 16, time.Second, waLog.Noop)

	q.EnqueueMessage(testMessage("A"))
	q.EnqueueChat(&store.Chat{ID: types.NewJID("123", types.GroupServer)}, store.ChatUpsertOptions{Partial: true})
	q.EnqueueContact(&store.Contact{ID: types.NewJID("555", types.DefaultUserServer), Name: "Ana"})
	q.EnqueueMapping(&store.Mapping{
		LID: types.NewJID("9001", types.HiddenUserServer),
		JID: types.NewJID("555", types.DefaultUserServer),
	})
	q.Close()

	require.Equal(t, []Op{OpInsertMessage, OpUpsertChat, OpUpsertContact, OpUpsertLIDMapping}, sink.opLog())
}

func TestQueueDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	q := New(sink, 64, time.Second, waLog.Noop)

	for i := 0; i < 20; i++ {
		q.EnqueueContact(&store.Contact{ID: types.NewJID("555", types.DefaultUserServer)})
	}
	q.Close()

	assert.Equal(t, 20, sink.callCount())
	assert.Equal(t, 0, q.Depth())
}

func TestQueueDropsWhenFull(t *testing.T) {
	sink := &recordingSink{
		entered: make(chan struct{}, 4),
		gate:    make(chan struct{}),
	}
	q := New(sink, 1, time.Second, waLog.Noop)

	// First item is taken by the consumer, which stalls on the gate.
	q.EnqueueMessage(testMessage("first"))
	<-sink.entered

	// Second fills the buffer, third has nowhere to go and is dropped.
	q.EnqueueMessage(testMessage("second"))
	q.EnqueueMessage(testMessage("third"))

	close(sink.gate)
	q.Close()

	require.Equal(t, 2, sink.callCount())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.messages, 2)
	assert.Equal(t, "first", sink.messages[0].MessageID)
	assert.Equal(t, "second", sink.messages[1].MessageID)
}

func TestQueueEnqueueAfterCloseDropped(t *testing.T) {
	sink := &recordingSink{}
	q := New(sink, 4, time.Second, waLog.Noop)
	q.Close()

	q.EnqueueMessage(testMessage("late"))

	assert.Equal(t, 0, sink.callCount())
}

func TestQueueCloseIdempotent(t *testing.T) {
	q := New(&recordingSink{}, 4, time.Second, waLog.Noop)
	q.Close()
	q.Close()
}

func TestQueueRetriesTransientFault(t *testing.T) {
	sink := &recordingSink{
		failWith: func(call int) error {
			if call < 3 {
				return driver.ErrBadConn
			}
			return nil
		},
	}
	q := New(sink, 4, 5*time.Second, waLog.Noop)

	q.EnqueueMessage(testMessage("retry-me"))
	q.Close()

	assert.Equal(t, 3, sink.callCount())
	require.Equal(t, []Op{OpInsertMessage}, sink.opLog())
}

func TestQueueDropsPermanentFault(t *testing.T) {
	permanent := errors.New("Error 1062: Duplicate entry")
	sink := &recordingSink{
		failWith: func(call int) error {
			if call == 1 {
				return permanent
			}
			return nil
		},
	}
	q := New(sink, 4, time.Second, waLog.Noop)

	q.EnqueueMessage(testMessage("doomed"))
	q.EnqueueContact(&store.Contact{ID: types.NewJID("555", types.DefaultUserServer)})
	q.Close()

	// One attempt for the failing item, no retries, and the queue keeps
	// serving later items.
	assert.Equal(t, 2, sink.callCount())
	assert.Empty(t, sink.messages)
	assert.Len(t, sink.contacts, 1)
}
