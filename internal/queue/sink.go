package queue

import (
	"context"

	"zelador/internal/store"
)

// StoreSink applies queued writes to the storage gateway.
type StoreSink struct {
	messages *store.MessageStore
	chats    *store.ChatStore
	contacts *store.ContactStore
	lids     *store.LIDStore
}

// NewStoreSink creates a new StoreSink.
func NewStoreSink(messages *store.MessageStore, chats *store.ChatStore, contacts *store.ContactStore, lids *store.LIDStore) *StoreSink {
	return &StoreSink{messages: messages, chats: chats, contacts: contacts, lids: lids}
}

func (s *StoreSink) PutMessage(ctx context.Context, m *store.Message) error {
	return s.messages.Put(ctx, m)
}

func (s *StoreSink) UpsertChat(ctx context.Context, c *store.Chat, opts store.ChatUpsertOptions) error {
	return s.chats.Upsert(ctx, c, opts)
}

func (s *StoreSink) UpsertContact(ctx context.Context, c *store.Contact) error {
	return s.contacts.Put(ctx, c)
}

func (s *StoreSink) UpsertMapping(ctx context.Context, m *store.Mapping) error {
	return s.lids.Upsert(ctx, m)
}
