package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.mau.fi/whatsmeow/types"
)

// Chat is a conversation container, private or group.
type Chat struct {
	ID        types.JID
	Name      string
	Raw       json.RawMessage
	UpdatedAt time.Time
}

// ChatUpsertOptions control how an upsert merges over an existing row.
type ChatUpsertOptions struct {
	// Partial keeps existing values where the new ones are empty.
	Partial bool
	// ForceName replaces the display name even on a partial upsert.
	ForceName bool
}

type chatRow struct {
	ID        string         `db:"id"`
	Name      sql.NullString `db:"name"`
	Raw       []byte         `db:"raw_chat"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// ChatStore handles chat persistence.
type ChatStore struct {
	store *Store
}

// NewChatStore creates a new ChatStore.
func NewChatStore(s *Store) *ChatStore {
	return &ChatStore{store: s}
}

// Upsert inserts or updates a chat per the merge options.
func (s *ChatStore) Upsert(ctx context.Context, c *Chat, opts ChatUpsertOptions) error {
	update := `
			name       = VALUES(name),
			raw_chat   = VALUES(raw_chat),
			updated_at = VALUES(updated_at)`
	if opts.Partial {
		update = `
			name       = COALESCE(VALUES(name), name),
			raw_chat   = COALESCE(VALUES(raw_chat), raw_chat),
			updated_at = VALUES(updated_at)`
		if opts.ForceName {
			update = `
			name       = VALUES(name),
			raw_chat   = COALESCE(VALUES(raw_chat), raw_chat),
			updated_at = VALUES(updated_at)`
		}
	}

	_, err := s.store.Exec(ctx, "chats.upsert", `
		INSERT INTO zelador_chats (id, name, raw_chat, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE`+update,
		c.ID.String(), nullString(c.Name), nullBytes(c.Raw), c.UpdatedAt.UTC())
	return err
}

// Get returns a chat or nil when it does not exist.
func (s *ChatStore) Get(ctx context.Context, id types.JID) (*Chat, error) {
	var row chatRow
	err := s.store.Get(ctx, "chats.get", &row, `
		SELECT id, name, raw_chat, updated_at FROM zelador_chats WHERE id = ?
	`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Chat{
		ID:        parseJID(row.ID),
		Name:      stringOrEmpty(row.Name),
		Raw:       json.RawMessage(row.Raw),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

// Delete removes a chat after the provider signalled deletion.
func (s *ChatStore) Delete(ctx context.Context, id types.JID) error {
	_, err := s.store.Exec(ctx, "chats.delete", `
		DELETE FROM zelador_chats WHERE id = ?
	`, id.String())
	return err
}
