package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.mau.fi/whatsmeow/types"
)

// Message is the durable record of one exchanged content item. Raw preserves
// the provider payload losslessly; Content is the derived text extract.
type Message struct {
	ChatID    types.JID
	MessageID string
	SenderID  types.JID
	Content   string
	Raw       json.RawMessage
	Timestamp time.Time
	CreatedAt time.Time
}

type messageRow struct {
	ChatID    string         `db:"chat_id"`
	MessageID string         `db:"message_id"`
	SenderID  string         `db:"sender_id"`
	Content   sql.NullString `db:"content"`
	Raw       []byte         `db:"raw_message"`
	Timestamp time.Time      `db:"timestamp"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r *messageRow) toMessage() *Message {
	return &Message{
		ChatID:    parseJID(r.ChatID),
		MessageID: r.MessageID,
		SenderID:  parseJID(r.SenderID),
		Content:   stringOrEmpty(r.Content),
		Raw:       json.RawMessage(r.Raw),
		Timestamp: r.Timestamp.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// MessageStore handles message persistence.
type MessageStore struct {
	store *Store
}

// NewMessageStore creates a new MessageStore.
func NewMessageStore(s *Store) *MessageStore {
	return &MessageStore{store: s}
}

// Put inserts or updates a message. Re-inserting the same message leaves one
// row; empty content or raw never clears a previously stored value.
func (s *MessageStore) Put(ctx context.Context, m *Message) error {
	_, err := s.store.Exec(ctx, "messages.put", `
		INSERT INTO zelador_messages (chat_id, message_id, sender_id, content, raw_message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			sender_id   = VALUES(sender_id),
			content     = COALESCE(VALUES(content), content),
			raw_message = COALESCE(VALUES(raw_message), raw_message),
			timestamp   = VALUES(timestamp)
	`, m.ChatID.String(), m.MessageID, m.SenderID.String(),
		nullString(m.Content), nullBytes(m.Raw), m.Timestamp.UTC())
	return err
}

// Get returns a message or nil when it does not exist.
func (s *MessageStore) Get(ctx context.Context, chatID types.JID, messageID string) (*Message, error) {
	var row messageRow
	err := s.store.Get(ctx, "messages.get", &row, `
		SELECT chat_id, message_id, sender_id, content, raw_message, timestamp, created_at
		FROM zelador_messages
		WHERE chat_id = ? AND message_id = ?
	`, chatID.String(), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toMessage(), nil
}

// RecentByChat returns up to limit messages of a chat, newest first.
func (s *MessageStore) RecentByChat(ctx context.Context, chatID types.JID, limit int) ([]*Message, error) {
	var rows []messageRow
	err := s.store.Select(ctx, "messages.recent", &rows, `
		SELECT chat_id, message_id, sender_id, content, raw_message, timestamp, created_at
		FROM zelador_messages
		WHERE chat_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, chatID.String(), limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Message, len(rows))
	for i := range rows {
		out[i] = rows[i].toMessage()
	}
	return out, nil
}

// RewriteSenderTx re-stamps historical rows from one sender id to another in
// bounded batches inside the caller's transaction. It returns the number of
// rows changed by this batch; callers loop until zero.
func (s *MessageStore) RewriteSenderTx(ctx context.Context, tx *sqlx.Tx, from, to types.JID, batch int) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE zelador_messages SET sender_id = ? WHERE sender_id = ? LIMIT ?
	`, to.String(), from.String(), batch)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AltPair is one (lid, jid) sighting mined from stored payloads.
type AltPair struct {
	LID string `db:"lid"`
	JID string `db:"jid"`
}

// ScanAltParticipants mines stored raw payloads for sender/alt-participant
// pairs still keyed by a lid, in bounded batches for the boot backfill.
func (s *MessageStore) ScanAltParticipants(ctx context.Context, limit, offset int) ([]AltPair, error) {
	var pairs []AltPair
	err := s.store.Select(ctx, "messages.backfill", &pairs, `
		SELECT DISTINCT
			sender_id AS lid,
			JSON_UNQUOTE(JSON_EXTRACT(raw_message, '$.info.senderAlt')) AS jid
		FROM zelador_messages
		WHERE sender_id LIKE '%@lid'
		  AND JSON_UNQUOTE(JSON_EXTRACT(raw_message, '$.info.senderAlt')) IS NOT NULL
		LIMIT ? OFFSET ?
	`, limit, offset)
	return pairs, err
}
