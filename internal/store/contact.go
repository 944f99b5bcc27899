package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.mau.fi/whatsmeow/types"
)

// Contact is the minimal user record mined from contact events and inbound
// push names.
type Contact struct {
	ID        types.JID
	Name      string
	PushName  string
	LID       types.JID
	UpdatedAt time.Time
}

type contactRow struct {
	ID        string         `db:"id"`
	Name      sql.NullString `db:"name"`
	PushName  sql.NullString `db:"push_name"`
	LID       sql.NullString `db:"lid"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// ContactStore handles contact persistence.
type ContactStore struct {
	store *Store
}

// NewContactStore creates a new ContactStore.
func NewContactStore(s *Store) *ContactStore {
	return &ContactStore{store: s}
}

// Put upserts a contact, keeping existing values where the new ones are
// empty.
func (s *ContactStore) Put(ctx context.Context, c *Contact) error {
	_, err := s.store.Exec(ctx, "contacts.put", `
		INSERT INTO zelador_contacts (id, name, push_name, lid, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name       = COALESCE(VALUES(name), name),
			push_name  = COALESCE(VALUES(push_name), push_name),
			lid        = COALESCE(VALUES(lid), lid),
			updated_at = VALUES(updated_at)
	`, c.ID.String(), nullString(c.Name), nullString(c.PushName),
		nullJID(c.LID), c.UpdatedAt.UTC())
	return err
}

// Get returns a contact or nil when it does not exist.
func (s *ContactStore) Get(ctx context.Context, id types.JID) (*Contact, error) {
	var row contactRow
	err := s.store.Get(ctx, "contacts.get", &row, `
		SELECT id, name, push_name, lid, updated_at FROM zelador_contacts WHERE id = ?
	`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Contact{
		ID:        parseJID(row.ID),
		Name:      stringOrEmpty(row.Name),
		PushName:  stringOrEmpty(row.PushName),
		LID:       parseNullJID(row.LID),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}
