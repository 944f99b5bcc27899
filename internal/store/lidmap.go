package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.mau.fi/whatsmeow/types"
)

// Mapping sources form a closed set.
const (
	MappingSourceMessage  = "message"
	MappingSourceContacts = "contacts"
	MappingSourceGroup    = "group"
	MappingSourceLID      = "lid-mapping"
)

// Mapping asserts that a lid-form and a jid-form id refer to the same
// person. JID stays zero until the phone-number form has been observed.
type Mapping struct {
	LID       types.JID
	JID       types.JID
	FirstSeen time.Time
	LastSeen  time.Time
	Source    string
}

type mappingRow struct {
	LID       string         `db:"lid"`
	JID       sql.NullString `db:"jid"`
	FirstSeen time.Time      `db:"first_seen"`
	LastSeen  time.Time      `db:"last_seen"`
	Source    string         `db:"source"`
}

func (r *mappingRow) toMapping() *Mapping {
	return &Mapping{
		LID:       parseJID(r.LID),
		JID:       parseNullJID(r.JID),
		FirstSeen: r.FirstSeen.UTC(),
		LastSeen:  r.LastSeen.UTC(),
		Source:    r.Source,
	}
}

// upsertMappingSQL never lets a null jid overwrite a known one, and only
// advances last_seen.
const upsertMappingSQL = `
	INSERT INTO zelador_lid_map (lid, jid, first_seen, last_seen, source)
	VALUES (?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		jid       = COALESCE(VALUES(jid), jid),
		last_seen = GREATEST(last_seen, VALUES(last_seen)),
		source    = VALUES(source)`

// LIDStore handles identity-mapping persistence.
type LIDStore struct {
	store *Store
}

// NewLIDStore creates a new LIDStore.
func NewLIDStore(s *Store) *LIDStore {
	return &LIDStore{store: s}
}

// Upsert inserts or refreshes a mapping.
func (s *LIDStore) Upsert(ctx context.Context, m *Mapping) error {
	_, err := s.store.Exec(ctx, "lidmap.upsert", upsertMappingSQL,
		m.LID.String(), nullJID(m.JID), m.FirstSeen.UTC(), m.LastSeen.UTC(), m.Source)
	return err
}

// UpsertTx is Upsert inside the caller's transaction, used when the mapping
// write and the message reconciliation must commit together.
func (s *LIDStore) UpsertTx(ctx context.Context, tx *sqlx.Tx, m *Mapping) error {
	_, err := tx.ExecContext(ctx, upsertMappingSQL,
		m.LID.String(), nullJID(m.JID), m.FirstSeen.UTC(), m.LastSeen.UTC(), m.Source)
	return err
}

// Get returns the mapping for a lid, or nil when none exists.
func (s *LIDStore) Get(ctx context.Context, lid types.JID) (*Mapping, error) {
	var row mappingRow
	err := s.store.Get(ctx, "lidmap.get", &row, `
		SELECT lid, jid, first_seen, last_seen, source FROM zelador_lid_map WHERE lid = ?
	`, lid.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toMapping(), nil
}

// WithTx exposes the gateway transaction scope to the identity resolver.
func (s *LIDStore) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return s.store.WithTx(ctx, fn)
}
