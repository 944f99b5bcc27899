package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"go.mau.fi/whatsmeow/types"
)

// Participant roles form a closed set.
const (
	RoleMember     = "member"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Participant is one group member with its admin role.
type Participant struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IsAdmin reports whether the participant holds any admin role.
func (p Participant) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

// Group is the structured state of a group conversation. Participants are an
// ordered set of unique ids; CachedAt drives the staleness window.
type Group struct {
	ID               types.JID
	Subject          string
	Description      string
	Owner            types.JID
	Creation         time.Time
	Participants     []Participant
	ParticipantCount int
	CachedAt         time.Time
	UpdatedAt        time.Time
}

// Participant returns the participant with the given id, or nil.
func (g *Group) Participant(id string) *Participant {
	for i := range g.Participants {
		if g.Participants[i].ID == id {
			return &g.Participants[i]
		}
	}
	return nil
}

// SortParticipants orders the list by id so the set stays deterministic.
func (g *Group) SortParticipants() {
	sort.Slice(g.Participants, func(i, j int) bool {
		return g.Participants[i].ID < g.Participants[j].ID
	})
}

// Clone returns a deep copy safe to mutate without touching cached state.
func (g *Group) Clone() *Group {
	out := *g
	out.Participants = make([]Participant, len(g.Participants))
	copy(out.Participants, g.Participants)
	return &out
}

type groupRow struct {
	ID               string         `db:"id"`
	Subject          sql.NullString `db:"subject"`
	Description      sql.NullString `db:"description"`
	Owner            sql.NullString `db:"owner"`
	Creation         sql.NullTime   `db:"creation"`
	Participants     []byte         `db:"participants"`
	ParticipantCount int            `db:"participant_count"`
	CachedAt         time.Time      `db:"cached_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *groupRow) toGroup() *Group {
	g := &Group{
		ID:               parseJID(r.ID),
		Subject:          stringOrEmpty(r.Subject),
		Description:      stringOrEmpty(r.Description),
		Owner:            parseNullJID(r.Owner),
		ParticipantCount: r.ParticipantCount,
		CachedAt:         r.CachedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if r.Creation.Valid {
		g.Creation = r.Creation.Time.UTC()
	}
	if len(r.Participants) > 0 {
		_ = json.Unmarshal(r.Participants, &g.Participants)
	}
	return g
}

// GroupStore handles group metadata persistence.
type GroupStore struct {
	store *Store
}

// NewGroupStore creates a new GroupStore.
func NewGroupStore(s *Store) *GroupStore {
	return &GroupStore{store: s}
}

// Put replaces the stored metadata for a group.
func (s *GroupStore) Put(ctx context.Context, g *Group) error {
	g.SortParticipants()
	var creation interface{}
	if !g.Creation.IsZero() {
		creation = g.Creation.UTC()
	}
	_, err := s.store.Exec(ctx, "groups.put", `
		INSERT INTO zelador_groups
			(id, subject, description, owner, creation, participants, participant_count, cached_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			subject           = VALUES(subject),
			description       = VALUES(description),
			owner             = COALESCE(VALUES(owner), owner),
			creation          = COALESCE(VALUES(creation), creation),
			participants      = VALUES(participants),
			participant_count = VALUES(participant_count),
			cached_at         = VALUES(cached_at),
			updated_at        = VALUES(updated_at)
	`, g.ID.String(), nullString(g.Subject), nullString(g.Description),
		nullJID(g.Owner), creation, jsonMarshal(g.Participants),
		len(g.Participants), g.CachedAt.UTC(), g.UpdatedAt.UTC())
	return err
}

// Get returns stored group metadata or nil when absent.
func (s *GroupStore) Get(ctx context.Context, id types.JID) (*Group, error) {
	var row groupRow
	err := s.store.Get(ctx, "groups.get", &row, `
		SELECT id, subject, description, owner, creation, participants,
		       participant_count, cached_at, updated_at
		FROM zelador_groups
		WHERE id = ?
	`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toGroup(), nil
}

// UpdateParticipants persists a granular participant change and refreshes
// the staleness timestamp.
func (s *GroupStore) UpdateParticipants(ctx context.Context, id types.JID, participants []Participant, cachedAt time.Time) error {
	_, err := s.store.Exec(ctx, "groups.participants", `
		UPDATE zelador_groups
		SET participants = ?, participant_count = ?, cached_at = ?, updated_at = ?
		WHERE id = ?
	`, jsonMarshal(participants), len(participants), cachedAt.UTC(), cachedAt.UTC(), id.String())
	return err
}
