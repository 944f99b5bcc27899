package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.mau.fi/whatsmeow/types"
)

// GlobalConfigID is the reserved row holding process-wide sets.
const GlobalConfigID = "__global__"

// GroupSettings is the per-group settings blob. Zero values mean "unset";
// reads of a missing group yield the zero struct.
type GroupSettings struct {
	Welcome         bool     `json:"welcome,omitempty"`
	WelcomeText     string   `json:"welcome_text,omitempty"`
	Farewell        bool     `json:"farewell,omitempty"`
	FarewellText    string   `json:"farewell_text,omitempty"`
	AntiLink        bool     `json:"antilink,omitempty"`
	AllowedNetworks []string `json:"allowed_networks,omitempty"`
	AllowedDomains  []string `json:"allowed_domains,omitempty"`
	Prefix          string   `json:"prefix,omitempty"`
	News            bool     `json:"news,omitempty"`
	NSFW            bool     `json:"nsfw,omitempty"`
	AutoSticker     bool     `json:"autosticker,omitempty"`
	Captcha         bool     `json:"captcha,omitempty"`
}

// GlobalSettings lives in the reserved row.
type GlobalSettings struct {
	Premium []string `json:"premium,omitempty"`
}

// ConfigStore handles the group_configs blobs.
type ConfigStore struct {
	store *Store
}

// NewConfigStore creates a new ConfigStore.
func NewConfigStore(s *Store) *ConfigStore {
	return &ConfigStore{store: s}
}

// Get returns the settings for a group; a missing row yields zero settings.
func (s *ConfigStore) Get(ctx context.Context, id types.JID) (*GroupSettings, error) {
	raw, err := s.getRaw(ctx, id.String())
	if err != nil {
		return nil, err
	}
	settings := &GroupSettings{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, settings); err != nil {
			return nil, fmt.Errorf("malformed config for %s: %w", id, err)
		}
	}
	return settings, nil
}

// GetGlobal returns the process-wide sets from the reserved row.
func (s *ConfigStore) GetGlobal(ctx context.Context) (*GlobalSettings, error) {
	raw, err := s.getRaw(ctx, GlobalConfigID)
	if err != nil {
		return nil, err
	}
	settings := &GlobalSettings{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, settings); err != nil {
			return nil, fmt.Errorf("malformed global config: %w", err)
		}
	}
	return settings, nil
}

func (s *ConfigStore) getRaw(ctx context.Context, id string) (json.RawMessage, error) {
	var raw []byte
	err := s.store.Get(ctx, "configs.get", &raw, `
		SELECT config FROM zelador_group_configs WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// Mutate applies fn to the decoded blob under a row lock, so two concurrent
// admin toggles never lose an update. fn receives the current key set and
// mutates it in place; nil values delete keys.
func (s *ConfigStore) Mutate(ctx context.Context, id string, fn func(cfg map[string]interface{})) error {
	return s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		var raw []byte
		err := tx.GetContext(ctx, &raw, `
			SELECT config FROM zelador_group_configs WHERE id = ? FOR UPDATE
		`, id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		cfg := map[string]interface{}{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("malformed config for %s: %w", id, err)
			}
		}

		fn(cfg)
		for k, v := range cfg {
			if v == nil {
				delete(cfg, k)
			}
		}

		blob, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO zelador_group_configs (id, config) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE config = VALUES(config)
		`, id, blob)
		return err
	})
}

// Merge writes the patch keys shallowly over the current blob.
func (s *ConfigStore) Merge(ctx context.Context, id types.JID, patch map[string]interface{}) error {
	return s.Mutate(ctx, id.String(), func(cfg map[string]interface{}) {
		for k, v := range patch {
			cfg[k] = v
		}
	})
}

// ListNewsEnabled returns the ids of all groups with the news flag on.
func (s *ConfigStore) ListNewsEnabled(ctx context.Context) ([]types.JID, error) {
	var ids []string
	err := s.store.Select(ctx, "configs.news", &ids, `
		SELECT id FROM zelador_group_configs
		WHERE id <> ? AND JSON_EXTRACT(config, '$.news') = TRUE
	`, GlobalConfigID)
	if err != nil {
		return nil, err
	}
	jids := make([]types.JID, 0, len(ids))
	for _, id := range ids {
		if j, err := types.ParseJID(id); err == nil {
			jids = append(jids, j)
		}
	}
	return jids, nil
}
