package ops

import (
	"github.com/hpungsan/spellbook/internal/capture"
	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/errors"
)

// StatusOutput describes a vault and its index.
type StatusOutput struct {
	Root          string   `json:"root"`
	Version       string   `json:"version,omitempty"`
	VaultDir      string   `json:"vault_dir,omitempty"`
	Created       string   `json:"created,omitempty"`
	LastUpdated   string   `json:"last_updated,omitempty"`
	SchemaVersion int      `json:"schema_version"`
	BufferPending int      `json:"buffer_pending"`
	Checkpoint    *string  `json:"last_captured_ts"`
	Index         db.Stats `json:"index"`
}

// Status reports vault metadata, pending buffer records and index counts.
func Status(v *Vault) (*StatusOutput, error) {
	version, err := db.GetUserVersion(v.DB)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	stats, err := db.GetStats(v.DB)
	if err != nil {
		return nil, err
	}
	pending, err := capture.CountRecords(v.Paths.BufferDir())
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &StatusOutput{
		Root:          v.Paths.Root,
		Version:       v.Config.Version,
		VaultDir:      v.Config.VaultDir,
		Created:       v.Config.Created,
		LastUpdated:   v.Config.LastUpdated,
		SchemaVersion: version,
		BufferPending: pending,
		Checkpoint:    capture.LoadCheckpoint(v.Paths.BufferDir()),
		Index:         *stats,
	}, nil
}
