package ops

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/spellbook/internal/config"
	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	DefaultDocLimit  = 10
	MaxDocLimit      = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Reporter receives per-document progress from batch operations.
type Reporter interface {
	DocumentIndexed(docID string, entities int)
	DocumentFailed(docID string, err error)
}

// NopReporter discards progress.
type NopReporter struct{}

func (NopReporter) DocumentIndexed(string, int)  {}
func (NopReporter) DocumentFailed(string, error) {}

// Vault is an opened vault: its paths, its configuration and its index.
type Vault struct {
	Paths  config.Vault
	Config *config.Config
	DB     *sql.DB
}

// LoadVault finds the vault containing dir and loads its configuration.
// The index is not opened.
func LoadVault(dir string) (*Vault, error) {
	if dir == "" {
		dir = "."
	}
	root := config.FindVaultRoot(dir)
	if root == "" {
		return nil, errors.NewNotAVault(dir)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid vault config: %v", err))
	}
	return &Vault{Paths: config.Vault{Root: root}, Config: cfg}, nil
}

// OpenIndex opens (creating and migrating if needed) the vault's index.
func (v *Vault) OpenIndex() error {
	if v.DB != nil {
		return nil
	}
	database, err := db.Init(v.Paths.KnowledgeDir())
	if err != nil {
		return errors.NewInternal(err)
	}
	db.ConfigurePool(database, v.Config)
	v.DB = database
	return nil
}

// OpenCurrentIndex opens an existing index for reading without migrating
// it. An index at another schema version is left untouched and reported
// with db.ErrSchemaMismatch.
func (v *Vault) OpenCurrentIndex() error {
	if v.DB != nil {
		return nil
	}
	database, err := db.OpenCurrent(v.Paths.KnowledgeDir())
	if err != nil {
		return err
	}
	db.ConfigurePool(database, v.Config)
	v.DB = database
	return nil
}

// HasIndex reports whether the index file already exists.
func (v *Vault) HasIndex() bool {
	_, err := os.Stat(filepath.Join(v.Paths.KnowledgeDir(), db.FileName))
	return err == nil
}

// OpenVault loads the vault containing dir and opens its index.
func OpenVault(dir string) (*Vault, error) {
	v, err := LoadVault(dir)
	if err != nil {
		return nil, err
	}
	if err := v.OpenIndex(); err != nil {
		return nil, err
	}
	return v, nil
}

// Close releases the index.
func (v *Vault) Close() error {
	if v == nil || v.DB == nil {
		return nil
	}
	return v.DB.Close()
}

// clampLimit applies a default and an upper bound to a requested limit.
func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
