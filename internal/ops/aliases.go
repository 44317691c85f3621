package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/spellbook/internal/capture"
	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/errors"
)

// AliasEntry is one registered alias in knowledge/aliases.yaml.
type AliasEntry struct {
	Alias     string `yaml:"alias" json:"alias"`
	Canonical string `yaml:"canonical" json:"canonical"`
	Type      string `yaml:"type,omitempty" json:"type,omitempty"`
}

type aliasRegistry struct {
	Aliases []AliasEntry `yaml:"aliases"`
}

// loadAliasRegistry reads the registry. A missing file is an empty registry.
func loadAliasRegistry(path string) ([]AliasEntry, error) {
	data, err := capture.ReadFileNoFollow(path)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to read alias registry: %w", err))
	}
	var reg aliasRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid alias registry %s: %v", path, err))
	}
	return reg.Aliases, nil
}

func saveAliasRegistry(path string, entries []AliasEntry) error {
	data, err := yaml.Marshal(aliasRegistry{Aliases: entries})
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := capture.WriteFileAtomic(path, data, 0644); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to write alias registry: %w", err))
	}
	return nil
}

// AddAliasInput contains parameters for the AddAlias operation.
type AddAliasInput struct {
	Alias     string // required
	Canonical string // required; resolved before use
	Type      string // optional entity type
}

// AddAliasOutput contains the result of the AddAlias operation.
type AddAliasOutput struct {
	Added     bool   `json:"added"`
	Alias     string `json:"alias"`
	Canonical string `json:"canonical"`
	// Existing is the entity the alias already maps to when Added is false.
	Existing string `json:"existing,omitempty"`
}

// AddAlias registers an alias in the index and in the alias registry so it
// survives rebuilds. A conflict is reported as Added=false, not as an error.
func AddAlias(ctx context.Context, v *Vault, input AddAliasInput) (_ *AddAliasOutput, err error) {
	alias := strings.TrimSpace(input.Alias)
	canonical := strings.TrimSpace(input.Canonical)
	if alias == "" {
		return nil, errors.NewInvalidRequest("alias is required")
	}
	if canonical == "" {
		return nil, errors.NewInvalidRequest("canonical is required")
	}
	entityType := strings.ToLower(strings.TrimSpace(input.Type))

	if ctx.Err() != nil {
		return nil, errors.NewCancelled("alias add")
	}
	tx, err := v.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ok, err := db.AddAlias(tx, alias, canonical, entityType)
	if err != nil {
		return nil, err
	}
	target, err := db.Resolve(tx, canonical)
	if err != nil {
		return nil, err
	}
	out := &AddAliasOutput{Added: ok, Alias: alias, Canonical: target}

	if !ok {
		existing, rerr := db.Resolve(tx, alias)
		if rerr != nil {
			err = rerr
			return nil, err
		}
		out.Existing = existing
		// Nothing was written.
		_ = tx.Rollback()
		return out, nil
	}

	if !strings.EqualFold(alias, target) {
		if err = registerAlias(v.Paths.AliasFile(), AliasEntry{Alias: alias, Canonical: target, Type: entityType}); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// registerAlias adds or refreshes an entry in the registry file.
func registerAlias(path string, entry AliasEntry) error {
	entries, err := loadAliasRegistry(path)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if strings.EqualFold(e.Alias, entry.Alias) {
			if e == entry {
				return nil
			}
			entries[i] = entry
			return saveAliasRegistry(path, entries)
		}
	}
	return saveAliasRegistry(path, append(entries, entry))
}

// ResolveOutput contains the result of the Resolve operation.
type ResolveOutput struct {
	Name      string `json:"name"`
	Canonical string `json:"canonical"`
	// Known is false when the name matched no alias and resolved to itself.
	Known bool `json:"known"`
}

// Resolve returns the canonical name for any spelling of an entity.
func Resolve(database *sql.DB, name string) (*ResolveOutput, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewInvalidRequest("name is required")
	}
	canonical, err := db.Resolve(database, name)
	if err != nil {
		return nil, err
	}
	aliases, err := db.ListAliases(database, canonical)
	if err != nil {
		return nil, err
	}
	return &ResolveOutput{Name: name, Canonical: canonical, Known: len(aliases) > 0}, nil
}

// ListAliasesOutput contains the result of the ListAliases operation.
type ListAliasesOutput struct {
	Items []db.Alias `json:"items"`
}

// ListAliases lists every alias, or the aliases of one entity given by any of its names.
func ListAliases(database *sql.DB, name string) (*ListAliasesOutput, error) {
	canonical := ""
	if strings.TrimSpace(name) != "" {
		var err error
		if canonical, err = db.Resolve(database, name); err != nil {
			return nil, err
		}
	}
	items, err := db.ListAliases(database, canonical)
	if err != nil {
		return nil, err
	}
	return &ListAliasesOutput{Items: items}, nil
}
