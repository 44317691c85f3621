package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/errors"
)

// ListEntitiesInput contains parameters for the ListEntities operation.
type ListEntitiesInput struct {
	Type   string // optional filter
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// ListEntitiesOutput contains the result of the ListEntities operation.
type ListEntitiesOutput struct {
	Items      []db.Entity `json:"items"`
	Pagination Pagination  `json:"pagination"`
	Sort       string      `json:"sort"`
}

// ListEntities lists entities, most recently mentioned first.
func ListEntities(database *sql.DB, input ListEntitiesInput) (*ListEntitiesOutput, error) {
	entityType := strings.ToLower(strings.TrimSpace(input.Type))
	limit := clampLimit(input.Limit, DefaultListLimit, MaxListLimit)
	offset := max(input.Offset, 0)

	items, err := db.ListEntities(database, db.EntityFilter{Type: entityType, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	total, err := db.CountEntities(database, entityType)
	if err != nil {
		return nil, err
	}

	return &ListEntitiesOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "last_mentioned_desc",
	}, nil
}

// GetEntityInput contains parameters for the GetEntity operation.
type GetEntityInput struct {
	Name     string // required; any alias works
	DocLimit int    // default: 10, max: 100
}

// GetEntityOutput contains the result of the GetEntity operation.
type GetEntityOutput struct {
	Entity    db.Entity        `json:"entity"`
	Aliases   []string         `json:"aliases"`
	Documents []db.DocumentRow `json:"documents"`
}

// GetEntity returns an entity with its aliases and most recent documents.
func GetEntity(database *sql.DB, input GetEntityInput) (*GetEntityOutput, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.NewInvalidRequest("name is required")
	}

	entity, err := db.GetEntity(database, input.Name)
	if err != nil {
		return nil, err
	}
	aliases, err := db.ListAliases(database, entity.Name)
	if err != nil {
		return nil, err
	}
	docs, err := db.EntityDocs(database, entity.Name, clampLimit(input.DocLimit, DefaultDocLimit, MaxDocLimit))
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, a := range aliases {
		if a.Alias != entity.Name {
			names = append(names, a.Alias)
		}
	}
	return &GetEntityOutput{Entity: *entity, Aliases: names, Documents: docs}, nil
}

// EntityDocsInput contains parameters for the EntityDocs operation.
type EntityDocsInput struct {
	Name  string // required; any alias works
	Limit int    // default: 10, max: 100
}

// EntityDocsOutput contains the result of the EntityDocs operation.
type EntityDocsOutput struct {
	Canonical string           `json:"canonical"`
	Items     []db.DocumentRow `json:"items"`
}

// EntityDocs lists the documents that mention an entity, newest first.
// Unknown names yield an empty list.
func EntityDocs(database *sql.DB, input EntityDocsInput) (*EntityDocsOutput, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.NewInvalidRequest("name is required")
	}
	canonical, err := db.Resolve(database, input.Name)
	if err != nil {
		return nil, err
	}
	items, err := db.EntityDocs(database, canonical, clampLimit(input.Limit, DefaultDocLimit, MaxDocLimit))
	if err != nil {
		return nil, err
	}
	return &EntityDocsOutput{Canonical: canonical, Items: items}, nil
}
