package db

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/hpungsan/spellbook/internal/errors"
	"github.com/hpungsan/spellbook/internal/knowledge"
)

// Entity is an indexed entity with its reference count.
type Entity struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Created       string `json:"created"`
	LastMentioned string `json:"last_mentioned"`
	RefCount      int    `json:"ref_count"`
}

// Alias maps an alternate spelling to a canonical entity name.
type Alias struct {
	Alias      string `json:"alias"`
	Canonical  string `json:"canonical"`
	EntityType string `json:"entity_type,omitempty"`
}

// DocumentRow is the indexed summary of a knowledge document.
type DocumentRow struct {
	DocID   string   `json:"doc_id"`
	Ts      string   `json:"ts"`
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Summary string   `json:"summary,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Related []string `json:"related,omitempty"`
}

// EntityFilter narrows ListEntities.
type EntityFilter struct {
	Type   string
	Limit  int
	Offset int
}

// Resolve returns the canonical name for name, matching aliases
// case-insensitively. Unknown names are their own canonical form.
func Resolve(q DBTX, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}

	var canonical string
	err := q.QueryRow(`SELECT canonical FROM entity_aliases WHERE alias = ?`, name).Scan(&canonical)
	if err == sql.ErrNoRows {
		return name, nil
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return canonical, nil
}

// AddAlias maps alias to canonical. The canonical is resolved first so
// alias chains never form, and it gains a self-alias if it lacks one.
// Returns false without error when alias already maps to a different entity.
func AddAlias(q DBTX, alias, canonical, entityType string) (bool, error) {
	alias = strings.TrimSpace(alias)
	canonical = strings.TrimSpace(canonical)
	if alias == "" || canonical == "" {
		return false, errors.NewInvalidRequest("alias and canonical are required")
	}

	target, err := Resolve(q, canonical)
	if err != nil {
		return false, err
	}

	existing, err := Resolve(q, alias)
	if err != nil {
		return false, err
	}
	if existing != alias && !strings.EqualFold(existing, alias) {
		// alias is already registered.
		return existing == target, nil
	}

	var exists int
	err = q.QueryRow(`SELECT 1 FROM entity_aliases WHERE alias = ?`, alias).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return false, errors.NewInternal(err)
	}
	if err == nil && existing != target {
		// alias is a self-aliased canonical of another entity.
		return false, nil
	}

	if err := ensureSelfAlias(q, target, entityType); err != nil {
		return false, err
	}
	if strings.EqualFold(alias, target) {
		return true, nil
	}

	_, err = q.Exec(`INSERT INTO entity_aliases (alias, canonical, entity_type) VALUES (?, ?, ?)`,
		alias, target, nullIfEmpty(entityType))
	if err != nil {
		if isUniqueConstraintError(err) {
			return false, nil
		}
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// ensureSelfAlias registers name as its own alias and fills a missing type.
func ensureSelfAlias(q DBTX, name, entityType string) error {
	_, err := q.Exec(`INSERT OR IGNORE INTO entity_aliases (alias, canonical, entity_type) VALUES (?, ?, ?)`,
		name, name, nullIfEmpty(entityType))
	if err != nil {
		return errors.NewInternal(err)
	}
	if entityType == "" {
		return nil
	}
	_, err = q.Exec(`
		UPDATE entity_aliases SET entity_type = ?
		WHERE canonical = ? AND (entity_type IS NULL OR entity_type = '')
	`, entityType, name)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// IndexDocument upserts every entity the document mentions, its references
// and its document row. The result does not depend on indexing order:
// entities keep the earliest created and latest last_mentioned timestamp,
// the type of the earliest mention (ties go to the lexically smaller type),
// and the lexically smallest spelling among case variants of the name.
func IndexDocument(q DBTX, doc *knowledge.Document) error {
	for _, ref := range doc.Entities {
		name, err := Resolve(q, ref.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		if spelling := strings.TrimSpace(ref.Name); spelling < name && strings.EqualFold(spelling, name) {
			if err := renameEntity(q, name, spelling); err != nil {
				return err
			}
			name = spelling
		}

		_, err = q.Exec(`
			INSERT INTO entities (name, type, created, last_mentioned)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				type = CASE
					WHEN excluded.created < entities.created
						OR (excluded.created = entities.created AND excluded.type < entities.type)
					THEN excluded.type
					ELSE entities.type
				END,
				created = MIN(entities.created, excluded.created),
				last_mentioned = MAX(entities.last_mentioned, excluded.last_mentioned)
		`, name, ref.Type, doc.Timestamp, doc.Timestamp)
		if err != nil {
			return errors.NewInternal(err)
		}

		if err := ensureSelfAlias(q, name, ""); err != nil {
			return err
		}
		_, err = q.Exec(`
			UPDATE entity_aliases SET entity_type = (SELECT type FROM entities WHERE name = ?)
			WHERE alias = ? AND canonical = ?
		`, name, name, name)
		if err != nil {
			return errors.NewInternal(err)
		}

		_, err = q.Exec(`INSERT OR IGNORE INTO refs (entity, doc_id, ts) VALUES (?, ?, ?)`,
			name, doc.ID, doc.Timestamp)
		if err != nil {
			return errors.NewInternal(err)
		}
	}

	tagsJSON, err := toNullJSON(doc.Tags)
	if err != nil {
		return errors.NewInternal(err)
	}
	relatedJSON, err := toNullJSON(doc.Related)
	if err != nil {
		return errors.NewInternal(err)
	}
	_, err = q.Exec(`
		INSERT OR REPLACE INTO documents (doc_id, ts, type, title, summary, tags_json, related_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Timestamp, doc.Type, doc.Title, nullIfEmpty(doc.Summary), tagsJSON, relatedJSON)
	if err != nil {
		return errors.NewInternal(err)
	}

	return nil
}

// renameEntity moves an entity, its references and its aliases to a new
// spelling of the same name.
func renameEntity(q DBTX, from, to string) error {
	stmts := []string{
		`UPDATE entities SET name = ? WHERE name = ?`,
		`UPDATE refs SET entity = ? WHERE entity = ?`,
		`UPDATE entity_aliases SET canonical = ? WHERE canonical = ?`,
		`UPDATE entity_aliases SET alias = ? WHERE alias = ?`,
	}
	for _, stmt := range stmts {
		if _, err := q.Exec(stmt, to, from); err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}

// ListAliases returns aliases ordered by canonical then alias.
// An empty canonical lists every alias.
func ListAliases(q DBTX, canonical string) ([]Alias, error) {
	query := `SELECT alias, canonical, entity_type FROM entity_aliases`
	var args []any
	if canonical != "" {
		query += ` WHERE canonical = ?`
		args = append(args, canonical)
	}
	query += ` ORDER BY canonical, alias COLLATE NOCASE`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	aliases := []Alias{}
	for rows.Next() {
		var (
			a          Alias
			entityType sql.NullString
		)
		if err := rows.Scan(&a.Alias, &a.Canonical, &entityType); err != nil {
			return nil, errors.NewInternal(err)
		}
		a.EntityType = entityType.String
		aliases = append(aliases, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return aliases, nil
}

const entityColumns = `
	e.name, e.type, e.created, e.last_mentioned,
	(SELECT COUNT(*) FROM refs r WHERE r.entity = e.name)
`

// GetEntity retrieves an entity by any of its names.
func GetEntity(q DBTX, name string) (*Entity, error) {
	canonical, err := Resolve(q, name)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(`SELECT `+entityColumns+` FROM entities e WHERE e.name = ?`, canonical)
	var e Entity
	err = row.Scan(&e.Name, &e.Type, &e.Created, &e.LastMentioned, &e.RefCount)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(name)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &e, nil
}

// ListEntities returns entities, most recently mentioned first.
func ListEntities(q DBTX, f EntityFilter) ([]Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities e`
	var args []any
	if f.Type != "" {
		query += ` WHERE e.type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY e.last_mentioned DESC, e.name`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, max(f.Offset, 0))
	}
	return queryEntities(q, query, args...)
}

// CountEntities counts entities, optionally of one type.
func CountEntities(q DBTX, entityType string) (int, error) {
	query := `SELECT COUNT(*) FROM entities`
	var args []any
	if entityType != "" {
		query += ` WHERE type = ?`
		args = append(args, entityType)
	}
	var n int
	if err := q.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// DocumentEntities returns the entities referenced by a document.
func DocumentEntities(q DBTX, docID string) ([]Entity, error) {
	query := `SELECT ` + entityColumns + `
		FROM entities e JOIN refs rf ON rf.entity = e.name
		WHERE rf.doc_id = ?
		ORDER BY e.type, e.name`
	return queryEntities(q, query, docID)
}

func queryEntities(q DBTX, query string, args ...any) ([]Entity, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	entities := []Entity{}
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.Name, &e.Type, &e.Created, &e.LastMentioned, &e.RefCount); err != nil {
			return nil, errors.NewInternal(err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return entities, nil
}

const documentColumns = `d.doc_id, d.ts, d.type, d.title, d.summary, d.tags_json, d.related_json`

// EntityDocs returns the documents that mention an entity (by any of its
// names), newest first.
func EntityDocs(q DBTX, name string, limit int) ([]DocumentRow, error) {
	canonical, err := Resolve(q, name)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + documentColumns + `
		FROM refs rf JOIN documents d ON d.doc_id = rf.doc_id
		WHERE rf.entity = ?
		ORDER BY rf.ts DESC, d.doc_id`
	args := []any{canonical}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return queryDocuments(q, query, args...)
}

// ListDocuments returns indexed documents, newest first.
func ListDocuments(q DBTX, limit int) ([]DocumentRow, error) {
	query := `SELECT ` + documentColumns + ` FROM documents d ORDER BY d.ts DESC, d.doc_id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return queryDocuments(q, query, args...)
}

// GetDocument retrieves an indexed document by id.
func GetDocument(q DBTX, docID string) (*DocumentRow, error) {
	docs, err := queryDocuments(q, `SELECT `+documentColumns+` FROM documents d WHERE d.doc_id = ?`, docID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.NewNotFound(docID)
	}
	return &docs[0], nil
}

func queryDocuments(q DBTX, query string, args ...any) ([]DocumentRow, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	docs := []DocumentRow{}
	for rows.Next() {
		var (
			d           DocumentRow
			summary     sql.NullString
			tagsJSON    sql.NullString
			relatedJSON sql.NullString
		)
		if err := rows.Scan(&d.DocID, &d.Ts, &d.Type, &d.Title, &summary, &tagsJSON, &relatedJSON); err != nil {
			return nil, errors.NewInternal(err)
		}
		d.Summary = summary.String
		if err := fromNullJSON(tagsJSON, &d.Tags); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := fromNullJSON(relatedJSON, &d.Related); err != nil {
			return nil, errors.NewInternal(err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return docs, nil
}

// Stats counts rows in every table.
type Stats struct {
	Entities      int `json:"entities"`
	Aliases       int `json:"aliases"`
	Refs          int `json:"refs"`
	Documents     int `json:"documents"`
	Sessions      int `json:"sessions"`
	SubagentCalls int `json:"subagent_calls"`
}

// GetStats returns row counts for the index.
func GetStats(q DBTX) (*Stats, error) {
	var s Stats
	err := q.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM entities),
			(SELECT COUNT(*) FROM entity_aliases),
			(SELECT COUNT(*) FROM refs),
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM subagent_calls)
	`).Scan(&s.Entities, &s.Aliases, &s.Refs, &s.Documents, &s.Sessions, &s.SubagentCalls)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &s, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullIfEmpty converts an empty string to SQL NULL.
func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// toNullJSON marshals a non-empty slice, NULL otherwise.
func toNullJSON(v []string) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func fromNullJSON(ns sql.NullString, dst *[]string) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}
