package ops

import (
	"database/sql"

	"github.com/hpungsan/spellbook/internal/capture"
	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/knowledge"
)

// ListDocumentsOutput contains the result of the ListDocuments operation.
type ListDocumentsOutput struct {
	Items []db.DocumentRow `json:"items"`
	Limit int              `json:"limit"`
}

// ListDocuments lists indexed documents, newest first.
func ListDocuments(database *sql.DB, limit int) (*ListDocumentsOutput, error) {
	limit = clampLimit(limit, DefaultListLimit, MaxListLimit)
	items, err := db.ListDocuments(database, limit)
	if err != nil {
		return nil, err
	}
	return &ListDocumentsOutput{Items: items, Limit: limit}, nil
}

// GetDocumentOutput contains the result of the GetDocument operation.
type GetDocumentOutput struct {
	Document db.DocumentRow `json:"document"`
	Entities []db.Entity    `json:"entities"`
	// Body is the markdown after the frontmatter, read from disk.
	Body string `json:"body"`
}

// GetDocument returns an indexed document with its entities and its current body.
func GetDocument(v *Vault, docID string) (*GetDocumentOutput, error) {
	path, err := ValidateDocID(v, docID)
	if err != nil {
		return nil, err
	}
	row, err := db.GetDocument(v.DB, docID)
	if err != nil {
		return nil, err
	}
	entities, err := db.DocumentEntities(v.DB, docID)
	if err != nil {
		return nil, err
	}

	raw, err := capture.ReadFileNoFollow(path)
	if err != nil {
		return nil, err
	}
	opts := knowledge.ParseOptions{EntityTypes: knowledge.NewTypeSet(v.Config.ExtraEntityTypes)}
	body := string(raw)
	if doc, perr := knowledge.Parse(raw, docID, opts); perr == nil {
		body = doc.Body
	}

	return &GetDocumentOutput{Document: *row, Entities: entities, Body: body}, nil
}
