package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/errors"
	"github.com/hpungsan/spellbook/internal/recall"
)

// Recall limits
const (
	DefaultRecallEntities = 5
	MaxRecallEntities     = 20
	DefaultRecallDocs     = 3
)

// RecallInput contains parameters for the Recall operation.
type RecallInput struct {
	Text        string // required
	MaxEntities int    // default: 5, max: 20
	DocsPer     int    // default: 3, max: 100
}

// RecalledEntity is an entity mentioned in the text with its latest documents.
type RecalledEntity struct {
	Entity    db.Entity        `json:"entity"`
	Documents []db.DocumentRow `json:"documents"`
}

// RecallOutput contains the result of the Recall operation.
type RecallOutput struct {
	Items []RecalledEntity `json:"items"`
}

// Recall finds the indexed entities that text mentions under any alias, in
// order of first mention.
func Recall(database *sql.DB, input RecallInput) (*RecallOutput, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}
	maxEntities := clampLimit(input.MaxEntities, DefaultRecallEntities, MaxRecallEntities)
	docsPer := clampLimit(input.DocsPer, DefaultRecallDocs, MaxDocLimit)

	aliases, err := db.ListAliases(database, "")
	if err != nil {
		return nil, err
	}
	terms := make([]recall.Term, 0, len(aliases))
	for _, a := range aliases {
		terms = append(terms, recall.Term{Surface: a.Alias, Canonical: a.Canonical})
	}
	matcher, err := recall.NewMatcher(terms)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	out := &RecallOutput{Items: []RecalledEntity{}}
	for _, name := range matcher.Find(input.Text) {
		if len(out.Items) == maxEntities {
			break
		}
		entity, err := db.GetEntity(database, name)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				// Registered alias whose entity no document mentions yet.
				continue
			}
			return nil, err
		}
		docs, err := db.EntityDocs(database, entity.Name, docsPer)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, RecalledEntity{Entity: *entity, Documents: docs})
	}
	return out, nil
}

// FormatRecall renders recalled entities as a compact markdown list for
// injection into a prompt. Empty input renders as "".
func FormatRecall(items []RecalledEntity) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Known entities mentioned:\n")
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item.Entity.Name)
		sb.WriteString(" (")
		sb.WriteString(item.Entity.Type)
		sb.WriteString(")")
		for i, d := range item.Documents {
			if i == 0 {
				sb.WriteString(": ")
			} else {
				sb.WriteString("; ")
			}
			sb.WriteString(d.DocID)
			if d.Title != "" {
				sb.WriteString(" \"")
				sb.WriteString(d.Title)
				sb.WriteString("\"")
			}
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
