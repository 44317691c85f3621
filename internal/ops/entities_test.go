package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/errors"
)

func rebuiltVault(t *testing.T) *Vault {
	t.Helper()
	v := newTestVault(t, "")
	seedDocs(t, v)
	_, err := Rebuild(context.Background(), v, nil)
	require.NoError(t, err)
	return v
}

func TestListEntities(t *testing.T) {
	v := rebuiltVault(t)

	out, err := ListEntities(v.DB, ListEntitiesInput{})
	require.NoError(t, err)
	assert.Equal(t, "last_mentioned_desc", out.Sort)
	assert.Equal(t, Pagination{Limit: DefaultListLimit, Total: 3}, out.Pagination)
	require.Len(t, out.Items, 3)
	// Sam and sqlite were last mentioned in February.
	assert.Equal(t, []string{"Sam", "sqlite", "spellbook"},
		[]string{out.Items[0].Name, out.Items[1].Name, out.Items[2].Name})
}

func TestListEntities_TypeAndPaging(t *testing.T) {
	v := rebuiltVault(t)

	out, err := ListEntities(v.DB, ListEntitiesInput{Type: " Tool ", Limit: 5})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "sqlite", out.Items[0].Name)

	page, err := ListEntities(v.DB, ListEntitiesInput{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "sqlite", page.Items[0].Name)
	assert.True(t, page.Pagination.HasMore)
	assert.Equal(t, 3, page.Pagination.Total)
}

func TestGetEntity(t *testing.T) {
	v := rebuiltVault(t)
	_, err := AddAlias(context.Background(), v, AddAliasInput{Alias: "Samuel", Canonical: "sam"})
	require.NoError(t, err)

	out, err := GetEntity(v.DB, GetEntityInput{Name: "SAMUEL"})
	require.NoError(t, err)
	assert.Equal(t, "Sam", out.Entity.Name)
	assert.Equal(t, "person", out.Entity.Type)
	assert.Equal(t, []string{"Samuel"}, out.Aliases)
	require.Len(t, out.Documents, 2)
	assert.Equal(t, "knowledge/docs/b.md", out.Documents[0].DocID)

	limited, err := GetEntity(v.DB, GetEntityInput{Name: "sam", DocLimit: 1})
	require.NoError(t, err)
	assert.Len(t, limited.Documents, 1)
}

func TestGetEntity_Errors(t *testing.T) {
	v := rebuiltVault(t)

	_, err := GetEntity(v.DB, GetEntityInput{Name: "  "})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = GetEntity(v.DB, GetEntityInput{Name: "nobody"})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestEntityDocs(t *testing.T) {
	v := rebuiltVault(t)

	out, err := EntityDocs(v.DB, EntityDocsInput{Name: "SPELLBOOK"})
	require.NoError(t, err)
	assert.Equal(t, "spellbook", out.Canonical)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "Storage choice", out.Items[0].Title)
	assert.Equal(t, "decision", out.Items[0].Type)

	unknown, err := EntityDocs(v.DB, EntityDocsInput{Name: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, unknown.Items)
}

func TestDocuments(t *testing.T) {
	v := rebuiltVault(t)

	list, err := ListDocuments(v.DB, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultListLimit, list.Limit)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "knowledge/docs/b.md", list.Items[0].DocID)

	doc, err := GetDocument(v, "knowledge/log/2024/a.md")
	require.NoError(t, err)
	assert.Equal(t, "Storage choice", doc.Document.Title)
	assert.Len(t, doc.Entities, 2)
	assert.Contains(t, doc.Body, "We picked SQLite.")
	assert.NotContains(t, doc.Body, "entities:")
}

func TestGetDocument_Errors(t *testing.T) {
	v := rebuiltVault(t)

	// On disk but not indexed.
	_, err := GetDocument(v, "knowledge/log/bad.md")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = GetDocument(v, "knowledge/log/../../etc/passwd")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestRecall(t *testing.T) {
	v := rebuiltVault(t)
	_, err := AddAlias(context.Background(), v, AddAliasInput{Alias: "SB", Canonical: "spellbook"})
	require.NoError(t, err)
	_, err = AddAlias(context.Background(), v, AddAliasInput{Alias: "ghost", Canonical: "Phantom"})
	require.NoError(t, err)

	out, err := Recall(v.DB, RecallInput{Text: "Did sam move SB off SQLite? ask ghost"})
	require.NoError(t, err)
	require.Len(t, out.Items, 3)
	assert.Equal(t, "Sam", out.Items[0].Entity.Name)
	assert.Equal(t, "spellbook", out.Items[1].Entity.Name)
	assert.Equal(t, "sqlite", out.Items[2].Entity.Name)

	limited, err := Recall(v.DB, RecallInput{Text: "sam and sqlite", MaxEntities: 1, DocsPer: 1})
	require.NoError(t, err)
	require.Len(t, limited.Items, 1)
	assert.Len(t, limited.Items[0].Documents, 1)

	none, err := Recall(v.DB, RecallInput{Text: "samsung"})
	require.NoError(t, err)
	assert.Empty(t, none.Items)

	_, err = Recall(v.DB, RecallInput{Text: " "})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestFormatRecall(t *testing.T) {
	assert.Equal(t, "", FormatRecall(nil))

	got := FormatRecall([]RecalledEntity{
		{
			Entity: db.Entity{Name: "Sam", Type: "person"},
			Documents: []db.DocumentRow{
				{DocID: "knowledge/docs/b.md", Title: "Follow-up"},
				{DocID: "knowledge/log/a.md"},
			},
		},
		{Entity: db.Entity{Name: "sqlite", Type: "tool"}},
	})
	assert.Equal(t, "Known entities mentioned:\n"+
		"- Sam (person): knowledge/docs/b.md \"Follow-up\"; knowledge/log/a.md\n"+
		"- sqlite (tool)", got)
}
