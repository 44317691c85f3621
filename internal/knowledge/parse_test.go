package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/spellbook/internal/errors"
)

const mappingDoc = `---
ts: 2024-01-15T10:00:00Z
type: decision
entities:
  person: [Sam]
  project:
    - spellbook
tags: [architecture, storage]
---

# Use SQLite for the index

Body text.
`

const listDoc = `---
ts: 2024-01-15T10:00:00Z
entities:
  - name: Sam
    type: person
---
Body.
`

func TestParse_MappingEntities(t *testing.T) {
	doc, err := Parse([]byte(mappingDoc), "knowledge/log/2024-01-15-sqlite.md", ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, "knowledge/log/2024-01-15-sqlite.md", doc.ID)
	assert.Equal(t, "2024-01-15T10:00:00Z", doc.Timestamp)
	assert.Equal(t, DocDecision, doc.Type)
	assert.Equal(t, "Use SQLite for the index", doc.Title)
	assert.Equal(t, []string{"architecture", "storage"}, doc.Tags)
	assert.Equal(t, []Ref{
		{Name: "Sam", Type: EntityPerson},
		{Name: "spellbook", Type: EntityProject},
	}, doc.Entities)
	assert.Contains(t, doc.Body, "Body text.")
}

func TestParse_BothEncodingsAgree(t *testing.T) {
	fromMapping, err := Parse([]byte(mappingDoc), "doc.md", ParseOptions{})
	require.NoError(t, err)
	fromList, err := Parse([]byte(listDoc), "doc.md", ParseOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, fromList.Entities)
	assert.Equal(t, fromMapping.Entities[0], fromList.Entities[0])
	assert.Equal(t, fromMapping.Timestamp, fromList.Timestamp)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code errors.ErrorCode
	}{
		{"no frontmatter", "# Just a heading\n", errors.ErrNoFrontmatter},
		{"unclosed frontmatter", "---\nts: 2024-01-01\nno closing\n", errors.ErrNoFrontmatter},
		{"delimiter not on its own line", "---ts: x\n---\n", errors.ErrNoFrontmatter},
		{"bad yaml", "---\nts: [unclosed\n---\n", errors.ErrInvalidFrontmatter},
		{"empty block", "---\n---\nbody\n", errors.ErrInvalidFrontmatter},
		{"scalar block", "---\njust words\n---\n", errors.ErrInvalidFrontmatter},
		{"missing timestamp", "---\ntitle: x\n---\n", errors.ErrNoTimestamp},
		{"blank timestamp", "---\nts: \"  \"\n---\n", errors.ErrNoTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw), "knowledge/log/x.md", ParseOptions{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestParse_DateFallbackAndDefaults(t *testing.T) {
	doc, err := Parse([]byte("---\ndate: 2024-03-02\n---\nno heading here\n"), "d.md", ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, "2024-03-02T00:00:00Z", doc.Timestamp)
	assert.Equal(t, DefaultDocType, doc.Type)
	assert.Equal(t, UntitledTitle, doc.Title)
	assert.Empty(t, doc.Entities)
}

func TestParse_ExplicitTitleWins(t *testing.T) {
	doc, err := Parse([]byte("---\nts: 2024-01-01\ntitle: Chosen\n---\n# Heading\n"), "d.md", ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Chosen", doc.Title)
}

func TestParse_UnknownTypesDropOnlyThatEntity(t *testing.T) {
	raw := `---
ts: 2024-01-01
entities:
  person: [Sam]
  planet: [Mars]
---
`
	doc, err := Parse([]byte(raw), "d.md", ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Ref{{Name: "Sam", Type: EntityPerson}}, doc.Entities)

	doc, err = Parse([]byte(raw), "d.md", ParseOptions{EntityTypes: NewTypeSet([]string{"Planet"})})
	require.NoError(t, err)
	assert.Len(t, doc.Entities, 2)
}

func TestParse_EntityCleanup(t *testing.T) {
	raw := `---
ts: 2024-01-01
entities:
  - {name: "  Sam  ", type: Person}
  - {name: sam, type: person}
  - {name: "", type: person}
  - {name: Ghost}
  - just-a-string
  - {name: 42, type: concept}
---
`
	doc, err := Parse([]byte(raw), "d.md", ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Ref{
		{Name: "Sam", Type: EntityPerson},
		{Name: "42", Type: EntityConcept},
	}, doc.Entities)
}

func TestParse_ScalarCoercion(t *testing.T) {
	raw := `---
ts: 2024-01-15 09:30:00
type: Insight
tags: "alpha, beta ,"
related:
  - knowledge/docs/a.md
  - 7
source_session: 12345
source_files: main.go
---
`
	doc, err := Parse([]byte(raw), "d.md", ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T09:30:00Z", doc.Timestamp)
	assert.Equal(t, DocInsight, doc.Type)
	assert.Equal(t, []string{"alpha", "beta"}, doc.Tags)
	assert.Equal(t, []string{"knowledge/docs/a.md", "7"}, doc.Related)
	assert.Equal(t, "12345", doc.SourceSession)
	assert.Equal(t, []string{"main.go"}, doc.SourceFiles)
}

func TestParse_RelatedDocs(t *testing.T) {
	raw := `---
ts: 2024-01-15
related_docs:
  - id: knowledge/docs/a.md
    relationship: supersedes
  - id: knowledge/docs/b.md
  - knowledge/docs/c.md
  - relationship: orphan
related: [knowledge/docs/b.md, knowledge/docs/d.md]
---
`
	doc, err := Parse([]byte(raw), "d.md", ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"knowledge/docs/a.md",
		"knowledge/docs/b.md",
		"knowledge/docs/c.md",
		"knowledge/docs/d.md",
	}, doc.Related)
}

func TestParse_NoRelatedDocs(t *testing.T) {
	doc, err := Parse([]byte(mappingDoc), "d.md", ParseOptions{})
	require.NoError(t, err)
	assert.Empty(t, doc.Related)
}

func TestParse_CRLFAndBOM(t *testing.T) {
	raw := "\ufeff---\r\nts: 2024-01-01\r\n---\r\n## Windows note\r\n"
	doc, err := Parse([]byte(raw), "d.md", ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Windows note", doc.Title)
}

func TestParse_DashesInsideBlock(t *testing.T) {
	raw := "---\nts: 2024-01-01\nsummary: a --- b\n---\nbody\n"
	doc, err := Parse([]byte(raw), "d.md", ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a --- b", doc.Summary)
	assert.Equal(t, "body\n", doc.Body)
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-15T10:00:00Z", "2024-01-15T10:00:00Z"},
		{"2024-01-15T12:00:00+02:00", "2024-01-15T10:00:00Z"},
		{"2024-01-15T10:00:00.123Z", "2024-01-15T10:00:00Z"},
		{"2024-01-15T10:00:00", "2024-01-15T10:00:00Z"},
		{"2024-01-15", "2024-01-15T00:00:00Z"},
		{"last tuesday", "last tuesday"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTimestamp(tt.in))
		})
	}
}

func TestFirstHeading(t *testing.T) {
	assert.Equal(t, "Hello world", FirstHeading("intro\n\n# Hello *world*\n\n## Second\n"))
	assert.Equal(t, "Setext", FirstHeading("Setext\n======\n"))
	assert.Equal(t, "", FirstHeading("no headings at all"))
}

func TestTypeSet(t *testing.T) {
	set := NewTypeSet([]string{" Event "})
	assert.True(t, set.Has("PERSON"))
	assert.True(t, set.Has("event"))
	assert.False(t, set.Has("planet"))
	assert.Equal(t, []string{"concept", "event", "org", "person", "project", "repo", "tool"}, set.Sorted())
}

func TestReadFrontMatter(t *testing.T) {
	raw := []byte("---\nname: 📜 Archivist\nload_references:\n  - knowledge/docs/style.md\n  - knowledge/docs/index.md\n---\nYou archive things.\n")

	fields, body, ok := ReadFrontMatter(raw)
	require.True(t, ok)
	assert.Equal(t, "📜 Archivist", String(fields, "name"))
	assert.Equal(t, []string{"knowledge/docs/style.md", "knowledge/docs/index.md"}, Strings(fields, "load_references"))
	assert.Equal(t, "You archive things.\n", body)

	_, _, ok = ReadFrontMatter([]byte("no frontmatter"))
	assert.False(t, ok)

	_, _, ok = ReadFrontMatter([]byte("---\n- a\n- b\n---\n"))
	assert.False(t, ok)
}
