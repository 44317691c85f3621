package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/errors"
	"github.com/hpungsan/spellbook/internal/usage"
)

const docMapping = `---
ts: 2024-01-15T10:00:00Z
type: decision
title: Storage choice
entities:
  person: [Sam]
  project: [spellbook]
---
# Storage

We picked SQLite.
`

const docList = `---
date: 2024-02-01
entities:
  - name: Sam
    type: person
  - name: sqlite
    type: tool
---
# Follow-up
`

const docNoFrontmatter = "# Just a heading\n"

const docNoTimestamp = `---
title: Floating
---
body
`

func seedDocs(t *testing.T, v *Vault) {
	t.Helper()
	writeFile(t, v, "knowledge/log/2024/a.md", docMapping)
	writeFile(t, v, "knowledge/docs/b.md", docList)
	writeFile(t, v, "knowledge/log/bad.md", docNoFrontmatter)
	writeFile(t, v, "knowledge/log/nots.md", docNoTimestamp)
	writeFile(t, v, "knowledge/log/notes.txt", "ignored")
}

// snapshot dumps the rebuildable tables in a stable order.
func snapshot(t *testing.T, database *sql.DB) string {
	t.Helper()
	var sb strings.Builder
	for _, q := range []string{
		`SELECT name, type, created, last_mentioned FROM entities ORDER BY name`,
		`SELECT alias, canonical, COALESCE(entity_type, '') FROM entity_aliases ORDER BY alias`,
		`SELECT entity, doc_id, ts FROM refs ORDER BY entity, doc_id`,
		`SELECT doc_id, ts, type, title FROM documents ORDER BY doc_id`,
	} {
		rows, err := database.Query(q)
		require.NoError(t, err)
		cols, err := rows.Columns()
		require.NoError(t, err)
		for rows.Next() {
			vals := make([]string, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			require.NoError(t, rows.Scan(ptrs...))
			fmt.Fprintln(&sb, strings.Join(vals, "|"))
		}
		require.NoError(t, rows.Err())
		rows.Close()
		sb.WriteString("--\n")
	}
	return sb.String()
}

func TestRebuild_IndexesAndReports(t *testing.T) {
	v := newTestVault(t, "")
	seedDocs(t, v)

	rep := &recordingReporter{}
	out, err := Rebuild(context.Background(), v, rep)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Documents)
	assert.Equal(t, 2, out.Errors)
	assert.Equal(t, 3, out.Entities) // Sam, spellbook, sqlite
	assert.Equal(t, 4, out.Refs)

	// Lexicographic by id across doc dirs.
	assert.Equal(t, []string{"knowledge/docs/b.md", "knowledge/log/2024/a.md"}, rep.indexed)
	assert.Equal(t, []string{"knowledge/log/bad.md", "knowledge/log/nots.md"}, rep.failed)

	require.Len(t, out.Failures, 2)
	assert.Equal(t, string(errors.ErrNoFrontmatter), out.Failures[0].Code)
	assert.Equal(t, string(errors.ErrNoTimestamp), out.Failures[1].Code)

	sam, err := db.GetEntity(v.DB, "sam")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:00:00Z", sam.Created)
	assert.Equal(t, "2024-02-01T00:00:00Z", sam.LastMentioned)
	assert.Equal(t, 2, sam.RefCount)
}

func TestRebuild_Idempotent(t *testing.T) {
	v := newTestVault(t, "")
	seedDocs(t, v)

	_, err := Rebuild(context.Background(), v, nil)
	require.NoError(t, err)
	first := snapshot(t, v.DB)

	_, err = Rebuild(context.Background(), v, nil)
	require.NoError(t, err)
	assert.Equal(t, first, snapshot(t, v.DB))
}

func TestRebuild_IndependentOfDocumentOrder(t *testing.T) {
	first := `---
ts: 2024-01-10T00:00:00Z
entities:
  person: [sam]
  tool: [SQLite]
---
`
	second := `---
ts: 2024-01-10T00:00:00Z
entities:
  project: [Sam]
  tool: [sqlite]
---
`
	entitiesAndAliases := func(files [2]string) string {
		v := newTestVault(t, "")
		writeFile(t, v, "knowledge/log/x.md", files[0])
		writeFile(t, v, "knowledge/log/y.md", files[1])
		_, err := Rebuild(context.Background(), v, nil)
		require.NoError(t, err)
		sections := strings.SplitN(snapshot(t, v.DB), "--\n", 3)
		return sections[0] + sections[1]
	}

	forward := entitiesAndAliases([2]string{first, second})
	assert.Equal(t, forward, entitiesAndAliases([2]string{second, first}))
	assert.Equal(t, "SQLite|tool|2024-01-10T00:00:00Z|2024-01-10T00:00:00Z\n"+
		"Sam|person|2024-01-10T00:00:00Z|2024-01-10T00:00:00Z\n"+
		"Sam|Sam|person\n"+
		"SQLite|SQLite|tool\n", forward)
}

func TestRebuild_LeavesTelemetryAlone(t *testing.T) {
	v := newTestVault(t, "")
	seedDocs(t, v)

	require.NoError(t, db.SaveUsage(v.DB, &usage.Report{
		Session: usage.Session{ID: "sess-1", VaultPath: v.Paths.Root, StartedAt: "2024-01-15T10:00:00Z"},
		Calls:   []usage.SubagentCall{{AgentID: "a1", AgentType: "Archivist", Status: usage.StatusCompleted}},
	}))

	_, err := Rebuild(context.Background(), v, nil)
	require.NoError(t, err)

	stats, err := db.GetStats(v.DB)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.SubagentCalls)
}

func TestRebuild_DropsRemovedDocuments(t *testing.T) {
	v := newTestVault(t, "")
	writeFile(t, v, "knowledge/log/a.md", docMapping)
	writeFile(t, v, "knowledge/log/b.md", docList)

	_, err := Rebuild(context.Background(), v, nil)
	require.NoError(t, err)

	writeFile(t, v, "knowledge/log/b.md", docNoFrontmatter)
	out, err := Rebuild(context.Background(), v, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Documents)
	_, err = db.GetEntity(v.DB, "sqlite")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRebuild_ReplaysAliasRegistry(t *testing.T) {
	v := newTestVault(t, "")
	writeFile(t, v, "knowledge/aliases.yaml", `aliases:
  - alias: SB
    canonical: spellbook
    type: project
`)
	writeFile(t, v, "knowledge/log/a.md", `---
ts: 2024-03-01
entities:
  project: [SB]
---
`)

	out, err := Rebuild(context.Background(), v, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.AliasesReplayed)

	// The document named the alias; the entity is stored under the canonical.
	e, err := db.GetEntity(v.DB, "sb")
	require.NoError(t, err)
	assert.Equal(t, "spellbook", e.Name)
}

func TestRebuild_Globs(t *testing.T) {
	v := newTestVault(t, "doc_dirs: [knowledge/log]\nexclude_globs: [\"drafts/**\"]\n")
	writeFile(t, v, "knowledge/log/a.md", docMapping)
	writeFile(t, v, "knowledge/log/drafts/wip.md", docList)
	writeFile(t, v, "knowledge/docs/b.md", docList)

	rep := &recordingReporter{}
	out, err := Rebuild(context.Background(), v, rep)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Documents)
	assert.Equal(t, []string{"knowledge/log/a.md"}, rep.indexed)
}

func TestRebuild_NoDocDirs(t *testing.T) {
	v := newTestVault(t, "")

	_, err := Rebuild(context.Background(), v, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestRebuild_Cancelled(t *testing.T) {
	v := newTestVault(t, "")
	seedDocs(t, v)
	_, err := Rebuild(context.Background(), v, nil)
	require.NoError(t, err)
	before := snapshot(t, v.DB)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Rebuild(ctx, v, nil)
	assert.True(t, errors.Is(err, errors.ErrCancelled))

	// The transaction rolled back.
	assert.Equal(t, before, snapshot(t, v.DB))
}

func TestDocMatcher(t *testing.T) {
	m, err := newDocMatcher([]string{"**/*.md"}, []string{"drafts/**", "**/_*.md"})
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"a.md", true},
		{"2024/01/a.md", true},
		{"a.txt", false},
		{"drafts/a.md", false},
		{"_index.md", false},
		{"2024/_index.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.path))
		})
	}
}
