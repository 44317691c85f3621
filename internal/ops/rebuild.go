package ops

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/hpungsan/spellbook/internal/capture"
	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/errors"
	"github.com/hpungsan/spellbook/internal/knowledge"
)

// RebuildFailure is one document that could not be indexed.
type RebuildFailure struct {
	DocID   string `json:"doc_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RebuildOutput contains the result of the Rebuild operation.
type RebuildOutput struct {
	Documents       int              `json:"documents"`
	Errors          int              `json:"errors"`
	Entities        int              `json:"entities"`
	Refs            int              `json:"refs"`
	AliasesReplayed int              `json:"aliases_replayed"`
	AliasConflicts  int              `json:"alias_conflicts"`
	Failures        []RebuildFailure `json:"failures"`
}

// docFile is a candidate document: its id and where it lives on disk.
type docFile struct {
	id   string
	path string
}

// Rebuild drops and recreates the entity tables, replays the alias registry
// and indexes every matching document in lexicographic id order, all in one
// transaction. Telemetry tables are not touched. Per-document failures are
// reported and counted; only an unusable vault or store aborts the run.
func Rebuild(ctx context.Context, v *Vault, rep Reporter) (_ *RebuildOutput, err error) {
	if v == nil {
		return nil, errors.NewInvalidRequest("vault is required")
	}
	if rep == nil {
		rep = NopReporter{}
	}
	cfg := v.Config

	matcher, err := newDocMatcher(cfg.DocGlobs, cfg.ExcludeGlobs)
	if err != nil {
		return nil, err
	}
	docs, err := collectDocuments(v, matcher)
	if err != nil {
		return nil, err
	}
	aliases, err := loadAliasRegistry(v.Paths.AliasFile())
	if err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, errors.NewCancelled("rebuild")
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

	if err = db.ResetEntityTables(tx); err != nil {
		return nil, errors.NewInternal(err)
	}

	out := &RebuildOutput{Failures: []RebuildFailure{}}

	// Aliases go first so documents that mention an alias land on its canonical.
	for _, a := range aliases {
		var ok bool
		ok, err = db.AddAlias(tx, a.Alias, a.Canonical, a.Type)
		if err != nil {
			if errors.Is(err, errors.ErrInvalidRequest) {
				out.AliasConflicts++
				err = nil
				continue
			}
			return nil, err
		}
		if ok {
			out.AliasesReplayed++
		} else {
			out.AliasConflicts++
		}
	}

	opts := knowledge.ParseOptions{EntityTypes: knowledge.NewTypeSet(cfg.ExtraEntityTypes)}
	for _, d := range docs {
		select {
		case <-ctx.Done():
			err = errors.NewCancelled("rebuild")
			return nil, err
		default:
		}

		doc, perr := readDocument(d, opts)
		if perr != nil {
			out.Errors++
			out.Failures = append(out.Failures, failureOf(d.id, perr))
			rep.DocumentFailed(d.id, perr)
			continue
		}

		if err = db.IndexDocument(tx, doc); err != nil {
			return nil, err
		}
		out.Documents++
		rep.DocumentIndexed(d.id, len(doc.Entities))
	}

	stats, err := db.GetStats(tx)
	if err != nil {
		return nil, err
	}
	out.Entities = stats.Entities
	out.Refs = stats.Refs

	if err = tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// readDocument reads and parses one document file.
func readDocument(d docFile, opts knowledge.ParseOptions) (*knowledge.Document, error) {
	raw, err := capture.ReadFileNoFollow(d.path)
	if err != nil {
		return nil, err
	}
	doc, err := knowledge.Parse(raw, d.id, opts)
	if err != nil {
		return nil, err
	}
	doc.Path = d.path
	return doc, nil
}

func failureOf(docID string, err error) RebuildFailure {
	f := RebuildFailure{DocID: docID, Code: string(errors.ErrInternal), Message: err.Error()}
	if sErr, ok := err.(*errors.SpellbookError); ok {
		f.Code = string(sErr.Code)
		f.Message = sErr.Message
	}
	return f
}

// collectDocuments walks every configured doc dir and returns the matching
// files sorted by id. Missing doc dirs are skipped; if none exists the vault
// has nothing to index and the call fails.
func collectDocuments(v *Vault, m *docMatcher) ([]docFile, error) {
	if len(v.Config.DocDirs) == 0 {
		return nil, errors.NewInvalidRequest("no doc_dirs configured")
	}

	seen := make(map[string]bool)
	var docs []docFile
	found := 0
	for _, rel := range v.Config.DocDirs {
		dir := v.Paths.DocDir(rel)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		found++

		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			inDir, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			if !m.Match(filepath.ToSlash(inDir)) {
				return nil
			}
			id := v.Paths.Rel(path)
			if seen[id] {
				return nil
			}
			seen[id] = true
			docs = append(docs, docFile{id: id, path: path})
			return nil
		})
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to scan %s: %w", rel, err))
		}
	}
	if found == 0 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("no doc directory found (looked for %s)",
			strings.Join(v.Config.DocDirs, ", ")))
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].id < docs[j].id })
	return docs, nil
}

// docMatcher selects documents by slash-separated path relative to a doc dir.
type docMatcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

// newDocMatcher compiles the include and exclude patterns. A leading "**/"
// also matches at the top level, so "**/*.md" selects "a.md".
func newDocMatcher(include, exclude []string) (*docMatcher, error) {
	m := &docMatcher{}
	var err error
	if m.include, err = compileGlobs(include); err != nil {
		return nil, err
	}
	if m.exclude, err = compileGlobs(exclude); err != nil {
		return nil, err
	}
	return m, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	var globs []glob.Glob
	for _, pattern := range patterns {
		variants := []string{pattern}
		if trimmed, ok := strings.CutPrefix(pattern, "**/"); ok {
			variants = append(variants, trimmed)
		}
		for _, p := range variants {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid glob %q: %v", pattern, err))
			}
			globs = append(globs, g)
		}
	}
	return globs, nil
}

// Match reports whether path is selected. Exclusions take precedence; no
// include patterns selects every file.
func (m *docMatcher) Match(path string) bool {
	for _, g := range m.exclude {
		if g.Match(path) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, g := range m.include {
		if g.Match(path) {
			return true
		}
	}
	return false
}
