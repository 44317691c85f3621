package knowledge

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/spellbook/internal/errors"
)

const frontMatterDelimiter = "---"

// ParseOptions control document parsing.
type ParseOptions struct {
	// EntityTypes is the recognized entity type set; nil means the built-in set.
	EntityTypes TypeSet
}

// Parse parses a knowledge document. Rejections are SpellbookErrors with
// code NO_FRONTMATTER, INVALID_FRONTMATTER or NO_TIMESTAMP.
func Parse(raw []byte, docID string, opts ParseOptions) (*Document, error) {
	types := opts.EntityTypes
	if types == nil {
		types = NewTypeSet(nil)
	}

	block, body, ok := splitFrontMatter(raw)
	if !ok {
		return nil, errors.NewNoFrontmatter(docID)
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(block), &root); err != nil {
		return nil, errors.NewInvalidFrontmatter(docID, err)
	}
	meta := documentMapping(&root)
	if meta == nil || len(meta.Content) == 0 {
		return nil, errors.NewInvalidFrontmatter(docID, fmt.Errorf("metadata is not a key/value mapping"))
	}

	var fields map[string]any
	if err := meta.Decode(&fields); err != nil {
		return nil, errors.NewInvalidFrontmatter(docID, err)
	}

	ts := scalarString(fields["ts"])
	if ts == "" {
		ts = scalarString(fields["date"])
	}
	if ts == "" {
		return nil, errors.NewNoTimestamp(docID)
	}

	doc := &Document{
		ID:            docID,
		Timestamp:     NormalizeTimestamp(ts),
		Type:          strings.ToLower(scalarString(fields["type"])),
		Title:         scalarString(fields["title"]),
		Summary:       scalarString(fields["summary"]),
		Body:          body,
		Entities:      extractEntities(mappingValue(meta, "entities"), types),
		Related:       relatedIDs(fields["related_docs"], fields["related"]),
		Tags:          stringList(fields["tags"]),
		SourceSession: scalarString(fields["source_session"]),
		SourceFiles:   stringList(fields["source_files"]),
	}
	if doc.Type == "" {
		doc.Type = DefaultDocType
	}
	if doc.Title == "" {
		doc.Title = FirstHeading(body)
	}
	if doc.Title == "" {
		doc.Title = UntitledTitle
	}

	return doc, nil
}

// ReadFrontMatter decodes the frontmatter of any markdown file (agent
// definitions, for example) without applying document rules.
// ok is false when there is no frontmatter or it is not a YAML mapping.
func ReadFrontMatter(raw []byte) (fields map[string]any, body string, ok bool) {
	block, body, found := splitFrontMatter(raw)
	if !found {
		return nil, "", false
	}
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(block), &root); err != nil {
		return nil, "", false
	}
	meta := documentMapping(&root)
	if meta == nil {
		return nil, "", false
	}
	if err := meta.Decode(&fields); err != nil {
		return nil, "", false
	}
	return fields, body, true
}

// String returns a frontmatter field as a trimmed string.
func String(fields map[string]any, key string) string {
	return scalarString(fields[key])
}

// Strings returns a frontmatter field as a list of strings. A single
// comma-separated string is split.
func Strings(fields map[string]any, key string) []string {
	return stringList(fields[key])
}

// splitFrontMatter separates the YAML block from the body. The text must
// start with a --- line and the block ends at the next line that is exactly ---.
func splitFrontMatter(raw []byte) (block, body string, ok bool) {
	s := strings.ReplaceAll(string(bytes.TrimPrefix(raw, []byte("\ufeff"))), "\r\n", "\n")
	if !strings.HasPrefix(s, frontMatterDelimiter+"\n") {
		return "", "", false
	}
	rest := s[len(frontMatterDelimiter)+1:]

	// Empty block: closing delimiter right away.
	if strings.HasPrefix(rest, frontMatterDelimiter) && lineEnds(rest, len(frontMatterDelimiter)) {
		return "", trimBody(rest[len(frontMatterDelimiter):]), true
	}

	offset := 0
	for {
		idx := strings.Index(rest[offset:], "\n"+frontMatterDelimiter)
		if idx == -1 {
			return "", "", false
		}
		end := offset + idx + 1 + len(frontMatterDelimiter)
		if lineEnds(rest, end) {
			return rest[:offset+idx], trimBody(rest[end:]), true
		}
		offset = end
	}
}

// lineEnds reports whether position i in s is a line end or end of text.
func lineEnds(s string, i int) bool {
	return i == len(s) || s[i] == '\n'
}

func trimBody(s string) string {
	return strings.TrimLeft(s, "\n")
}

// documentMapping returns the top-level mapping node, or nil.
func documentMapping(root *yaml.Node) *yaml.Node {
	n := root
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil
		}
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	return n
}

// mappingValue returns the value node for key in a mapping node.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// extractEntities reads either encoding:
//
//	entities: {person: [Sam], project: [spellbook]}
//	entities: [{name: Sam, type: person}]
//
// Names are trimmed, blanks and unknown types dropped, and repeats within
// the document collapsed. Mapping order is preserved.
func extractEntities(n *yaml.Node, types TypeSet) []Ref {
	refs := []Ref{}
	if n == nil {
		return refs
	}
	seen := make(map[Ref]bool)
	add := func(name, typ string) {
		name = strings.TrimSpace(name)
		typ = normalizeType(typ)
		if name == "" || !types.Has(typ) {
			return
		}
		key := Ref{Name: strings.ToLower(name), Type: typ}
		if seen[key] {
			return
		}
		seen[key] = true
		refs = append(refs, Ref{Name: name, Type: typ})
	}

	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			typ := n.Content[i].Value
			for _, name := range nodeStrings(n.Content[i+1]) {
				add(name, typ)
			}
		}
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if item.Kind != yaml.MappingNode {
				continue
			}
			var obj map[string]any
			if err := item.Decode(&obj); err != nil {
				continue
			}
			add(scalarString(obj["name"]), scalarString(obj["type"]))
		}
	}
	return refs
}

// nodeStrings returns a scalar or a sequence of scalars as strings.
func nodeStrings(n *yaml.Node) []string {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil
	}
	return stringList(v)
}

// scalarString coerces a YAML scalar to a trimmed string; non-scalars yield "".
func scalarString(v any) string {
	switch t := v.(type) {
	case nil, map[string]any, []any:
		return ""
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// stringList coerces a list, or a comma-separated string, to trimmed non-empty strings.
func stringList(v any) []string {
	var raw []string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		raw = strings.Split(t, ",")
	case []any:
		for _, item := range t {
			raw = append(raw, scalarString(item))
		}
	default:
		raw = []string{scalarString(t)}
	}

	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// relatedIDs merges related_docs and its shorthand related into one list
// of document ids. related_docs entries are ids or {id, relationship}
// objects; the relationship label is not kept.
func relatedIDs(docs, shorthand any) []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id = strings.TrimSpace(id); id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if items, ok := docs.([]any); ok {
		for _, item := range items {
			if obj, ok := item.(map[string]any); ok {
				add(scalarString(obj["id"]))
				continue
			}
			add(scalarString(item))
		}
	} else {
		for _, id := range stringList(docs) {
			add(id)
		}
	}
	for _, id := range stringList(shorthand) {
		add(id)
	}
	return ids
}

// timestampLayouts are tried in order by NormalizeTimestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NormalizeTimestamp renders parseable timestamps as RFC3339 in UTC so they
// compare correctly as strings. Timestamps without a zone are taken as UTC.
// Anything else is returned unchanged.
func NormalizeTimestamp(ts string) string {
	ts = strings.TrimSpace(ts)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ts
}

// FirstHeading returns the text of the first markdown heading in body.
func FirstHeading(body string) string {
	src := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			title = strings.TrimSpace(inlineText(h, src))
			if title != "" {
				return ast.WalkStop, nil
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// inlineText concatenates the text segments below n.
func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
