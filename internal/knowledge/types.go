// Package knowledge parses vault documents: a YAML frontmatter block
// followed by a markdown body.
package knowledge

import (
	"sort"
	"strings"
)

// Built-in entity types.
const (
	EntityProject = "project"
	EntityPerson  = "person"
	EntityTool    = "tool"
	EntityRepo    = "repo"
	EntityConcept = "concept"
	EntityOrg     = "org"
)

// Built-in document types.
const (
	DocDecision     = "decision"
	DocInsight      = "insight"
	DocCode         = "code"
	DocReference    = "reference"
	DocConversation = "conversation"
	DocAnalysis     = "analysis"
)

// DefaultDocType is used when a document declares no type.
const DefaultDocType = DocReference

// UntitledTitle is used when neither frontmatter nor body provide a title.
const UntitledTitle = "Untitled"

// EntityTypes is the built-in entity type set in display order.
var EntityTypes = []string{EntityProject, EntityPerson, EntityTool, EntityRepo, EntityConcept, EntityOrg}

// DocTypes is the built-in document type set in display order.
var DocTypes = []string{DocDecision, DocInsight, DocCode, DocReference, DocConversation, DocAnalysis}

// Ref is one entity mention extracted from a document.
type Ref struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Document is a parsed knowledge document.
type Document struct {
	// ID is the vault-relative path with forward slashes.
	ID string `json:"id"`
	// Path is the absolute file path, empty when parsed from memory.
	Path          string   `json:"path,omitempty"`
	Timestamp     string   `json:"ts"`
	Type          string   `json:"type"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary,omitempty"`
	Body          string   `json:"body,omitempty"`
	Entities      []Ref    `json:"entities"`
	Related       []string `json:"related,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	SourceSession string   `json:"source_session,omitempty"`
	SourceFiles   []string `json:"source_files,omitempty"`
}

// TypeSet is a case-insensitive set of recognized entity types.
type TypeSet map[string]bool

// NewTypeSet returns the built-in entity types plus extra.
func NewTypeSet(extra []string) TypeSet {
	set := make(TypeSet, len(EntityTypes)+len(extra))
	for _, t := range EntityTypes {
		set[t] = true
	}
	for _, t := range extra {
		if t = normalizeType(t); t != "" {
			set[t] = true
		}
	}
	return set
}

// Has reports whether t (in any case) is recognized.
func (s TypeSet) Has(t string) bool {
	return s[normalizeType(t)]
}

// Sorted returns the types in alphabetical order.
func (s TypeSet) Sorted() []string {
	types := make([]string, 0, len(s))
	for t := range s {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
