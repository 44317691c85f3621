// Package recall finds known entity names mentioned in free text.
package recall

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
)

// MinSurfaceRunes is the shortest surface form that is matched.
const MinSurfaceRunes = 2

// Term is one surface form of an entity.
type Term struct {
	Surface   string
	Canonical string
}

// Matcher scans text for any registered surface form in a single pass.
type Matcher struct {
	ac         *ahocorasick.Automaton
	canonicals []string // pattern id -> canonical name
}

// NewMatcher compiles terms. Surface forms are compared after Canonicalize,
// so matching ignores case and punctuation runs. When two canonicals share a
// surface form the first one wins.
func NewMatcher(terms []Term) (*Matcher, error) {
	m := &Matcher{}
	index := make(map[string]bool)
	var patterns []string

	for _, t := range terms {
		key := Canonicalize(t.Surface)
		if utf8.RuneCountInString(key) < MinSurfaceRunes || index[key] {
			continue
		}
		index[key] = true
		patterns = append(patterns, key)
		m.canonicals = append(m.canonicals, t.Canonical)
	}
	if len(patterns) == 0 {
		return m, nil
	}

	// LeftmostLongest prefers "Sam Smith" over "Sam".
	ac, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	m.ac = ac
	return m, nil
}

// Find returns the canonical names mentioned in text, in order of first
// mention, each once. Matches must sit on word boundaries.
func (m *Matcher) Find(text string) []string {
	if m == nil || m.ac == nil {
		return nil
	}
	haystack := Canonicalize(text)

	var spans []span
	for _, match := range m.ac.FindAllOverlapping([]byte(haystack)) {
		if onBoundary(haystack, match.Start, match.End) {
			spans = append(spans, span{match.Start, match.End, match.PatternID})
		}
	}
	// Leftmost first, longest first at the same start; drop spans inside a kept one.
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	seen := make(map[string]bool)
	var found []string
	covered := 0
	for _, sp := range spans {
		if sp.start < covered {
			continue
		}
		covered = sp.end
		name := m.canonicals[sp.pattern]
		if seen[name] {
			continue
		}
		seen[name] = true
		found = append(found, name)
	}
	return found
}

type span struct {
	start, end, pattern int
}

// onBoundary reports whether haystack[start:end] is not glued to a letter or digit.
func onBoundary(haystack string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(haystack[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(haystack) {
		r, _ := utf8.DecodeRuneInString(haystack[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isJoiner reports punctuation that commonly appears inside names:
// "O'Brien", "Jean-Luc", "AT&T", "node.js".
func isJoiner(r rune) bool {
	switch r {
	case '\'', '-', '.', '_', '/', '#', '&', '+':
		return true
	}
	return false
}

// Canonicalize lowercases s, keeps letters, digits and joiners, and collapses
// everything else into single spaces.
func Canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)
		switch c {
		case '’', '‘':
			c = '\''
		case '–', '—':
			c = '-'
		}

		if isWordRune(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteByte(' ')
			lastWasSpace = true
		}
	}
	return strings.TrimSuffix(out.String(), " ")
}
