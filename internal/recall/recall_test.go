package recall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Find(t *testing.T) {
	m, err := NewMatcher([]Term{
		{Surface: "Sam", Canonical: "Sam"},
		{Surface: "sammy", Canonical: "Sam"},
		{Surface: "spellbook", Canonical: "spellbook"},
		{Surface: "Sam Smith", Canonical: "Sam Smith"},
		{Surface: "Go", Canonical: "Go"},
		{Surface: "x", Canonical: "x"},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"case and punctuation", "What did SAMMY say about Spellbook?", []string{"Sam", "spellbook"}},
		{"deduplicated", "sam, sam and Sam.", []string{"Sam"}},
		{"no partial words", "samples of gopher goals", nil},
		{"short forms skipped", "x marks the spot", nil},
		{"two-rune name", "rewrite it in Go", []string{"Go"}},
		{"longest match preferred", "ask Sam Smith", []string{"Sam Smith"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Find(tt.text))
		})
	}
}

func TestMatcher_Empty(t *testing.T) {
	m, err := NewMatcher(nil)
	require.NoError(t, err)
	assert.Nil(t, m.Find("anything"))

	var nilMatcher *Matcher
	assert.Nil(t, nilMatcher.Find("anything"))
}

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "o'brien's jean-luc", Canonicalize("  O’Brien’s   Jean–Luc!! "))
	assert.Equal(t, "node.js", Canonicalize("Node.js"))
	assert.Equal(t, "", Canonicalize("?!"))
}
