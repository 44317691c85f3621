package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/spellbook/internal/errors"
)

func scanAll(t *testing.T, input string) ([]Entry, *Scanner) {
	t.Helper()
	s := NewScanner(strings.NewReader(input))
	var entries []Entry
	for s.Next() {
		entries = append(entries, *s.Entry())
	}
	require.NoError(t, s.Err())
	return entries, s
}

func TestScanner_SkipsMalformedLines(t *testing.T) {
	input := `{"type":"user","timestamp":"t1","message":{"content":"hi"}}
not json
42

{"type":"assistant","timestamp":"t2","message":{"content":[{"type":"text","text":"hello"}]}}`

	var reported []*errors.SpellbookError
	s := NewScanner(strings.NewReader(input))
	s.OnMalformed = func(err *errors.SpellbookError) { reported = append(reported, err) }

	var types []string
	for s.Next() {
		types = append(types, s.Entry().Type)
	}
	require.NoError(t, s.Err())

	assert.Equal(t, []string{"user", "assistant"}, types)
	assert.Equal(t, 2, s.Malformed())
	require.Len(t, reported, 2)
	assert.Equal(t, errors.ErrMalformedTranscript, reported[0].Code)
	assert.Equal(t, 2, reported[0].Details["line"])
	assert.Equal(t, 3, reported[1].Details["line"])
}

func TestScanner_LongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	entries, _ := scanAll(t, `{"type":"user","timestamp":"t1","message":{"content":"`+long+`"}}`+"\n")
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Text(), len(long))
}

func TestEntry_Text(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"string content", `{"message":{"content":"plain"}}`, "plain"},
		{"text blocks joined", `{"message":{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}}`, "a\nb"},
		{"tool blocks ignored", `{"message":{"content":[{"type":"tool_use","id":"x","name":"Task"},{"type":"text","text":"ok"}]}}`, "ok"},
		{"bare string block", `{"message":{"content":["loose"]}}`, "loose"},
		{"missing content", `{"message":{}}`, ""},
		{"object content", `{"message":{"content":{"weird":true}}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, _ := scanAll(t, tt.line)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.want, entries[0].Text())
		})
	}
}

func TestEntry_AgentResult(t *testing.T) {
	t.Run("object with agentId", func(t *testing.T) {
		entries, _ := scanAll(t, `{"type":"user","toolUseResult":{"agentId":"a1","totalDurationMs":1500,"totalTokens":42,"totalToolUseCount":3,"usage":{"input_tokens":30,"output_tokens":12}}}`)
		res, ok := entries[0].AgentResult()
		require.True(t, ok)
		assert.Equal(t, "a1", res.AgentID)
		require.NotNil(t, res.TotalDurationMs)
		assert.Equal(t, int64(1500), *res.TotalDurationMs)
		assert.Equal(t, int64(42), res.TotalTokens)
		assert.Equal(t, int64(3), res.TotalToolUseCount)
		assert.Equal(t, int64(30), res.Usage.InputTokens)
		assert.Equal(t, "", res.Status)
	})

	t.Run("object without agentId", func(t *testing.T) {
		entries, _ := scanAll(t, `{"type":"user","toolUseResult":{"stdout":"x"}}`)
		_, ok := entries[0].AgentResult()
		assert.False(t, ok)
	})

	t.Run("string result", func(t *testing.T) {
		entries, _ := scanAll(t, `{"type":"user","toolUseResult":"Error: failed"}`)
		_, ok := entries[0].AgentResult()
		assert.False(t, ok)
	})

	t.Run("bad counter keeps id", func(t *testing.T) {
		entries, _ := scanAll(t, `{"type":"user","toolUseResult":{"agentId":"a2","totalTokens":"many"}}`)
		res, ok := entries[0].AgentResult()
		require.True(t, ok)
		assert.Equal(t, "a2", res.AgentID)
	})
}

func TestBlock_Dispatch(t *testing.T) {
	entries, _ := scanAll(t, `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"toolu_1","name":"Task","input":{"subagent_type":"researcher","description":"d","prompt":"p"}}]}}`)
	blocks := entries[0].Message.Content.Blocks
	require.Len(t, blocks, 1)

	in, ok := blocks[0].Dispatch()
	require.True(t, ok)
	assert.Equal(t, "researcher", in.SubagentType)
	assert.Equal(t, "d", in.Description)
	assert.Equal(t, "p", in.Prompt)

	empty := Block{Type: BlockToolUse}
	_, ok = empty.Dispatch()
	assert.False(t, ok)
}
