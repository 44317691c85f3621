// Package transcript reads the line-delimited JSON transcripts written by the
// assistant runtime. Lines that fail to parse are skipped, never fatal.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/hpungsan/spellbook/internal/errors"
)

// Entry roles.
const (
	TypeUser      = "user"
	TypeAssistant = "assistant"
)

// Content block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Entry is one transcript line.
type Entry struct {
	Type        string  `json:"type"`
	Timestamp   string  `json:"timestamp"`
	IsSidechain bool    `json:"isSidechain"`
	SessionID   string  `json:"sessionId"`
	Slug        string  `json:"slug"`
	Message     Message `json:"message"`

	// ToolUseResult is kept raw: it is an object for agent completions but
	// may be a plain string for failed tool calls.
	ToolUseResult json.RawMessage `json:"toolUseResult"`
}

// Message is the model-facing payload of an entry.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
	Usage   Usage   `json:"usage"`
}

// Usage holds per-message token counters.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// Content is either a plain string or a list of blocks.
type Content struct {
	Text   string
	Blocks []Block
}

// UnmarshalJSON accepts a string, an array of blocks, or null.
// Any other shape decodes to empty content.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &c.Text)
	case '[':
		return json.Unmarshal(data, &c.Blocks)
	}
	return nil
}

// Block is one content block. Bare strings inside a block list decode as text blocks.
type Block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	ToolUseID string          `json:"tool_use_id"`
	Input     json.RawMessage `json:"input"`
}

// UnmarshalJSON tolerates strings and non-object values inside block lists.
func (b *Block) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		b.Type = BlockText
		return json.Unmarshal(data, &b.Text)
	case '{':
		type plain Block
		return json.Unmarshal(data, (*plain)(b))
	}
	return nil
}

// DispatchInput is the input of a sub-task dispatch tool call.
type DispatchInput struct {
	SubagentType string `json:"subagent_type"`
	Description  string `json:"description"`
	Prompt       string `json:"prompt"`
}

// Dispatch decodes the block input as a dispatch request.
// Returns false if the input is absent or not an object.
func (b *Block) Dispatch() (DispatchInput, bool) {
	var in DispatchInput
	if len(b.Input) == 0 {
		return in, false
	}
	if err := json.Unmarshal(b.Input, &in); err != nil {
		return in, false
	}
	return in, true
}

// AgentResult is the completion metadata of a delegated sub-task.
type AgentResult struct {
	AgentID           string `json:"agentId"`
	Usage             Usage  `json:"usage"`
	TotalDurationMs   *int64 `json:"totalDurationMs"`
	TotalTokens       int64  `json:"totalTokens"`
	TotalToolUseCount int64  `json:"totalToolUseCount"`
	Status            string `json:"status"`
}

// AgentResult returns the entry's agent completion metadata, if it has one.
// Only objects carrying an agentId key qualify.
func (e *Entry) AgentResult() (*AgentResult, bool) {
	raw := bytes.TrimSpace(e.ToolUseResult)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, false
	}
	if _, ok := keys["agentId"]; !ok {
		return nil, false
	}
	var res AgentResult
	if err := json.Unmarshal(raw, &res); err != nil {
		// Keep the id even when a counter has an unexpected type.
		_ = json.Unmarshal(keys["agentId"], &res.AgentID)
		return &res, true
	}
	return &res, true
}

// Text returns the human-readable text of the entry: the string content, or
// the text blocks joined by newlines. Tool blocks are ignored.
func (e *Entry) Text() string {
	c := e.Message.Content
	if c.Blocks == nil {
		return c.Text
	}
	var texts []string
	for _, b := range c.Blocks {
		if b.Type == BlockText {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Scanner iterates over the parseable entries of a transcript.
type Scanner struct {
	r         *bufio.Reader
	line      int
	entry     Entry
	err       error
	malformed int

	// OnMalformed, if set, is called for every skipped line.
	OnMalformed func(err *errors.SpellbookError)
}

// NewScanner returns a Scanner reading from r. Lines may be arbitrarily long.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next parseable entry. It returns false at EOF or on
// a read error (see Err).
func (s *Scanner) Next() bool {
	for {
		line, err := s.r.ReadBytes('\n')
		if len(line) > 0 {
			s.line++
			if s.decode(line) {
				return true
			}
		}
		if err != nil {
			if err != io.EOF {
				s.err = err
			}
			return false
		}
	}
}

func (s *Scanner) decode(line []byte) bool {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}
	s.entry = Entry{}
	if err := json.Unmarshal(line, &s.entry); err != nil {
		s.malformed++
		if s.OnMalformed != nil {
			s.OnMalformed(errors.NewMalformedTranscript(s.line, err))
		}
		return false
	}
	return true
}

// Entry returns the current entry. It is overwritten by the next call to Next.
func (s *Scanner) Entry() *Entry { return &s.entry }

// Line returns the number of lines read so far: the 1-based line of the
// current entry while iterating, the total once Next returns false.
func (s *Scanner) Line() int { return s.line }

// Malformed returns how many lines were skipped so far.
func (s *Scanner) Malformed() int { return s.malformed }

// Err returns the first non-EOF read error.
func (s *Scanner) Err() error { return s.err }
