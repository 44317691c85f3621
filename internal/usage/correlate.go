package usage

import (
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/spellbook/internal/errors"
	"github.com/hpungsan/spellbook/internal/transcript"
)

// DefaultDispatchTools are the tool names that start a delegated sub-task.
var DefaultDispatchTools = []string{"Task", "Agent"}

// DefaultPromptPreviewChars bounds the stored prompt preview.
const DefaultPromptPreviewChars = 200

// Options tune correlation.
type Options struct {
	VaultPath          string
	DispatchTools      []string
	PromptPreviewChars int
	Log                logrus.FieldLogger
}

// pending is a dispatch waiting for its completion.
type pending struct {
	toolUseID   string
	agentType   string
	description string
	prompt      string
	startedAt   string
}

// Correlate scans a transcript in full and returns session totals plus one
// subagent call per dispatch and per completion.
//
// Duplicate dispatch ids keep the first dispatch. A completion without a
// dispatch yields a call with completion-side fields only. Dispatches that
// never complete are appended as running calls, in dispatch order.
func Correlate(path, sessionID string, opts Options) (*Report, error) {
	report := &Report{
		Session: Session{ID: sessionID, VaultPath: opts.VaultPath},
		Calls:   []SubagentCall{},
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return report, errors.NewNotFound(path)
		}
		return report, errors.NewInternal(err)
	}
	defer f.Close()

	dispatchTools := opts.DispatchTools
	if len(dispatchTools) == 0 {
		dispatchTools = DefaultDispatchTools
	}
	isDispatch := make(map[string]bool, len(dispatchTools))
	for _, name := range dispatchTools {
		isDispatch[name] = true
	}
	previewChars := opts.PromptPreviewChars
	if previewChars <= 0 {
		previewChars = DefaultPromptPreviewChars
	}

	s := transcript.NewScanner(f)
	if opts.Log != nil {
		s.OnMalformed = func(err *errors.SpellbookError) {
			opts.Log.WithField("transcript", path).WithField("line", err.Details["line"]).Debug("skipped malformed line")
		}
	}

	pendingByID := make(map[string]*pending)
	var order []string
	sess := &report.Session

	for s.Next() {
		e := s.Entry()
		ts := e.Timestamp

		if ts != "" {
			if sess.StartedAt == "" || ts < sess.StartedAt {
				sess.StartedAt = ts
			}
			if sess.EndedAt == "" || ts > sess.EndedAt {
				sess.EndedAt = ts
			}
		}

		// Sub-conversation usage arrives aggregated on its completion.
		if e.IsSidechain {
			continue
		}

		if sess.Slug == "" && e.Slug != "" {
			sess.Slug = e.Slug
		}

		switch e.Type {
		case transcript.TypeAssistant:
			sess.Tokens.Add(tokensOf(e.Message.Usage))
			sess.TotalMessages++

			for i := range e.Message.Content.Blocks {
				b := &e.Message.Content.Blocks[i]
				if b.Type != transcript.BlockToolUse || !isDispatch[b.Name] || b.ID == "" {
					continue
				}
				if _, seen := pendingByID[b.ID]; seen {
					continue
				}
				in, _ := b.Dispatch()
				pendingByID[b.ID] = &pending{
					toolUseID:   b.ID,
					agentType:   in.SubagentType,
					description: in.Description,
					prompt:      in.Prompt,
					startedAt:   ts,
				}
				order = append(order, b.ID)
			}

		case transcript.TypeUser:
			res, ok := e.AgentResult()
			if !ok {
				continue
			}
			for _, b := range e.Message.Content.Blocks {
				if b.Type != transcript.BlockToolResult {
					continue
				}
				p := pendingByID[b.ToolUseID]
				if p != nil {
					delete(pendingByID, b.ToolUseID)
				}
				report.Calls = append(report.Calls, completedCall(sessionID, b.ToolUseID, p, res, ts, previewChars))
			}
		}
	}
	if err := s.Err(); err != nil && opts.Log != nil {
		opts.Log.WithError(err).WithField("transcript", path).Warn("transcript read stopped early")
	}
	if n := s.Malformed(); n > 0 && opts.Log != nil {
		opts.Log.WithFields(logrus.Fields{"transcript": path, "lines": s.Line(), "malformed": n}).Warn("skipped malformed transcript lines")
	}

	for _, id := range order {
		p, ok := pendingByID[id]
		if !ok {
			continue
		}
		// An id re-dispatched after its completion appears in order twice.
		delete(pendingByID, id)
		report.Calls = append(report.Calls, SubagentCall{
			SessionID:     sessionID,
			ToolUseID:     p.toolUseID,
			AgentType:     NormalizeAgentType(p.agentType),
			Description:   p.description,
			PromptPreview: truncateRunes(p.prompt, previewChars),
			StartedAt:     p.startedAt,
			Status:        StatusRunning,
		})
	}

	return report, nil
}

func completedCall(sessionID, toolUseID string, p *pending, res *transcript.AgentResult, ts string, previewChars int) SubagentCall {
	call := SubagentCall{
		SessionID:    sessionID,
		ToolUseID:    toolUseID,
		AgentID:      res.AgentID,
		AgentType:    UnknownAgentType,
		StartedAt:    ts,
		EndedAt:      ts,
		DurationMs:   res.TotalDurationMs,
		Tokens:       tokensOf(res.Usage),
		TotalTokens:  res.TotalTokens,
		ToolUseCount: res.TotalToolUseCount,
		Status:       res.Status,
	}
	if call.Status == "" {
		call.Status = StatusCompleted
	}
	if p != nil {
		call.AgentType = NormalizeAgentType(p.agentType)
		call.Description = p.description
		call.PromptPreview = truncateRunes(p.prompt, previewChars)
		if p.startedAt != "" {
			call.StartedAt = p.startedAt
		}
	}
	return call
}

func tokensOf(u transcript.Usage) Tokens {
	return Tokens{
		Input:         u.InputTokens,
		Output:        u.OutputTokens,
		CacheCreation: u.CacheCreationInputTokens,
		CacheRead:     u.CacheReadInputTokens,
	}
}

// NormalizeAgentType strips decorative prefixes from an agent label: an
// escaped \UXXXXXXXX code point and any run of leading symbols or
// punctuation (emoji included), plus the whitespace after them.
// Empty results become Unknown.
func NormalizeAgentType(label string) string {
	label = strings.TrimSpace(label)
	if strings.HasPrefix(label, `\U`) {
		rest := strings.TrimLeftFunc(label[2:], isHexDigit)
		if len(rest) < len(label)-2 {
			label = strings.TrimLeftFunc(rest, unicode.IsSpace)
		}
	}
	label = strings.TrimLeftFunc(label, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && !unicode.IsSpace(r)
	})
	label = strings.TrimSpace(label)
	if label == "" {
		return UnknownAgentType
	}
	return label
}

func isHexDigit(r rune) bool {
	return ('0' <= r && r <= '9') || ('a' <= r && r <= 'f') || ('A' <= r && r <= 'F')
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
