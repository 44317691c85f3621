// Package hooks implements the assistant runtime's lifecycle hooks.
//
// Each hook reads one JSON object, writes at most one JSON response and
// never reports failure to the runtime: problems go to the vault log and
// the hook answers {"continue": true}.
package hooks

import (
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/spellbook/internal/logging"
	"github.com/hpungsan/spellbook/internal/ops"
)

// Hook event names.
const (
	EventStop             = "Stop"
	EventUserPromptSubmit = "UserPromptSubmit"
	EventPreToolUse       = "PreToolUse"
)

// Input is the union of the fields the runtime sends to hooks.
type Input struct {
	SessionID      string         `json:"session_id"`
	TranscriptPath string         `json:"transcript_path"`
	Cwd            string         `json:"cwd"`
	HookEventName  string         `json:"hook_event_name"`
	Prompt         string         `json:"prompt"`
	UserPrompt     string         `json:"user_prompt"`
	ToolName       string         `json:"tool_name"`
	ToolInput      map[string]any `json:"tool_input"`
}

// PromptText returns the submitted prompt under either field name.
func (in *Input) PromptText() string {
	if in.Prompt != "" {
		return in.Prompt
	}
	return in.UserPrompt
}

// Response is the hook reply.
type Response struct {
	Continue           *bool           `json:"continue,omitempty"`
	SystemMessage      string          `json:"systemMessage,omitempty"`
	HookSpecificOutput *SpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// SpecificOutput carries event-specific fields.
type SpecificOutput struct {
	HookEventName      string         `json:"hookEventName"`
	AdditionalContext  string         `json:"additionalContext,omitempty"`
	PermissionDecision string         `json:"permissionDecision,omitempty"`
	UpdatedInput       map[string]any `json:"updatedInput,omitempty"`
}

// Continue returns the pass-through response.
func Continue() *Response {
	yes := true
	return &Response{Continue: &yes}
}

// decodeInput reads the hook payload. A malformed payload is reported as
// ok=false so the caller can pass through.
func decodeInput(r io.Reader) (*Input, bool) {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, false
	}
	if in.Cwd == "" {
		in.Cwd = "."
	}
	return &in, true
}

// writeResponse encodes resp, or writes nothing when resp is nil.
func writeResponse(w io.Writer, resp *Response) error {
	if resp == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// vaultLogger opens the vault's hook log. The closer must be called.
func vaultLogger(v *ops.Vault, event string) (logrus.FieldLogger, io.Closer) {
	logger, closer := logging.OpenFile(v.Config.LogLevel, v.Paths.LogFile())
	return logging.Entry(logger).WithField("hook", event), closer
}
