// Package usage computes per-session token usage and reconciles delegated
// sub-task dispatches with their completions.
package usage

// Subagent call statuses.
const (
	StatusCompleted = "completed"
	StatusRunning   = "running"
)

// UnknownAgentType labels calls whose agent type is missing or empty after normalization.
const UnknownAgentType = "Unknown"

// Tokens groups the four token counters reported per message.
type Tokens struct {
	Input         int64 `json:"input_tokens"`
	Output        int64 `json:"output_tokens"`
	CacheCreation int64 `json:"cache_creation_tokens"`
	CacheRead     int64 `json:"cache_read_tokens"`
}

// Add accumulates o into t.
func (t *Tokens) Add(o Tokens) {
	t.Input += o.Input
	t.Output += o.Output
	t.CacheCreation += o.CacheCreation
	t.CacheRead += o.CacheRead
}

// Session is the usage row for one conversation session.
type Session struct {
	ID            string `json:"id"`
	VaultPath     string `json:"vault_path"`
	StartedAt     string `json:"started_at,omitempty"`
	EndedAt       string `json:"ended_at,omitempty"`
	Tokens        Tokens `json:"tokens"`
	TotalMessages int    `json:"total_messages"`
	Slug          string `json:"slug,omitempty"`
}

// SubagentCall is one delegated sub-task.
type SubagentCall struct {
	SessionID     string `json:"session_id"`
	ToolUseID     string `json:"tool_use_id,omitempty"`
	AgentID       string `json:"agent_id"`
	AgentType     string `json:"agent_type"`
	Description   string `json:"description,omitempty"`
	PromptPreview string `json:"prompt_preview,omitempty"`
	StartedAt     string `json:"started_at,omitempty"`
	EndedAt       string `json:"ended_at,omitempty"`
	// DurationMs is nil when the completion did not report a duration.
	DurationMs   *int64 `json:"duration_ms,omitempty"`
	Tokens       Tokens `json:"tokens"`
	TotalTokens  int64  `json:"total_tokens"`
	ToolUseCount int64  `json:"tool_use_count"`
	Status       string `json:"status"`
}

// Report is the result of correlating one transcript.
type Report struct {
	Session Session        `json:"session"`
	Calls   []SubagentCall `json:"subagent_calls"`
}
