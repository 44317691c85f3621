package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/errors"
	"github.com/hpungsan/spellbook/internal/usage"
)

// SessionSummary is a session row with its agent breakdown.
type SessionSummary struct {
	usage.Session
	DurationMs  *int64               `json:"duration_ms,omitempty"`
	TotalTokens int64                `json:"total_tokens"`
	Agents      []usage.AgentSummary `json:"agents"`
}

// ListSessionsOutput contains the result of the ListSessions operation.
type ListSessionsOutput struct {
	Items []SessionSummary `json:"items"`
	Limit int              `json:"limit"`
}

// ListSessions lists sessions, most recently started first.
func ListSessions(database *sql.DB, limit int) (*ListSessionsOutput, error) {
	limit = clampLimit(limit, DefaultListLimit, MaxListLimit)
	sessions, err := db.ListSessions(database, limit)
	if err != nil {
		return nil, err
	}

	items := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		calls, err := db.GetSubagentCalls(database, s.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, summarize(s, calls))
	}
	return &ListSessionsOutput{Items: items, Limit: limit}, nil
}

// GetSessionOutput contains the result of the GetSession operation.
type GetSessionOutput struct {
	Session SessionSummary       `json:"session"`
	Calls   []usage.SubagentCall `json:"subagent_calls"`
}

// GetSession returns a session with every subagent call.
func GetSession(database *sql.DB, id string) (*GetSessionOutput, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("session id is required")
	}
	s, err := db.GetSession(database, id)
	if err != nil {
		return nil, err
	}
	calls, err := db.GetSubagentCalls(database, id)
	if err != nil {
		return nil, err
	}
	return &GetSessionOutput{Session: summarize(*s, calls), Calls: calls}, nil
}

func summarize(s usage.Session, calls []usage.SubagentCall) SessionSummary {
	return SessionSummary{
		Session:     s,
		DurationMs:  s.DurationMs(),
		TotalTokens: s.TotalTokens(),
		Agents:      usage.SummarizeAgents(calls),
	}
}
