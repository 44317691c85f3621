package usage

import (
	"sort"
	"time"
)

// AgentSummary aggregates a session's subagent calls of one agent type.
type AgentSummary struct {
	AgentType   string `json:"agent_type"`
	Calls       int    `json:"calls"`
	TotalTokens int64  `json:"total_tokens"`
}

// SummarizeAgents groups calls by agent type, heaviest first.
// Ties keep the order in which each type first appeared.
func SummarizeAgents(calls []SubagentCall) []AgentSummary {
	index := make(map[string]int)
	summaries := []AgentSummary{}
	for _, c := range calls {
		agentType := c.AgentType
		if agentType == "" {
			agentType = UnknownAgentType
		}
		i, ok := index[agentType]
		if !ok {
			i = len(summaries)
			index[agentType] = i
			summaries = append(summaries, AgentSummary{AgentType: agentType})
		}
		summaries[i].Calls++
		summaries[i].TotalTokens += c.TotalTokens
	}
	sort.SliceStable(summaries, func(a, b int) bool {
		return summaries[a].TotalTokens > summaries[b].TotalTokens
	})
	return summaries
}

// DurationMs returns the wall-clock span of the session, or nil when either
// bound is missing or unparseable.
func (s Session) DurationMs() *int64 {
	if s.StartedAt == "" || s.EndedAt == "" {
		return nil
	}
	start, err := time.Parse(time.RFC3339Nano, s.StartedAt)
	if err != nil {
		return nil
	}
	end, err := time.Parse(time.RFC3339Nano, s.EndedAt)
	if err != nil {
		return nil
	}
	ms := end.Sub(start).Milliseconds()
	return &ms
}

// TotalTokens is input plus output, the figure shown in session listings.
func (s Session) TotalTokens() int64 {
	return s.Tokens.Input + s.Tokens.Output
}
