package db

import (
	"database/sql"

	"github.com/hpungsan/spellbook/internal/errors"
	"github.com/hpungsan/spellbook/internal/usage"
)

// SaveUsage stores a correlation report in one transaction: the session row
// is upserted and the session's subagent calls are replaced wholesale.
// Counters only grow, started_at only moves earlier and ended_at only later,
// so saving the same report twice leaves the same state.
func SaveUsage(db *sql.DB, r *usage.Report) (err error) {
	if r == nil || r.Session.ID == "" {
		return errors.NewInvalidRequest("session id is required")
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	s := r.Session
	_, err = tx.Exec(`
		INSERT INTO sessions (
			id, vault_path, started_at, ended_at,
			total_input_tokens, total_output_tokens,
			total_cache_creation, total_cache_read,
			total_messages, slug
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vault_path = excluded.vault_path,
			started_at = CASE
				WHEN sessions.started_at IS NULL THEN excluded.started_at
				WHEN excluded.started_at IS NOT NULL AND excluded.started_at < sessions.started_at THEN excluded.started_at
				ELSE sessions.started_at END,
			ended_at = CASE
				WHEN sessions.ended_at IS NULL THEN excluded.ended_at
				WHEN excluded.ended_at IS NOT NULL AND excluded.ended_at > sessions.ended_at THEN excluded.ended_at
				ELSE sessions.ended_at END,
			total_input_tokens = MAX(COALESCE(sessions.total_input_tokens, 0), excluded.total_input_tokens),
			total_output_tokens = MAX(COALESCE(sessions.total_output_tokens, 0), excluded.total_output_tokens),
			total_cache_creation = MAX(COALESCE(sessions.total_cache_creation, 0), excluded.total_cache_creation),
			total_cache_read = MAX(COALESCE(sessions.total_cache_read, 0), excluded.total_cache_read),
			total_messages = MAX(COALESCE(sessions.total_messages, 0), excluded.total_messages),
			slug = COALESCE(excluded.slug, sessions.slug)
	`,
		s.ID, s.VaultPath, nullIfEmpty(s.StartedAt), nullIfEmpty(s.EndedAt),
		s.Tokens.Input, s.Tokens.Output,
		s.Tokens.CacheCreation, s.Tokens.CacheRead,
		s.TotalMessages, nullIfEmpty(s.Slug),
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	if _, err = tx.Exec(`DELETE FROM subagent_calls WHERE session_id = ?`, s.ID); err != nil {
		return errors.NewInternal(err)
	}

	for _, c := range r.Calls {
		var duration sql.NullInt64
		if c.DurationMs != nil {
			duration = sql.NullInt64{Int64: *c.DurationMs, Valid: true}
		}
		_, err = tx.Exec(`
			INSERT INTO subagent_calls (
				session_id, tool_use_id, agent_id, agent_type, description, prompt_preview,
				started_at, ended_at, duration_ms,
				input_tokens, output_tokens, cache_creation, cache_read,
				total_tokens, tool_use_count, status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			s.ID, nullIfEmpty(c.ToolUseID), c.AgentID, c.AgentType,
			nullIfEmpty(c.Description), nullIfEmpty(c.PromptPreview),
			nullIfEmpty(c.StartedAt), nullIfEmpty(c.EndedAt), duration,
			c.Tokens.Input, c.Tokens.Output, c.Tokens.CacheCreation, c.Tokens.CacheRead,
			c.TotalTokens, c.ToolUseCount, c.Status,
		)
		if err != nil {
			return errors.NewInternal(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

const sessionColumns = `
	id, vault_path, started_at, ended_at,
	COALESCE(total_input_tokens, 0), COALESCE(total_output_tokens, 0),
	COALESCE(total_cache_creation, 0), COALESCE(total_cache_read, 0),
	COALESCE(total_messages, 0), slug
`

// GetSession retrieves a session by id.
func GetSession(q DBTX, id string) (*usage.Session, error) {
	sessions, err := querySessions(q, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, errors.NewNotFound(id)
	}
	return &sessions[0], nil
}

// ListSessions returns sessions, most recently started first.
func ListSessions(q DBTX, limit int) ([]usage.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return querySessions(q, query, args...)
}

func querySessions(q DBTX, query string, args ...any) ([]usage.Session, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	sessions := []usage.Session{}
	for rows.Next() {
		var (
			s         usage.Session
			startedAt sql.NullString
			endedAt   sql.NullString
			slug      sql.NullString
		)
		err := rows.Scan(&s.ID, &s.VaultPath, &startedAt, &endedAt,
			&s.Tokens.Input, &s.Tokens.Output, &s.Tokens.CacheCreation, &s.Tokens.CacheRead,
			&s.TotalMessages, &slug)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		s.StartedAt = startedAt.String
		s.EndedAt = endedAt.String
		s.Slug = slug.String
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return sessions, nil
}

// GetSubagentCalls returns a session's subagent calls in insertion order.
func GetSubagentCalls(q DBTX, sessionID string) ([]usage.SubagentCall, error) {
	rows, err := q.Query(`
		SELECT session_id, tool_use_id, agent_id, agent_type, description, prompt_preview,
			started_at, ended_at, duration_ms,
			COALESCE(input_tokens, 0), COALESCE(output_tokens, 0),
			COALESCE(cache_creation, 0), COALESCE(cache_read, 0),
			COALESCE(total_tokens, 0), COALESCE(tool_use_count, 0), COALESCE(status, '')
		FROM subagent_calls
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	calls := []usage.SubagentCall{}
	for rows.Next() {
		var (
			c             usage.SubagentCall
			toolUseID     sql.NullString
			description   sql.NullString
			promptPreview sql.NullString
			startedAt     sql.NullString
			endedAt       sql.NullString
			duration      sql.NullInt64
		)
		err := rows.Scan(&c.SessionID, &toolUseID, &c.AgentID, &c.AgentType, &description, &promptPreview,
			&startedAt, &endedAt, &duration,
			&c.Tokens.Input, &c.Tokens.Output, &c.Tokens.CacheCreation, &c.Tokens.CacheRead,
			&c.TotalTokens, &c.ToolUseCount, &c.Status)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		c.ToolUseID = toolUseID.String
		c.Description = description.String
		c.PromptPreview = promptPreview.String
		c.StartedAt = startedAt.String
		c.EndedAt = endedAt.String
		if duration.Valid {
			d := duration.Int64
			c.DurationMs = &d
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return calls, nil
}
