package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/spellbook/internal/capture"
	"github.com/hpungsan/spellbook/internal/config"
	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/errors"
)

const (
	lineAsk      = `{"type":"user","timestamp":"2024-01-15T10:00:00.000Z","message":{"content":"index the notes"}}`
	lineDispatch = `{"type":"assistant","timestamp":"2024-01-15T10:00:05.000Z","message":{"usage":{"input_tokens":100,"output_tokens":20},"content":[{"type":"text","text":"delegating"},{"type":"tool_use","id":"toolu_A","name":"Task","input":{"subagent_type":"📜 Archivist","description":"archive","prompt":"process buffer"}}]}}`
	lineResult   = `{"type":"user","timestamp":"2024-01-15T10:01:00.000Z","toolUseResult":{"agentId":"agent-1","status":"completed","totalDurationMs":55000,"totalTokens":640,"totalToolUseCount":6,"usage":{"input_tokens":500,"output_tokens":140}},"message":{"content":[{"type":"tool_result","tool_use_id":"toolu_A","content":"done"}]}}`
	lineDone     = `{"type":"assistant","timestamp":"2024-01-15T10:01:05.000Z","message":{"usage":{"input_tokens":10,"output_tokens":5},"content":"all done"}}`
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func TestCapture_UsageAndBuffer(t *testing.T) {
	v := newTestVault(t, "")
	path := writeTranscript(t, lineAsk, lineDispatch, lineResult, lineDone)

	out, err := Capture(context.Background(), v, CaptureInput{TranscriptPath: path, SessionID: "sess-1"}, nil)
	require.NoError(t, err)

	assert.True(t, out.UsageSaved)
	assert.Equal(t, 1, out.SubagentCalls)
	assert.GreaterOrEqual(t, out.Entries, 3)
	require.NotEmpty(t, out.BufferFile)
	assert.Equal(t, 1, out.BufferPending)
	assert.Empty(t, out.Advisory)
	require.NotNil(t, out.Checkpoint)
	assert.Equal(t, "2024-01-15T10:01:05.000Z", *out.Checkpoint)

	record, err := os.ReadFile(out.BufferFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(record), "USER: index the notes"))
	assert.Contains(t, string(record), "AGENT: all done")

	saved := capture.LoadCheckpoint(v.Paths.BufferDir())
	require.NotNil(t, saved)
	assert.Equal(t, *out.Checkpoint, *saved)

	s, err := db.GetSession(v.DB, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, v.Paths.Root, s.VaultPath)
	calls, err := db.GetSubagentCalls(v.DB, "sess-1")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "Archivist", calls[0].AgentType)
}

func TestCapture_SecondRunBuffersNothing(t *testing.T) {
	v := newTestVault(t, "buffer_threshold: 1\n")
	path := writeTranscript(t, lineAsk, lineDone)

	first, err := Capture(context.Background(), v, CaptureInput{TranscriptPath: path}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, first.BufferFile)
	assert.Equal(t, BufferAdvisory(1), first.Advisory)

	second, err := Capture(context.Background(), v, CaptureInput{TranscriptPath: path}, nil)
	require.NoError(t, err)
	assert.Empty(t, second.BufferFile)
	assert.Equal(t, 0, second.Entries)
	assert.Equal(t, 1, second.BufferPending)
	// Nothing new was written, so no reminder.
	assert.Empty(t, second.Advisory)
	assert.False(t, second.UsageSaved)
}

func TestCapture_BelowMinExchanges(t *testing.T) {
	v := newTestVault(t, "")
	path := writeTranscript(t, lineAsk)

	out, err := Capture(context.Background(), v, CaptureInput{TranscriptPath: path}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Entries)
	assert.Empty(t, out.BufferFile)
	assert.Nil(t, out.Checkpoint)
	assert.Nil(t, capture.LoadCheckpoint(v.Paths.BufferDir()))

	n, err := capture.CountRecords(v.Paths.BufferDir())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCapture_MinExchangesOfOneStillSkipsLoneEntry(t *testing.T) {
	v := newTestVault(t, "min_exchanges: 1\n")
	path := writeTranscript(t, lineAsk)

	out, err := Capture(context.Background(), v, CaptureInput{TranscriptPath: path}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Entries)
	assert.Empty(t, out.BufferFile)
	assert.Nil(t, capture.LoadCheckpoint(v.Paths.BufferDir()))
}

func TestCapture_Advisory(t *testing.T) {
	v := newTestVault(t, "buffer_threshold: 2\n")
	_, err := capture.WriteRecord(v.Paths.BufferDir(), "USER: earlier")
	require.NoError(t, err)

	out, err := Capture(context.Background(), v, CaptureInput{TranscriptPath: writeTranscript(t, lineAsk, lineDone)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out.BufferPending)
	assert.Equal(t, "[Spellbook] 2 buffer files pending. Run: Task(📜 Archivist, 'Process buffer')", out.Advisory)
}

func TestCapture_WithoutIndex(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.MarkerFile), nil, 0644))
	v, err := LoadVault(root)
	require.NoError(t, err)

	out, err := Capture(context.Background(), v, CaptureInput{
		TranscriptPath: writeTranscript(t, lineAsk, lineDone),
		SessionID:      "sess-1",
	}, nil)
	require.NoError(t, err)
	assert.False(t, out.UsageSaved)
	assert.NotEmpty(t, out.BufferFile)
	assert.False(t, v.HasIndex())
}

func TestCapture_Errors(t *testing.T) {
	v := newTestVault(t, "")

	_, err := Capture(context.Background(), v, CaptureInput{}, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Capture(context.Background(), v, CaptureInput{TranscriptPath: filepath.Join(t.TempDir(), "gone.jsonl")}, nil)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Capture(ctx, v, CaptureInput{TranscriptPath: writeTranscript(t, lineAsk, lineDone)}, nil)
	assert.True(t, errors.Is(err, errors.ErrCancelled))
	assert.Nil(t, capture.LoadCheckpoint(v.Paths.BufferDir()))
}
