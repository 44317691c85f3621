package ops

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/spellbook/internal/capture"
	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/errors"
	"github.com/hpungsan/spellbook/internal/logging"
	"github.com/hpungsan/spellbook/internal/usage"
)

// CaptureInput contains parameters for the Capture operation.
type CaptureInput struct {
	TranscriptPath string // required
	SessionID      string // optional; usage is skipped without it
}

// CaptureOutput contains the result of the Capture operation.
type CaptureOutput struct {
	UsageSaved    bool    `json:"usage_saved"`
	SubagentCalls int     `json:"subagent_calls"`
	Entries       int     `json:"entries"`
	BufferFile    string  `json:"buffer_file,omitempty"`
	Checkpoint    *string `json:"last_captured_ts"`
	BufferPending int     `json:"buffer_pending"`
	// Advisory is set once pending buffer records reach the threshold.
	Advisory string `json:"advisory,omitempty"`
}

// BufferAdvisory is the one-line reminder emitted when buffer records pile up.
func BufferAdvisory(pending int) string {
	return fmt.Sprintf("[Spellbook] %d buffer files pending. Run: Task(📜 Archivist, 'Process buffer')", pending)
}

// Capture runs the session-end pipeline for one transcript: usage is
// correlated and stored, then the conversation delta since the checkpoint
// is buffered. Usage failures are logged and never stop the delta. The
// checkpoint only advances after the buffer record is durably written, and
// deltas shorter than min_exchanges are left for the next run.
func Capture(ctx context.Context, v *Vault, input CaptureInput, log logrus.FieldLogger) (*CaptureOutput, error) {
	if log == nil {
		log = logging.Entry(logging.Discard())
	}
	path := strings.TrimSpace(input.TranscriptPath)
	if path == "" {
		return nil, errors.NewInvalidRequest("transcript path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewNotFound(path)
	}
	log = log.WithField("session", input.SessionID)

	out := &CaptureOutput{}

	switch {
	case input.SessionID == "":
		log.Debug("no session id, usage skipped")
	case v.DB == nil:
		log.Warn("index unavailable, usage skipped")
	default:
		report, err := usage.Correlate(path, input.SessionID, usage.Options{
			VaultPath:          v.Paths.Root,
			DispatchTools:      v.Config.DispatchTools,
			PromptPreviewChars: v.Config.PromptPreviewChars,
			Log:                log,
		})
		if err != nil {
			log.WithError(err).Warn("usage correlation failed")
		} else if err := db.SaveUsage(v.DB, report); err != nil {
			log.WithError(err).Warn("failed to store usage")
		} else {
			out.UsageSaved = true
			out.SubagentCalls = len(report.Calls)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("capture")
	}

	bufferDir := v.Paths.BufferDir()
	checkpoint := capture.LoadCheckpoint(bufferDir)
	out.Checkpoint = checkpoint

	delta := capture.ExtractDelta(path, checkpoint, log)
	out.Entries = delta.Count

	if delta.Text != "" && delta.Count >= v.Config.MinExchanges {
		file, err := capture.WriteRecord(bufferDir, delta.Text)
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to write buffer record: %w", err))
		}
		out.BufferFile = file
		if err := capture.SaveCheckpoint(bufferDir, delta.Checkpoint); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to save checkpoint: %w", err))
		}
		out.Checkpoint = delta.Checkpoint
		log.WithField("entries", delta.Count).WithField("file", file).Info("buffered conversation delta")
	} else {
		log.WithField("entries", delta.Count).Debug("delta below min_exchanges, checkpoint kept")
	}

	pending, err := capture.CountRecords(bufferDir)
	if err != nil {
		log.WithError(err).Warn("failed to count buffer records")
	}
	out.BufferPending = pending
	if out.BufferFile != "" && pending >= v.Config.BufferThreshold {
		out.Advisory = BufferAdvisory(pending)
	}

	return out, nil
}
