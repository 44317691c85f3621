package capture

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/spellbook/internal/errors"
	"github.com/hpungsan/spellbook/internal/transcript"
)

// Speaker labels in buffer records.
const (
	LabelUser  = "USER"
	LabelAgent = "AGENT"
)

// recordSeparator joins buffer records.
const recordSeparator = "\n\n"

// Delta is the conversation content appended since a checkpoint.
type Delta struct {
	// Text is the flattened record: "<LABEL>: <text>" entries joined by a blank line.
	Text string
	// Checkpoint is the highest timestamp seen, never lower than the input checkpoint.
	Checkpoint *string
	// Count is the number of user/assistant entries with text.
	Count int
}

// ExtractDelta reads the transcript at path and returns the entries strictly
// newer than checkpoint. An unreadable transcript yields an empty Delta
// carrying the input checkpoint.
func ExtractDelta(path string, checkpoint *string, log logrus.FieldLogger) Delta {
	delta := Delta{Checkpoint: checkpoint}

	f, err := os.Open(path)
	if err != nil {
		if log != nil {
			log.WithError(err).WithField("transcript", path).Debug("transcript unavailable")
		}
		return delta
	}
	defer f.Close()

	s := transcript.NewScanner(f)
	if log != nil {
		s.OnMalformed = func(err *errors.SpellbookError) {
			log.WithField("transcript", path).WithField("line", err.Details["line"]).Debug("skipped malformed line")
		}
	}

	var records []string
	for s.Next() {
		e := s.Entry()
		if e.Timestamp == "" {
			continue
		}
		if checkpoint != nil && e.Timestamp <= *checkpoint {
			continue
		}
		if delta.Checkpoint == nil || e.Timestamp > *delta.Checkpoint {
			ts := e.Timestamp
			delta.Checkpoint = &ts
		}

		var label string
		switch e.Type {
		case transcript.TypeUser:
			label = LabelUser
		case transcript.TypeAssistant:
			label = LabelAgent
		default:
			continue
		}

		text := strings.TrimSpace(e.Text())
		if text == "" {
			continue
		}
		records = append(records, label+": "+text)
	}
	if err := s.Err(); err != nil && log != nil {
		log.WithError(err).WithField("transcript", path).Warn("transcript read stopped early")
	}
	if n := s.Malformed(); n > 0 && log != nil {
		log.WithFields(logrus.Fields{"transcript": path, "lines": s.Line(), "malformed": n}).Warn("skipped malformed transcript lines")
	}

	delta.Text = strings.Join(records, recordSeparator)
	delta.Count = len(records)
	return delta
}
