package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/spellbook/internal/capture"
	"github.com/hpungsan/spellbook/internal/db"
	"github.com/hpungsan/spellbook/internal/ops"
)

// contextHeader opens every injected context block.
const contextHeader = "[Spellbook Vault Context]"

// minPromptRunes is the length below which a prompt is treated as trivial.
const minPromptRunes = 10

var trivialPrompts = map[string]bool{
	"hi": true, "hello": true, "hey": true,
	"thanks": true, "thank you": true,
	"ok": true, "okay": true,
}

// IsTrivialPrompt reports whether a prompt is a greeting or too short to
// deserve injected context.
func IsTrivialPrompt(prompt string) bool {
	trimmed := strings.TrimSpace(prompt)
	return trivialPrompts[strings.ToLower(trimmed)] || utf8.RuneCountInString(trimmed) < minPromptRunes
}

// Prompt handles a new user turn. It only reads vault state: the
// orchestrator context, the buffer backlog and the entities the prompt
// mentions are injected as additional context.
func Prompt(ctx context.Context, r io.Reader, w io.Writer) error {
	return writeResponse(w, prompt(ctx, r))
}

func prompt(_ context.Context, r io.Reader) *Response {
	in, ok := decodeInput(r)
	if !ok {
		return Continue()
	}
	v, err := ops.LoadVault(in.Cwd)
	if err != nil {
		return Continue()
	}
	text := in.PromptText()
	if IsTrivialPrompt(text) {
		return Continue()
	}

	log, closer := vaultLogger(v, EventUserPromptSubmit)
	defer closer.Close()

	var sb strings.Builder
	sb.WriteString(contextHeader)
	sb.WriteString("\n\n")

	orchestrator, err := capture.ReadFileNoFollow(v.Paths.OrchestratorContext())
	if err != nil || strings.TrimSpace(string(orchestrator)) == "" {
		sb.WriteString("Orchestrator context not found.")
	} else {
		sb.Write(orchestrator)
	}

	pending, err := capture.CountRecords(v.Paths.BufferDir())
	if err != nil {
		log.WithError(err).Warn("failed to count buffer records")
	}
	if pending >= v.Config.PromptAdvisoryThreshold {
		fmt.Fprintf(&sb, "\n\n---\n\n⚠️ VAULT STATE: %d buffer files pending archival (invoke 📜 Archivist directly)\n", pending)
	}

	// An existing index is read as is; creating or migrating it is left
	// to rebuild and capture.
	if v.HasIndex() {
		if err := v.OpenCurrentIndex(); errors.Is(err, db.ErrSchemaMismatch) {
			log.WithError(err).Info("index needs a rebuild, skipping recall")
		} else if err != nil {
			log.WithError(err).Warn("failed to open index")
		} else {
			defer v.Close()
			recalled, err := ops.Recall(v.DB, ops.RecallInput{Text: text})
			if err != nil {
				log.WithError(err).Warn("entity recall failed")
			} else if block := ops.FormatRecall(recalled.Items); block != "" {
				sb.WriteString("\n\n---\n\n")
				sb.WriteString(block)
			}
		}
	}

	resp := Continue()
	resp.HookSpecificOutput = &SpecificOutput{
		HookEventName:     EventUserPromptSubmit,
		AdditionalContext: strings.TrimSpace(sb.String()),
	}
	return resp
}
