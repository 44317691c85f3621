package hooks

import (
	"context"
	"io"

	"github.com/hpungsan/spellbook/internal/ops"
)

// Stop handles session end: usage is stored and the conversation delta is
// buffered. A system message is added once enough buffer records pile up.
func Stop(ctx context.Context, r io.Reader, w io.Writer) error {
	return writeResponse(w, stop(ctx, r))
}

func stop(ctx context.Context, r io.Reader) *Response {
	in, ok := decodeInput(r)
	if !ok {
		return Continue()
	}
	v, err := ops.LoadVault(in.Cwd)
	if err != nil {
		return Continue()
	}
	if in.TranscriptPath == "" {
		return Continue()
	}

	log, closer := vaultLogger(v, EventStop)
	defer closer.Close()

	if err := v.OpenIndex(); err != nil {
		// The delta is still buffered; only usage needs the index.
		log.WithError(err).Warn("failed to open index")
	}
	defer v.Close()

	out, err := ops.Capture(ctx, v, ops.CaptureInput{
		TranscriptPath: in.TranscriptPath,
		SessionID:      in.SessionID,
	}, log)
	if err != nil {
		log.WithError(err).Warn("capture skipped")
		return Continue()
	}

	resp := Continue()
	resp.SystemMessage = out.Advisory
	return resp
}
