// Package capture extracts newly appended conversation content from a
// transcript and buffers it for later archival.
package capture

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
)

// StateFile is the checkpoint file name inside the buffer directory.
const StateFile = ".state"

// Checkpoint is the persisted capture state.
type Checkpoint struct {
	LastCapturedTS *string `json:"last_captured_ts"`
}

// LoadCheckpoint returns the last captured timestamp, or nil when the state
// file is missing, unreadable or corrupt. It never fails.
func LoadCheckpoint(bufferDir string) *string {
	f, err := openFileNoFollowRead(filepath.Join(bufferDir, StateFile))
	if err != nil {
		return nil
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil
	}
	if cp.LastCapturedTS != nil && *cp.LastCapturedTS == "" {
		return nil
	}
	return cp.LastCapturedTS
}

// SaveCheckpoint overwrites the state file with ts.
func SaveCheckpoint(bufferDir string, ts *string) error {
	if err := os.MkdirAll(bufferDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(Checkpoint{LastCapturedTS: ts}, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(bufferDir, StateFile), append(data, '\n'), 0644)
}
