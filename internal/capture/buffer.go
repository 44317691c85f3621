package capture

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// RecordExt is the buffer record file extension.
const RecordExt = ".txt"

// WriteRecord durably writes text as a new buffer record and returns its path.
// Names are ULIDs: time-sortable and unique across overlapping processes.
func WriteRecord(bufferDir, text string) (string, error) {
	if err := os.MkdirAll(bufferDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(bufferDir, ulid.Make().String()+RecordExt)
	if err := WriteFileAtomic(path, []byte(text), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// CountRecords returns the number of pending buffer records.
// A missing buffer directory counts as zero.
func CountRecords(bufferDir string) (int, error) {
	entries, err := os.ReadDir(bufferDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), RecordExt) {
			n++
		}
	}
	return n, nil
}
