package capture

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// WriteFileAtomic writes data to a temp file next to path, syncs it and
// renames it into place. Readers see either the old file or the new one.
// A symlink at path is refused.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return fmt.Errorf("failed to generate temp file name: %w", err)
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	defer func() {
		if file != nil {
			file.Close()
		}
		if err != nil {
			os.Remove(tempPath)
		}
	}()

	if _, err = file.Write(data); err != nil {
		return err
	}
	if err = file.Sync(); err != nil {
		return err
	}
	// Close before rename (required on Windows; fine elsewhere).
	if err = file.Close(); err != nil {
		return err
	}
	file = nil

	// os.Rename would replace a symlink, not follow it, but refuse anyway.
	if info, lerr := os.Lstat(path); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
		err = fmt.Errorf("refusing to replace symlink %s", path)
		return err
	}

	if err = os.Rename(tempPath, path); err != nil {
		return err
	}
	return nil
}

// ReadFileNoFollow reads a regular file without following a symlink at path.
// A missing file is a NOT_FOUND SpellbookError.
func ReadFileNoFollow(path string) ([]byte, error) {
	f, err := openFileNoFollowRead(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
