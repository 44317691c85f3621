package ops

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/hpungsan/spellbook/internal/errors"
)

// ValidateDocID checks that docID is a vault-relative slash path inside one
// of the configured doc dirs and returns the file path it names.
// Document ids arrive from URLs and tool calls, so traversal is rejected
// rather than cleaned away.
func ValidateDocID(v *Vault, docID string) (string, error) {
	if docID == "" {
		return "", errors.NewInvalidRequest("doc_id is required")
	}
	if strings.ContainsRune(docID, '\\') || strings.ContainsRune(docID, 0) {
		return "", errors.NewInvalidRequest("doc_id must be a slash-separated path")
	}
	if path.IsAbs(docID) || filepath.IsAbs(docID) {
		return "", errors.NewInvalidRequest("doc_id must be relative to the vault")
	}
	if containsTraversal(docID) {
		return "", errors.NewInvalidRequest("doc_id must not contain directory traversal (..)")
	}

	cleaned := path.Clean(docID)
	for _, dir := range v.Config.DocDirs {
		dir = strings.TrimSuffix(path.Clean(filepath.ToSlash(dir)), "/")
		if strings.HasPrefix(cleaned, dir+"/") {
			return filepath.Join(v.Paths.Root, filepath.FromSlash(cleaned)), nil
		}
	}
	return "", errors.NewInvalidRequest("doc_id is outside the configured doc directories")
}

// containsTraversal checks if a slash path contains a ".." component.
func containsTraversal(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
