package config

import "path/filepath"

// Vault is a resolved vault root and the well-known paths inside it.
type Vault struct {
	Root string
}

// KnowledgeDir holds the index database, the buffer and the documents.
func (v Vault) KnowledgeDir() string { return filepath.Join(v.Root, "knowledge") }

// BufferDir holds buffer records and the capture checkpoint.
func (v Vault) BufferDir() string { return filepath.Join(v.KnowledgeDir(), "buffer") }

// AliasFile is the alias registry replayed on every rebuild.
func (v Vault) AliasFile() string { return filepath.Join(v.KnowledgeDir(), "aliases.yaml") }

// LogFile receives hook diagnostics.
func (v Vault) LogFile() string { return filepath.Join(v.KnowledgeDir(), "spellbook.log") }

// AgentsDir holds agent definition files.
func (v Vault) AgentsDir() string { return filepath.Join(v.Root, ".claude", "agents") }

// OrchestratorContext is the markdown injected by the prompt hook.
func (v Vault) OrchestratorContext() string {
	return filepath.Join(v.Root, ".claude", "context", "orchestrator.md")
}

// DocDir resolves a configured doc dir against the vault root.
func (v Vault) DocDir(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(v.Root, filepath.FromSlash(rel))
}

// Rel returns path relative to the vault root with forward slashes.
// Falls back to the cleaned path if it is not inside the vault.
func (v Vault) Rel(path string) string {
	rel, err := filepath.Rel(v.Root, path)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(path))
	}
	return filepath.ToSlash(rel)
}
