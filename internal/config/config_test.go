package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMarker(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, MarkerFile), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BufferThreshold != DefaultConfig().BufferThreshold {
		t.Fatalf("BufferThreshold = %d, want %d", cfg.BufferThreshold, DefaultConfig().BufferThreshold)
	}
	if len(cfg.DocDirs) != 2 {
		t.Fatalf("DocDirs = %v, want defaults", cfg.DocDirs)
	}
}

func TestLoad_EmptyMarker(t *testing.T) {
	tmpDir := t.TempDir()
	writeMarker(t, tmpDir, "")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MinExchanges != 2 {
		t.Fatalf("MinExchanges = %d, want 2", cfg.MinExchanges)
	}
}

func TestLoad_OverridesFromMarker(t *testing.T) {
	tmpDir := t.TempDir()
	writeMarker(t, tmpDir, `version: "1.2.0"
vault_dir: notes
buffer_threshold: 8
doc_dirs:
  - knowledge/log
exclude_globs:
  - "drafts/**"
`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Version != "1.2.0" {
		t.Errorf("Version = %q, want 1.2.0", cfg.Version)
	}
	if cfg.VaultDir != "notes" {
		t.Errorf("VaultDir = %q, want notes", cfg.VaultDir)
	}
	if cfg.BufferThreshold != 8 {
		t.Errorf("BufferThreshold = %d, want 8", cfg.BufferThreshold)
	}
	if len(cfg.DocDirs) != 1 || cfg.DocDirs[0] != "knowledge/log" {
		t.Errorf("DocDirs = %v, want [knowledge/log]", cfg.DocDirs)
	}
	if len(cfg.ExcludeGlobs) != 1 || cfg.ExcludeGlobs[0] != "drafts/**" {
		t.Errorf("ExcludeGlobs = %v", cfg.ExcludeGlobs)
	}
	// Untouched keys keep their defaults.
	if cfg.PromptPreviewChars != 200 {
		t.Errorf("PromptPreviewChars = %d, want 200", cfg.PromptPreviewChars)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	writeMarker(t, tmpDir, "buffer_threshold: [unclosed\n")

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	writeMarker(t, tmpDir, "buffer_threshold: 8\n")
	t.Setenv("SPELLBOOK_BUFFER_THRESHOLD", "11")
	t.Setenv("SPELLBOOK_LOG_LEVEL", "debug")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BufferThreshold != 11 {
		t.Errorf("BufferThreshold = %d, want 11", cfg.BufferThreshold)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeMarker(t, tmpDir, "disabled_tools:\n  - index_rebuild\n  - alias_add\n")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools = %v, want 2 entries", cfg.DisabledTools)
	}
	if cfg.DisabledTools[0] != "index_rebuild" || cfg.DisabledTools[1] != "alias_add" {
		t.Errorf("DisabledTools = %v", cfg.DisabledTools)
	}
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.ExtraEntityTypes = []string{"place"}

	overlay := &Config{
		BufferThreshold:  9,
		LogLevel:         "  warn ",
		DispatchTools:    []string{" Task ", ""},
		ExtraEntityTypes: []string{"place", "event"},
	}

	got := Merge(base, overlay)

	if got.BufferThreshold != 9 {
		t.Errorf("BufferThreshold = %d, want 9", got.BufferThreshold)
	}
	if got.MinExchanges != 2 {
		t.Errorf("MinExchanges = %d, want 2", got.MinExchanges)
	}
	if got.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", got.LogLevel)
	}
	if len(got.DispatchTools) != 1 || got.DispatchTools[0] != "Task" {
		t.Errorf("DispatchTools = %v, want [Task]", got.DispatchTools)
	}
	if len(got.ExtraEntityTypes) != 2 || got.ExtraEntityTypes[1] != "event" {
		t.Errorf("ExtraEntityTypes = %v, want [place event]", got.ExtraEntityTypes)
	}
	if len(got.DocGlobs) != 1 || got.DocGlobs[0] != "**/*.md" {
		t.Errorf("DocGlobs = %v, want default", got.DocGlobs)
	}
}

func TestMerge_MinExchangesFloor(t *testing.T) {
	tests := []struct {
		overlay int
		want    int
	}{
		{1, 2},
		{-3, 2},
		{0, 2},
		{5, 5},
	}
	for _, tt := range tests {
		got := Merge(DefaultConfig(), &Config{MinExchanges: tt.overlay})
		if got.MinExchanges != tt.want {
			t.Errorf("MinExchanges(%d) = %d, want %d", tt.overlay, got.MinExchanges, tt.want)
		}
	}
}

func TestLoad_MinExchangesClamped(t *testing.T) {
	tmpDir := t.TempDir()
	writeMarker(t, tmpDir, "min_exchanges: 1\n")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MinExchanges != MinExchangesFloor {
		t.Errorf("MinExchanges = %d, want %d", cfg.MinExchanges, MinExchangesFloor)
	}
}

func TestMergeStringSlice(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want []string
	}{
		{"both nil", nil, nil, nil},
		{"dedupe across", []string{"a", "b"}, []string{"b", "c"}, []string{"a", "b", "c"}},
		{"trims and drops blanks", []string{" a ", " "}, []string{"a"}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeStringSlice(tt.a, tt.b)
			if len(got) != len(tt.want) {
				t.Fatalf("mergeStringSlice() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("mergeStringSlice() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestFindVaultRoot(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, "version: \"1.0.0\"\n")
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	want, _ := filepath.Abs(root)
	if got := FindVaultRoot(nested); got != want {
		t.Errorf("FindVaultRoot(nested) = %q, want %q", got, want)
	}
	if got := FindVaultRoot(root); got != want {
		t.Errorf("FindVaultRoot(root) = %q, want %q", got, want)
	}
}

func TestFindVaultRoot_NotFound(t *testing.T) {
	dir := t.TempDir()
	if got := FindVaultRoot(dir); got != "" {
		// A marker above the temp dir would make this environment-dependent.
		if _, err := os.Stat(filepath.Join(got, MarkerFile)); err != nil {
			t.Errorf("FindVaultRoot() = %q without a marker", got)
		}
	}
}

func TestVaultPaths(t *testing.T) {
	v := Vault{Root: "/vault"}

	if got := v.BufferDir(); got != filepath.Join("/vault", "knowledge", "buffer") {
		t.Errorf("BufferDir() = %q", got)
	}
	if got := v.AliasFile(); got != filepath.Join("/vault", "knowledge", "aliases.yaml") {
		t.Errorf("AliasFile() = %q", got)
	}
	if got := v.DocDir("knowledge/log"); got != filepath.Join("/vault", "knowledge", "log") {
		t.Errorf("DocDir() = %q", got)
	}
	if got := v.Rel(filepath.Join("/vault", "knowledge", "log", "a.md")); got != "knowledge/log/a.md" {
		t.Errorf("Rel() = %q, want knowledge/log/a.md", got)
	}
}
