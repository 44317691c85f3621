package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// MarkerFile is the file whose presence marks a directory as a vault root.
// Its YAML contents double as the vault configuration.
const MarkerFile = ".spellbook"

// EnvPrefix is the prefix for environment overrides (SPELLBOOK_BUFFER_THRESHOLD, ...).
const EnvPrefix = "SPELLBOOK"

// Config holds vault configuration.
type Config struct {
	// Version is the spellbook version that created or last updated the vault.
	Version string `mapstructure:"version"`

	// VaultDir is the vault's directory name as given at init time.
	VaultDir string `mapstructure:"vault_dir"`

	// Created and LastUpdated are informational timestamps written by the installer.
	Created     string `mapstructure:"created"`
	LastUpdated string `mapstructure:"last_updated"`

	// BufferThreshold is the number of pending buffer files at which the stop hook
	// emits an archival advisory.
	BufferThreshold int `mapstructure:"buffer_threshold"`

	// PromptAdvisoryThreshold is the pending buffer count at which the prompt hook
	// mentions the backlog in its injected context.
	PromptAdvisoryThreshold int `mapstructure:"prompt_advisory_threshold"`

	// MinExchanges is the minimum number of new user/assistant entries required
	// before a delta is written to the buffer. Values below MinExchangesFloor
	// are raised to it.
	MinExchanges int `mapstructure:"min_exchanges"`

	// PromptPreviewChars bounds the stored prompt preview of a subagent call (runes).
	PromptPreviewChars int `mapstructure:"prompt_preview_chars"`

	// DocDirs are vault-relative directories scanned by rebuild.
	DocDirs []string `mapstructure:"doc_dirs"`

	// DocGlobs select documents inside DocDirs (slash-separated, relative to the doc dir).
	DocGlobs []string `mapstructure:"doc_globs"`

	// ExcludeGlobs drop documents that DocGlobs selected.
	ExcludeGlobs []string `mapstructure:"exclude_globs,omitempty"`

	// ExtraEntityTypes extends the built-in entity type set.
	ExtraEntityTypes []string `mapstructure:"extra_entity_types,omitempty"`

	// DispatchTools are the tool names that start a delegated sub-task in a transcript.
	DispatchTools []string `mapstructure:"dispatch_tools"`

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `mapstructure:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `mapstructure:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `mapstructure:"disabled_tools,omitempty"`
}

// configKeys lists every key that can be overridden from the environment.
var configKeys = []string{
	"buffer_threshold",
	"prompt_advisory_threshold",
	"min_exchanges",
	"prompt_preview_chars",
	"doc_dirs",
	"doc_globs",
	"exclude_globs",
	"extra_entity_types",
	"dispatch_tools",
	"log_level",
	"db_max_open_conns",
	"db_max_idle_conns",
	"disabled_tools",
}

// MinExchangesFloor keeps a lone prompt or reply from being buffered.
const MinExchangesFloor = 2

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BufferThreshold:         5,
		PromptAdvisoryThreshold: 3,
		MinExchanges:            2,
		PromptPreviewChars:      200,
		DocDirs:                 []string{"knowledge/log", "knowledge/docs"},
		DocGlobs:                []string{"**/*.md"},
		DispatchTools:           []string{"Task", "Agent"},
		LogLevel:                "info",
	}
}

// Load loads configuration from the vault marker file at vaultRoot/.spellbook,
// applying SPELLBOOK_* environment overrides on top.
// Returns default config if the marker is empty or missing.
func Load(vaultRoot string) (*Config, error) {
	return loadFile(filepath.Join(vaultRoot, MarkerFile))
}

// FindVaultRoot walks upward from startDir to find the nearest directory
// containing a .spellbook marker.
// Returns the vault root, or empty string if not found.
func FindVaultRoot(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, MarkerFile)); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root, not found
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config (plus env overrides) if the file doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars. Lists that select what gets
// scanned (doc_dirs, doc_globs, dispatch_tools) are replaced when the overlay
// sets them; additive lists are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Version = firstString(overlay.Version, base.Version)
	result.VaultDir = firstString(overlay.VaultDir, base.VaultDir)
	result.Created = firstString(overlay.Created, base.Created)
	result.LastUpdated = firstString(overlay.LastUpdated, base.LastUpdated)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)

	result.BufferThreshold = firstInt(overlay.BufferThreshold, base.BufferThreshold)
	result.PromptAdvisoryThreshold = firstInt(overlay.PromptAdvisoryThreshold, base.PromptAdvisoryThreshold)
	result.MinExchanges = max(firstInt(overlay.MinExchanges, base.MinExchanges), MinExchangesFloor)
	result.PromptPreviewChars = firstInt(overlay.PromptPreviewChars, base.PromptPreviewChars)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.DocDirs = replaceStringSlice(base.DocDirs, overlay.DocDirs)
	result.DocGlobs = replaceStringSlice(base.DocGlobs, overlay.DocGlobs)
	result.DispatchTools = replaceStringSlice(base.DispatchTools, overlay.DispatchTools)

	result.ExcludeGlobs = mergeStringSlice(base.ExcludeGlobs, overlay.ExcludeGlobs)
	result.ExtraEntityTypes = mergeStringSlice(base.ExtraEntityTypes, overlay.ExtraEntityTypes)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// replaceStringSlice returns the cleaned overlay if it has any entries, else the cleaned base.
func replaceStringSlice(base, overlay []string) []string {
	if cleaned := mergeStringSlice(nil, overlay); len(cleaned) > 0 {
		return cleaned
	}
	return mergeStringSlice(base, nil)
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
