package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/spellbook/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the index database file inside the knowledge directory.
const FileName = "index.db"

// DBTX is satisfied by both *sql.DB and *sql.Tx so queries can run inside
// a caller's transaction.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Init opens (creating if needed) the SQLite index at knowledgeDir/index.db.
// Tests pass t.TempDir() as knowledgeDir.
func Init(knowledgeDir string) (*sql.DB, error) {
	if err := os.MkdirAll(knowledgeDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create knowledge directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dbPath := filepath.Join(knowledgeDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// ErrSchemaMismatch is returned by OpenCurrent for an index whose
// user_version is not CurrentSchemaVersion.
var ErrSchemaMismatch = errors.New("index schema version mismatch")

// OpenCurrent opens an existing index without creating, converting or
// migrating it. Only an index already at CurrentSchemaVersion is returned.
func OpenCurrent(knowledgeDir string) (*sql.DB, error) {
	dbPath := filepath.Join(knowledgeDir, FileName)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("index not found: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	version, err := GetUserVersion(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if version != CurrentSchemaVersion {
		db.Close()
		return nil, fmt.Errorf("%w: have %d, want %d", ErrSchemaMismatch, version, CurrentSchemaVersion)
	}
	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// entitySchema holds the tables that rebuild drops and recreates.
const entitySchema = `
CREATE TABLE IF NOT EXISTS entities (
  name            TEXT PRIMARY KEY,
  type            TEXT NOT NULL,
  created         TEXT NOT NULL,
  last_mentioned  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_aliases (
  alias        TEXT PRIMARY KEY COLLATE NOCASE,
  canonical    TEXT NOT NULL REFERENCES entities(name),
  entity_type  TEXT
);

CREATE TABLE IF NOT EXISTS refs (
  entity  TEXT NOT NULL REFERENCES entities(name),
  doc_id  TEXT NOT NULL,
  ts      TEXT NOT NULL,
  PRIMARY KEY (entity, doc_id)
);

CREATE TABLE IF NOT EXISTS documents (
  doc_id        TEXT PRIMARY KEY,
  ts            TEXT NOT NULL,
  type          TEXT NOT NULL,
  title         TEXT NOT NULL,
  summary       TEXT,
  tags_json     TEXT,
  related_json  TEXT
);

CREATE INDEX IF NOT EXISTS idx_aliases_canonical ON entity_aliases(canonical);
CREATE INDEX IF NOT EXISTS idx_refs_doc ON refs(doc_id);
CREATE INDEX IF NOT EXISTS idx_refs_ts ON refs(ts DESC);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_last ON entities(last_mentioned DESC);
CREATE INDEX IF NOT EXISTS idx_documents_ts ON documents(ts DESC);
`

// usageSchema holds the telemetry tables. Rebuild never touches them.
const usageSchema = `
CREATE TABLE IF NOT EXISTS sessions (
  id                    TEXT PRIMARY KEY,
  vault_path            TEXT NOT NULL,
  started_at            TEXT,
  ended_at              TEXT,
  total_input_tokens    INTEGER DEFAULT 0,
  total_output_tokens   INTEGER DEFAULT 0,
  total_cache_creation  INTEGER DEFAULT 0,
  total_cache_read      INTEGER DEFAULT 0,
  total_messages        INTEGER DEFAULT 0,
  slug                  TEXT
);

CREATE TABLE IF NOT EXISTS subagent_calls (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id      TEXT NOT NULL REFERENCES sessions(id),
  tool_use_id     TEXT,
  agent_id        TEXT NOT NULL,
  agent_type      TEXT NOT NULL,
  description     TEXT,
  prompt_preview  TEXT,
  started_at      TEXT,
  ended_at        TEXT,
  duration_ms     INTEGER,
  input_tokens    INTEGER DEFAULT 0,
  output_tokens   INTEGER DEFAULT 0,
  cache_creation  INTEGER DEFAULT 0,
  cache_read      INTEGER DEFAULT 0,
  total_tokens    INTEGER DEFAULT 0,
  tool_use_count  INTEGER DEFAULT 0,
  status          TEXT DEFAULT 'running'
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_vault ON sessions(vault_path);
CREATE INDEX IF NOT EXISTS idx_subagent_session ON subagent_calls(session_id);
CREATE INDEX IF NOT EXISTS idx_subagent_type ON subagent_calls(agent_type);
`

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: single schema generation.
	// Files written by older tooling also report version 0, so reconcile them first.
	if version < 1 {
		if err := reconcileLegacy(db); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(entitySchema + usageSchema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// reconcileLegacy brings an index written by an older generation in line
// with the current one. Entity tables keyed by surrogate ids are dropped
// (rebuild regenerates them); telemetry tables are kept and gain the
// columns they lack.
func reconcileLegacy(db *sql.DB) error {
	entityCols, err := tableColumns(db, "entities")
	if err != nil {
		return err
	}
	refCols, err := tableColumns(db, "refs")
	if err != nil {
		return err
	}
	aliasCols, err := tableColumns(db, "entity_aliases")
	if err != nil {
		return err
	}
	if entityCols["id"] || refCols["entity_id"] || aliasCols["entity_id"] {
		if _, err := db.Exec(dropEntityTables); err != nil {
			return err
		}
	}

	sessionCols, err := tableColumns(db, "sessions")
	if err != nil {
		return err
	}
	if len(sessionCols) > 0 && !sessionCols["slug"] {
		if _, err := db.Exec("ALTER TABLE sessions ADD COLUMN slug TEXT"); err != nil {
			return err
		}
	}

	callCols, err := tableColumns(db, "subagent_calls")
	if err != nil {
		return err
	}
	if len(callCols) > 0 && !callCols["tool_use_id"] {
		if _, err := db.Exec("ALTER TABLE subagent_calls ADD COLUMN tool_use_id TEXT"); err != nil {
			return err
		}
	}

	return nil
}

const dropEntityTables = `
DROP TABLE IF EXISTS refs;
DROP TABLE IF EXISTS entity_aliases;
DROP TABLE IF EXISTS entities;
DROP TABLE IF EXISTS documents;
`

// ResetEntityTables drops and recreates the rebuildable tables
// (entities, entity_aliases, refs, documents). Telemetry is untouched.
func ResetEntityTables(q DBTX) error {
	if _, err := q.Exec(dropEntityTables); err != nil {
		return fmt.Errorf("failed to drop entity tables: %w", err)
	}
	if _, err := q.Exec(entitySchema); err != nil {
		return fmt.Errorf("failed to create entity tables: %w", err)
	}
	return nil
}

// tableColumns returns the column set of a table, empty if it does not exist.
func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
