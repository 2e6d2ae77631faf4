// Package catalog persists ingest runs, composed groups and
// representative embeddings so later runs can consult earlier ones.
package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const currentSchemaVersion = 1

const schemaV1 = `
CREATE TABLE runs (
	id          TEXT PRIMARY KEY,
	root        TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	bases       INTEGER NOT NULL DEFAULT 0,
	sidecars    INTEGER NOT NULL DEFAULT 0,
	cancelled   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE groups (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	main_path   TEXT NOT NULL,
	connections INTEGER NOT NULL,
	title       TEXT NOT NULL,
	keywords    TEXT NOT NULL,
	provider    TEXT NOT NULL,
	confidence  INTEGER NOT NULL,
	needs_review INTEGER NOT NULL
);
CREATE INDEX idx_groups_run ON groups(run_id);
CREATE INDEX idx_groups_review ON groups(needs_review);

CREATE TABLE embeddings (
	path       TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	vector     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Store is the on-disk catalog.
type Store struct {
	db *sql.DB
}

// Run is one ingest over a directory tree.
type Run struct {
	ID         string
	Root       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Bases      int
	Sidecars   int
	Cancelled  bool
}

// GroupRecord is the persisted summary of one composed group.
type GroupRecord struct {
	RunID       string
	MainPath    string
	Connections int
	Title       string
	Keywords    []string
	Provider    string
	Confidence  int
	NeedsReview bool
}

// StoredEmbedding is a representative's embedding kept across runs.
type StoredEmbedding struct {
	Path   string
	RunID  string
	Vector []float32
}

// Open opens or creates the catalog at path and migrates its schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	version, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if _, err := tx.Exec(schemaV1); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) schemaVersion() (int, error) {
	if _, err := s.db.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
		return 0, fmt.Errorf("failed to ensure schema_version: %w", err)
	}
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// BeginRun records the start of an ingest and returns its identifier.
func (s *Store) BeginRun(root string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Root:      root,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		"INSERT INTO runs (id, root, started_at) VALUES (?, ?, ?)",
		run.ID, run.Root, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// FinishRun closes out a run with its final counters.
func (s *Store) FinishRun(runID string, bases, sidecars int, cancelled bool) error {
	_, err := s.db.Exec(
		"UPDATE runs SET finished_at = ?, bases = ?, sidecars = ?, cancelled = ? WHERE id = ?",
		time.Now().UTC(), bases, sidecars, boolToInt(cancelled), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// SaveGroup persists one composed group summary.
func (s *Store) SaveGroup(g *GroupRecord) error {
	keywords, err := json.Marshal(g.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO groups (run_id, main_path, connections, title, keywords, provider, confidence, needs_review)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.RunID, g.MainPath, g.Connections, g.Title, string(keywords),
		g.Provider, g.Confidence, boolToInt(g.NeedsReview),
	)
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

// GroupsForRun returns a run's groups ordered by connection count.
func (s *Store) GroupsForRun(runID string) ([]GroupRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, main_path, connections, title, keywords, provider, confidence, needs_review
		 FROM groups WHERE run_id = ? ORDER BY connections DESC, main_path`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var out []GroupRecord
	for rows.Next() {
		var g GroupRecord
		var keywords string
		var review int
		if err := rows.Scan(&g.RunID, &g.MainPath, &g.Connections, &g.Title, &keywords, &g.Provider, &g.Confidence, &review); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &g.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords: %w", err)
		}
		g.NeedsReview = review != 0
		out = append(out, g)
	}
	return out, rows.Err()
}

// SaveEmbedding upserts a representative's embedding.
func (s *Store) SaveEmbedding(e *StoredEmbedding) error {
	vector, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO embeddings (path, run_id, vector, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET run_id = excluded.run_id, vector = excluded.vector, updated_at = excluded.updated_at`,
		e.Path, e.RunID, string(vector), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	return nil
}

// Embeddings returns every stored embedding.
func (s *Store) Embeddings() ([]StoredEmbedding, error) {
	rows, err := s.db.Query("SELECT path, run_id, vector FROM embeddings ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var out []StoredEmbedding
	for rows.Next() {
		var e StoredEmbedding
		var vector string
		if err := rows.Scan(&e.Path, &e.RunID, &vector); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(vector), &e.Vector); err != nil {
			return nil, fmt.Errorf("failed to decode vector: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
