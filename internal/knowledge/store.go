// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge persists extracted profiles and builds a retrieval
// index over them.
package knowledge

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CDCThjnk/bioscrape/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "bioscrape.db"
)

// Store manages the profile knowledge base SQLite database.
type Store struct {
	db           *sql.DB
	knowledgeDir string
	pagesDir     string
	maxResults   int
}

// NewStore opens or creates the knowledge base SQLite database at
// knowledgeDir/index/bioscrape.db, creating the schema if needed.
func NewStore(cfg types.KnowledgeBaseConfig, pagesDir string) (*Store, error) {
	dbDir := filepath.Join(cfg.KnowledgeDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{
		db:           db,
		knowledgeDir: cfg.KnowledgeDir,
		pagesDir:     pagesDir,
		maxResults:   maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS people (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			person_id TEXT NOT NULL UNIQUE REFERENCES people(id),
			age INTEGER,
			nationality TEXT,
			time_in_space TEXT,
			occupations TEXT,
			interests TEXT,
			degrees TEXT,
			education TEXT,
			search_text TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_nationality ON profiles(nationality)`,
		`CREATE TABLE IF NOT EXISTS ingest_status (
			source_file TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='profiles_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE profiles_fts USING fts5(search_text, content=profiles, content_rowid=rowid)`,
			`CREATE TRIGGER profiles_ai AFTER INSERT ON profiles BEGIN
				INSERT INTO profiles_fts(rowid, search_text) VALUES (new.rowid, new.search_text);
			END`,
			`CREATE TRIGGER profiles_ad AFTER DELETE ON profiles BEGIN
				INSERT INTO profiles_fts(profiles_fts, rowid, search_text) VALUES('delete', old.rowid, old.search_text);
			END`,
			`CREATE TRIGGER profiles_au AFTER UPDATE ON profiles BEGIN
				INSERT INTO profiles_fts(profiles_fts, rowid, search_text) VALUES('delete', old.rowid, old.search_text);
				INSERT INTO profiles_fts(rowid, search_text) VALUES (new.rowid, new.search_text);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// IngestSummary holds counts from a knowledge base ingest run.
type IngestSummary struct {
	Indexed int
	Skipped int
	Failed  int
}

// Total returns the number of records processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Skipped + s.Failed
}

// Ingest loads an extraction JSONL file into the database. An input
// whose modification time matches the last ingested one is skipped
// unless force is set; otherwise all records for the file are replaced.
// Records carrying an error and no profile are stored in people only.
// On success it refreshes export.yaml.
func (s *Store) Ingest(ctx context.Context, jsonlPath string, force bool, w io.Writer) (IngestSummary, error) {
	info, err := os.Stat(jsonlPath)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("stat %s: %w", jsonlPath, err)
	}
	modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

	var storedModTime string
	err = s.db.QueryRowContext(ctx,
		`SELECT file_mod_time FROM ingest_status WHERE source_file = ?`, jsonlPath,
	).Scan(&storedModTime)
	if err == nil && storedModTime == modTime && !force {
		fmt.Fprintf(w, "skipped %s (unchanged)\n", jsonlPath)
		return IngestSummary{Skipped: 1}, nil
	}

	f, err := os.Open(jsonlPath)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("opening %s: %w", jsonlPath, err)
	}
	defer f.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Replace prior contents wholesale; the JSONL is the source of truth.
	if _, err := tx.ExecContext(ctx, `DELETE FROM profiles`); err != nil {
		return IngestSummary{}, fmt.Errorf("clearing profiles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM people`); err != nil {
		return IngestSummary{}, fmt.Errorf("clearing people: %w", err)
	}

	var summary IngestSummary
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		var rec types.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			fmt.Fprintf(w, "failed  line %d: %v\n", line, err)
			summary.Failed++
			continue
		}

		if err := s.ingestRecord(ctx, tx, &rec); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", rec.Name, err)
			summary.Failed++
			continue
		}

		fmt.Fprintf(w, "indexed %s\n", rec.Name)
		summary.Indexed++
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("reading %s: %w", jsonlPath, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ingest_status (source_file, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(source_file) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		jsonlPath, modTime,
	)
	if err != nil {
		return summary, fmt.Errorf("updating ingest status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing: %w", err)
	}

	fmt.Fprintf(w, "\nindexed: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Skipped, summary.Failed)

	if summary.Indexed > 0 {
		if err := s.ExportYAML(ctx, QueryOptions{}); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}

	return summary, nil
}

func (s *Store) ingestRecord(ctx context.Context, tx *sql.Tx, rec *types.Record) error {
	if rec.Name == "" {
		return fmt.Errorf("record has no name")
	}
	id := personID(rec.Name)

	errText := sql.NullString{String: rec.Error, Valid: rec.Error != ""}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO people (id, name, error) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, error=excluded.error`,
		id, rec.Name, errText,
	); err != nil {
		return fmt.Errorf("upserting person: %w", err)
	}

	if rec.Profile == nil {
		return nil
	}
	p := rec.Profile

	occJSON, _ := json.Marshal(p.Occupations)
	intJSON, _ := json.Marshal(p.Interests)
	degJSON, _ := json.Marshal(p.Degrees)
	eduJSON, _ := json.Marshal(p.Education)

	_, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO profiles
			(person_id, age, nationality, time_in_space,
			 occupations, interests, degrees, education, search_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nullInt(p.Age), nullStr(p.Nationality),
		nullStr(p.TimeInSpace),
		string(occJSON), string(intJSON), string(degJSON), string(eduJSON),
		searchText(rec.Name, p),
	)
	if err != nil {
		return fmt.Errorf("inserting profile: %w", err)
	}
	return nil
}

// searchText builds the blob the FTS index covers: name, occupations,
// interests, degrees, and nationality.
func searchText(name string, p *types.Profile) string {
	parts := []string{name}
	parts = append(parts, p.Occupations...)
	parts = append(parts, p.Interests...)
	parts = append(parts, p.Degrees...)
	if p.Nationality != nil {
		parts = append(parts, *p.Nationality)
	}
	return strings.Join(parts, " ")
}

// personID derives a stable row key from a display name.
func personID(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
