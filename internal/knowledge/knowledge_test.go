package knowledge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/CDCThjnk/bioscrape/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Store, string) {
	t.Helper()
	tmpDir := t.TempDir()

	for _, dir := range []string{
		filepath.Join(tmpDir, "knowledge"),
		filepath.Join(tmpDir, "pages"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	cfg := types.KnowledgeBaseConfig{
		KnowledgeDir: filepath.Join(tmpDir, "knowledge"),
		MaxResults:   20,
	}
	store, err := NewStore(cfg, filepath.Join(tmpDir, "pages"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return store, tmpDir
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func sampleRecords() []types.Record {
	revin := types.NewProfile()
	revin.Age = intPtr(59)
	revin.Nationality = strPtr("Russian")
	revin.TimeInSpace = strPtr("124d 23h 51m")
	revin.Occupations = []string{"Engineer", "cosmonaut"}
	revin.Interests = []string{"mountain biking", "water skiing"}
	revin.Degrees = []string{"engineer-physicist (Moscow Institute of Electronic Technology, 1989)"}

	doe := types.NewProfile()
	doe.Nationality = strPtr("American")
	doe.Occupations = []string{"Chemist"}
	doe.Interests = []string{"sailing"}

	return []types.Record{
		{Name: "Sergey Revin", Profile: revin},
		{Name: "Jane Doe", Profile: doe},
		{Name: "Missing Person", Error: "claude API request failed"},
	}
}

// writeJSONL writes records as an extraction output file and returns
// its path.
func writeJSONL(t *testing.T, tmpDir string, records []types.Record) string {
	t.Helper()
	var b strings.Builder
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			t.Fatal(err)
		}
		b.Write(data)
		b.WriteString("\n")
	}
	path := filepath.Join(tmpDir, "profiles.jsonl")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ingestHelper writes the sample records and ingests them.
func ingestHelper(t *testing.T, store *Store, tmpDir string) string {
	t.Helper()
	path := writeJSONL(t, tmpDir, sampleRecords())
	var buf strings.Builder
	if _, err := store.Ingest(context.Background(), path, false, &buf); err != nil {
		t.Fatal(err)
	}
	return path
}

// --- schema tests ---

func TestNewStoreCreatesSchema(t *testing.T) {
	store, _ := testSetup(t)

	tables := []string{"people", "profiles", "profiles_fts", "ingest_status"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count == 0 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestNewStoreCreatesDBFile(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "knowledge", indexDir, dbFile)

	cfg := types.KnowledgeBaseConfig{KnowledgeDir: filepath.Join(tmpDir, "knowledge")}
	store, err := NewStore(cfg, filepath.Join(tmpDir, "pages"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file not created at %s", dbPath)
	}
}

// --- ingest tests ---

func TestIngest(t *testing.T) {
	store, tmpDir := testSetup(t)
	path := writeJSONL(t, tmpDir, sampleRecords())

	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), path, false, &buf)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if summary.Indexed != 3 {
		t.Errorf("Indexed = %d, want 3", summary.Indexed)
	}
	if summary.Failed != 0 {
		t.Errorf("Failed = %d, want 0; output: %s", summary.Failed, buf.String())
	}
}

func TestIngestStoresAllFields(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	results, err := store.Retrieve(context.Background(), QueryOptions{Nationality: "Russian"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	r := results[0]
	if r.Name != "Sergey Revin" {
		t.Errorf("Name = %q, want %q", r.Name, "Sergey Revin")
	}
	if r.Profile == nil {
		t.Fatal("Profile is nil")
	}
	if r.Profile.Age == nil || *r.Profile.Age != 59 {
		t.Errorf("Age = %v, want 59", r.Profile.Age)
	}
	if r.Profile.TimeInSpace == nil || *r.Profile.TimeInSpace != "124d 23h 51m" {
		t.Errorf("TimeInSpace = %v, want 124d 23h 51m", r.Profile.TimeInSpace)
	}
	if len(r.Profile.Occupations) != 2 || r.Profile.Occupations[0] != "Engineer" {
		t.Errorf("Occupations = %v, want [Engineer cosmonaut]", r.Profile.Occupations)
	}
	if len(r.Profile.Interests) != 2 || r.Profile.Interests[1] != "water skiing" {
		t.Errorf("Interests = %v, want [mountain biking water skiing]", r.Profile.Interests)
	}
	if len(r.Profile.Degrees) != 1 {
		t.Errorf("Degrees = %v, want 1 entry", r.Profile.Degrees)
	}
}

func TestIngestStoresErrorRecords(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	var errText string
	err := store.db.QueryRow(
		`SELECT error FROM people WHERE name = ?`, "Missing Person",
	).Scan(&errText)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(errText, "claude API request failed") {
		t.Errorf("error = %q, want claude failure message", errText)
	}

	// Error records get no profile row.
	var count int
	store.db.QueryRow(
		`SELECT count(*) FROM profiles WHERE person_id = ?`, "Missing_Person",
	).Scan(&count)
	if count != 0 {
		t.Errorf("profiles rows for error record = %d, want 0", count)
	}
}

func TestIngestWritesExportYAML(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	path := filepath.Join(tmpDir, "knowledge", indexDir, "export.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("export.yaml not written after ingestion")
	}
}

func TestIngestSkipsMalformedLines(t *testing.T) {
	store, tmpDir := testSetup(t)

	path := filepath.Join(tmpDir, "profiles.jsonl")
	content := `{"name": "Good Person", "degrees": [], "education": [], "occupations": [], "interests": []}
not json at all
{"degrees": []}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), path, false, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", summary.Indexed)
	}
	if summary.Failed != 2 {
		t.Errorf("Failed = %d, want 2 (bad JSON and nameless record); output: %s",
			summary.Failed, buf.String())
	}
}

// --- incremental update tests ---

func TestIngestSkipsUnchanged(t *testing.T) {
	store, tmpDir := testSetup(t)
	path := ingestHelper(t, store, tmpDir)

	// Second ingestion without modifying the file.
	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), path, false, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", summary.Skipped)
	}
	if summary.Indexed != 0 {
		t.Errorf("Indexed = %d, want 0", summary.Indexed)
	}
	if !strings.Contains(buf.String(), "skipped") {
		t.Errorf("output should contain 'skipped': %s", buf.String())
	}
}

func TestIngestForceReingests(t *testing.T) {
	store, tmpDir := testSetup(t)
	path := ingestHelper(t, store, tmpDir)

	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), path, true, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 3 {
		t.Errorf("Indexed = %d, want 3", summary.Indexed)
	}
}

func TestIngestReplacesChanged(t *testing.T) {
	store, tmpDir := testSetup(t)
	path := ingestHelper(t, store, tmpDir)

	// Rewrite the file with a single new record and a newer mod time.
	updated := types.NewProfile()
	updated.Nationality = strPtr("French")
	updated.Occupations = []string{"Pilot"}
	writeJSONL(t, tmpDir, []types.Record{{Name: "Nouvelle Personne", Profile: updated}})
	future := time.Now().Add(time.Second)
	os.Chtimes(path, future, future)

	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), path, false, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", summary.Indexed)
	}

	// Old records are gone; only the new one remains.
	results, err := store.Retrieve(context.Background(), QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (old records should be removed)", len(results))
	}
	if results[0].Name != "Nouvelle Personne" {
		t.Errorf("name = %q, want %q", results[0].Name, "Nouvelle Personne")
	}
}

func TestIngestSummaryOutput(t *testing.T) {
	store, tmpDir := testSetup(t)
	path := writeJSONL(t, tmpDir, sampleRecords())

	var buf strings.Builder
	if _, err := store.Ingest(context.Background(), path, false, &buf); err != nil {
		t.Fatal(err)
	}
	output := buf.String()

	if !strings.Contains(output, "indexed: 3") {
		t.Errorf("output should contain 'indexed: 3': %s", output)
	}
	if !strings.Contains(output, "failed: 0") {
		t.Errorf("output should contain 'failed: 0': %s", output)
	}
}

// --- full-text search tests ---

func TestRetrieveFullTextSearch(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	tests := []struct {
		name      string
		query     string
		wantCount int
		wantName  string
	}{
		{"occupation term", "cosmonaut", 1, "Sergey Revin"},
		{"interest term", "sailing", 1, "Jane Doe"},
		{"degree term", "physicist", 1, "Sergey Revin"},
		{"no match", "astrophysics xyzzy", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := store.Retrieve(context.Background(), QueryOptions{Query: tt.query})
			if err != nil {
				t.Fatal(err)
			}
			if len(results) != tt.wantCount {
				t.Fatalf("got %d results, want %d", len(results), tt.wantCount)
			}
			if tt.wantName != "" && results[0].Name != tt.wantName {
				t.Errorf("name = %q, want %q", results[0].Name, tt.wantName)
			}
		})
	}
}

func TestRetrieveRespectsMaxResults(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	results, err := store.Retrieve(context.Background(), QueryOptions{MaxResults: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) > 1 {
		t.Errorf("got %d results, want <= 1", len(results))
	}
}

// --- structured query tests ---

func TestRetrieveByNationality(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	tests := []struct {
		nationality string
		wantCount   int
	}{
		{"Russian", 1},
		{"russian", 1},
		{"American", 1},
		{"Martian", 0},
	}

	for _, tt := range tests {
		t.Run(tt.nationality, func(t *testing.T) {
			results, err := store.Retrieve(context.Background(), QueryOptions{Nationality: tt.nationality})
			if err != nil {
				t.Fatal(err)
			}
			if len(results) != tt.wantCount {
				t.Errorf("got %d results, want %d", len(results), tt.wantCount)
			}
		})
	}
}

func TestRetrieveByOccupation(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	results, err := store.Retrieve(context.Background(), QueryOptions{Occupation: "cosmonaut"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Name != "Sergey Revin" {
		t.Errorf("name = %q, want Sergey Revin", results[0].Name)
	}
}

func TestRetrieveCombinedQuery(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	results, err := store.Retrieve(context.Background(), QueryOptions{
		Query:       "skiing",
		Nationality: "Russian",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Name != "Sergey Revin" {
		t.Errorf("name = %q, want Sergey Revin", results[0].Name)
	}
}

func TestRetrieveUnfilteredIncludesErrorRecords(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	results, err := store.Retrieve(context.Background(), QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	// Structured queries sort by name.
	if results[0].Name != "Jane Doe" {
		t.Errorf("first result = %q, want Jane Doe", results[0].Name)
	}
	var foundError bool
	for _, r := range results {
		if r.Name == "Missing Person" {
			foundError = true
			if r.Error == "" {
				t.Error("error record missing error text")
			}
			if r.Profile != nil {
				t.Error("error record should have nil profile")
			}
		}
	}
	if !foundError {
		t.Error("error record not returned by unfiltered query")
	}
}

func TestQueryOptionsIsEmpty(t *testing.T) {
	if !(QueryOptions{}).IsEmpty() {
		t.Error("empty QueryOptions should report IsEmpty() = true")
	}
	if (QueryOptions{Nationality: "Russian"}).IsEmpty() {
		t.Error("options with a filter should report IsEmpty() = false")
	}
}

// --- source tests ---

func TestSource(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	bioDir := filepath.Join(tmpDir, "pages", "Sergey_Revin")
	if err := os.MkdirAll(bioDir, 0o755); err != nil {
		t.Fatal(err)
	}
	bio := "Sergey Revin\n\n- Nationality: Russian\n"
	if err := os.WriteFile(filepath.Join(bioDir, "biography.txt"), []byte(bio), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"Sergey_Revin", "Sergey Revin"} {
		text, err := store.Source(context.Background(), key)
		if err != nil {
			t.Fatalf("Source(%q): %v", key, err)
		}
		if !strings.Contains(text, "Nationality: Russian") {
			t.Errorf("source should contain the infobox line: %s", text)
		}
	}
}

func TestSourcePersonNotFound(t *testing.T) {
	store, _ := testSetup(t)

	_, err := store.Source(context.Background(), "nobody")
	if err == nil {
		t.Fatal("expected error for unknown person")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %q, want 'not found'", err.Error())
	}
}

func TestSourceBiographyMissing(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	// No biography file was written for Jane Doe.
	_, err := store.Source(context.Background(), "Jane_Doe")
	if err == nil {
		t.Fatal("expected error for missing biography")
	}
	if !strings.Contains(err.Error(), "biography.txt") {
		t.Errorf("error = %q, should reference the biography path", err.Error())
	}
}

// --- export tests ---

func TestExportYAML(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	if err := store.ExportYAML(context.Background(), QueryOptions{}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(tmpDir, "knowledge", indexDir, "export.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var entries []ExportEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}

func TestExportJSON(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	if err := store.ExportJSON(context.Background(), QueryOptions{}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(tmpDir, "knowledge", indexDir, "export.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var entries []ExportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}

func TestExportFilteredByNationality(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	if err := store.ExportJSON(context.Background(), QueryOptions{Nationality: "American"}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(tmpDir, "knowledge", indexDir, "export.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var entries []ExportEntry
	json.Unmarshal(data, &entries)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Name != "Jane Doe" {
		t.Errorf("name = %q, want Jane Doe", entries[0].Name)
	}
}

func TestExportHonorsMaxResults(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir)

	if err := store.ExportJSON(context.Background(), QueryOptions{MaxResults: 1}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(tmpDir, "knowledge", indexDir, "export.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var entries []ExportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1", len(entries))
	}
}

// --- IngestSummary ---

func TestIngestSummaryTotal(t *testing.T) {
	s := IngestSummary{Indexed: 2, Skipped: 3, Failed: 1}
	if s.Total() != 6 {
		t.Errorf("Total() = %d, want 6", s.Total())
	}
}

// --- personID ---

func TestPersonID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sergey Revin", "Sergey_Revin"},
		{"  Jane Doe  ", "Jane_Doe"},
		{"Single", "Single"},
	}
	for _, tt := range tests {
		if got := personID(tt.in); got != tt.want {
			t.Errorf("personID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
