package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CDCThjnk/bioscrape/pkg/types"
)

// failNTimesBackend fails the first N calls, then delegates to the regex backend.
type failNTimesBackend struct {
	failures  int
	callCount int
}

func (f *failNTimesBackend) Extract(ctx context.Context, text string) (*types.Profile, error) {
	f.callCount++
	if f.callCount <= f.failures {
		return nil, fmt.Errorf("transient error (call %d)", f.callCount)
	}
	return RegexBackend{}.Extract(ctx, text)
}

// alwaysFailBackend fails every call.
type alwaysFailBackend struct{}

func (alwaysFailBackend) Extract(context.Context, string) (*types.Profile, error) {
	return nil, fmt.Errorf("backend unavailable")
}

func writePerson(t *testing.T, pagesDir, id, bio string, meta *types.ScrapeMeta) {
	t.Helper()
	dir := filepath.Join(pagesDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if bio != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "biography.txt"), []byte(bio), 0o644))
	}
	if meta != nil {
		data, err := json.Marshal(meta)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o644))
	}
}

func TestExtractAll_WritesOneRecordPerPerson(t *testing.T) {
	pagesDir := t.TempDir()
	writePerson(t, pagesDir, "Sergey_Revin", revinBio, &types.ScrapeMeta{NormalizedName: "Sergey Revin"})
	writePerson(t, pagesDir, "Jane_Doe", "- Nationality: Canadian\n", nil)

	var out, progress bytes.Buffer
	summary, err := ExtractAll(context.Background(), RegexBackend{},
		types.ExtractionConfig{PagesDir: pagesDir}, &out, &progress)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Extracted)
	assert.False(t, summary.HasFailures())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	// Directories are processed in sorted order.
	var first, second types.Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "Jane Doe", first.Name)
	assert.Equal(t, "Sergey Revin", second.Name)
	require.NotNil(t, second.Profile)
	assert.Equal(t, []string{"Cosmonaut", "Lieutenant Colonel", "Russian Air Force"}, second.Profile.Occupations)
}

func TestExtractAll_SkipsDirsWithoutBiography(t *testing.T) {
	pagesDir := t.TempDir()
	writePerson(t, pagesDir, "No_Page", "", &types.ScrapeMeta{Status: types.ScrapeSearchFailed})
	writePerson(t, pagesDir, "Has_Page", "- Nationality: French\n", nil)

	var out, progress bytes.Buffer
	summary, err := ExtractAll(context.Background(), RegexBackend{},
		types.ExtractionConfig{PagesDir: pagesDir}, &out, &progress)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Extracted)
	assert.Equal(t, 1, summary.Skipped)
}

func TestExtractAll_FailureEmitsErrorRecordAndContinues(t *testing.T) {
	pagesDir := t.TempDir()
	writePerson(t, pagesDir, "A_Person", "- Nationality: German\n", nil)
	writePerson(t, pagesDir, "B_Person", "- Nationality: Dutch\n", nil)

	var out, progress bytes.Buffer
	cfg := types.ExtractionConfig{PagesDir: pagesDir}
	cfg.MaxRetries = 1

	summary, err := ExtractAll(context.Background(), alwaysFailBackend{}, cfg, &out, &progress)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Failed)
	assert.True(t, summary.HasFailures())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var rec types.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.NotEmpty(t, rec.Name)
		assert.Contains(t, rec.Error, "backend unavailable")
		assert.Nil(t, rec.Profile)
	}
}

// brokenWriter fails every write, simulating a full disk.
type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, fmt.Errorf("disk full")
}

func TestExtractAll_ErrorRecordWriteFailureAborts(t *testing.T) {
	pagesDir := t.TempDir()
	writePerson(t, pagesDir, "A_Person", "- Nationality: German\n", nil)

	var progress bytes.Buffer
	cfg := types.ExtractionConfig{PagesDir: pagesDir}
	cfg.MaxRetries = 1

	_, err := ExtractAll(context.Background(), alwaysFailBackend{}, cfg, brokenWriter{}, &progress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestExtractWithRetry_TransientFailureRecovers(t *testing.T) {
	backend := &failNTimesBackend{failures: 2}
	profile, err := extractWithRetry(context.Background(), backend, "- Nationality: Russian\n", 3)
	require.NoError(t, err)
	require.NotNil(t, profile.Nationality)
	assert.Equal(t, "Russian", *profile.Nationality)
	assert.Equal(t, 3, backend.callCount)
}

func TestExtractWithRetry_Exhausted(t *testing.T) {
	backend := &failNTimesBackend{failures: 10}
	_, err := extractWithRetry(context.Background(), backend, "text", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
}

// --- ClaudeBackend ---

func TestClaudeBackend_Extract(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req claudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "Sergey Revin")

		resp := claudeResponse{Content: []claudeContent{{
			Type: "text",
			Text: `{"degrees": null, "education": [], "occupations": ["Cosmonaut"], "time_in_space": "124 days", "interests": ["tourism"], "nationality": "Russian", "age": 59}`,
		}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	backend := &ClaudeBackend{APIKey: "test-key", Model: "test-model", Client: ts.Client()}
	profile, err := backend.Extract(context.Background(), "Sergey Revin was a cosmonaut.")
	require.NoError(t, err)

	// Explicit nulls from the model are restored to empty lists.
	assert.NotNil(t, profile.Degrees)
	assert.Empty(t, profile.Degrees)
	assert.Equal(t, []string{"Cosmonaut"}, profile.Occupations)
	require.NotNil(t, profile.Age)
	assert.Equal(t, 59, *profile.Age)
}

func TestClaudeBackend_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	backend := &ClaudeBackend{APIKey: "k", Model: "m", Client: ts.Client()}
	_, err := backend.Extract(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
