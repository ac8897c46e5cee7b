package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/CDCThjnk/bioscrape/pkg/types"
)

// biographyFile is the per-person plain-text biography produced by the
// convert stage.
const biographyFile = "biography.txt"

// Backend produces a structured profile from one biography text. The
// regex matcher and the Claude API implement this interface behind the
// same output contract, so tests can supply a mock.
type Backend interface {
	Extract(ctx context.Context, text string) (*types.Profile, error)
}

// RegexBackend is the pattern-matching backend. It is pure and never
// returns an error: unmatched fields degrade to null or empty lists.
type RegexBackend struct{}

// Extract implements Backend via ParseProfile.
func (RegexBackend) Extract(_ context.Context, text string) (*types.Profile, error) {
	return ParseProfile(text), nil
}

// BatchSummary holds counts from a batch extraction run.
type BatchSummary struct {
	Extracted int
	Skipped   int
	Failed    int
}

// Total returns the number of people processed.
func (s BatchSummary) Total() int {
	return s.Extracted + s.Skipped + s.Failed
}

// HasFailures reports whether any extractions failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// ExtractAll walks pagesDir, extracts a profile from each person's
// biography.txt, and streams JSON Lines records to out. A failed
// extraction writes a minimal {name, error} record and the batch
// continues; one bad biography never aborts the rest.
func ExtractAll(ctx context.Context, backend Backend, cfg types.ExtractionConfig, out io.Writer, w io.Writer) (BatchSummary, error) {
	entries, err := os.ReadDir(cfg.PagesDir)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("reading pages directory %s: %w", cfg.PagesDir, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Strings(dirs)

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	enc := json.NewEncoder(out)

	var summary BatchSummary
	for _, dir := range dirs {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		personDir := filepath.Join(cfg.PagesDir, dir)
		name := personName(personDir, dir)

		text, err := os.ReadFile(filepath.Join(personDir, biographyFile))
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintf(w, "skipped %s (no biography)\n", dir)
				summary.Skipped++
				continue
			}
			if werr := enc.Encode(types.Record{Name: name, Error: err.Error()}); werr != nil {
				return summary, fmt.Errorf("writing record for %s: %w", dir, werr)
			}
			fmt.Fprintf(w, "failed  %s: %v\n", dir, err)
			summary.Failed++
			continue
		}

		profile, err := extractWithRetry(ctx, backend, string(text), maxRetries)
		if err != nil {
			if werr := enc.Encode(types.Record{Name: name, Error: err.Error()}); werr != nil {
				return summary, fmt.Errorf("writing record for %s: %w", dir, werr)
			}
			fmt.Fprintf(w, "failed  %s: %v\n", dir, err)
			summary.Failed++
			continue
		}

		if err := enc.Encode(types.Record{Name: name, Profile: profile}); err != nil {
			return summary, fmt.Errorf("writing record for %s: %w", dir, err)
		}
		fmt.Fprintf(w, "extracted %s\n", dir)
		summary.Extracted++
	}

	fmt.Fprintf(w, "\nextracted: %d, skipped: %d, failed: %d\n",
		summary.Extracted, summary.Skipped, summary.Failed)

	return summary, nil
}

// personName resolves the display name for a person directory. It
// prefers the normalized name recorded by the scrape stage, then falls
// back to the directory name with underscores replaced.
func personName(personDir, dir string) string {
	data, err := os.ReadFile(filepath.Join(personDir, "meta.json"))
	if err == nil {
		var meta types.ScrapeMeta
		if json.Unmarshal(data, &meta) == nil && meta.NormalizedName != "" {
			return meta.NormalizedName
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(dir, "_", " "))
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// extractWithRetry calls the backend with exponential backoff.
func extractWithRetry(ctx context.Context, backend Backend, text string, maxRetries int) (*types.Profile, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		profile, err := backend.Extract(ctx, text)
		if err == nil {
			return profile, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}
