// Package scrape locates and downloads Wikipedia biography pages for a
// roster of people. For each person it tries the direct article first,
// detects disambiguation pages, and falls back to the Wikipedia Search
// API. Pages and lookup metadata are persisted under pagesDir/<ID>/.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/CDCThjnk/bioscrape/internal/httputil"
	"github.com/CDCThjnk/bioscrape/pkg/types"
)

const (
	htmlFile = "index.html"
	metaFile = "meta.json"
)

// requestJitter is the maximum random delay before each fetch, spreading
// load across the concurrent workers. Tests set it to zero.
var requestJitter = 200 * time.Millisecond

// BatchResult holds the outcome of a batch scrape run.
type BatchResult struct {
	Scraped int
	Skipped int
	Failed  int
}

// Total returns the total number of people processed.
func (r BatchResult) Total() int {
	return r.Scraped + r.Skipped + r.Failed
}

// HasFailures reports whether any people failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// fetched is one downloaded page with its redirect-resolved URL.
type fetched struct {
	status   int
	body     []byte
	finalURL string
}

// ScrapePerson locates and saves the Wikipedia page for one person. The
// lookup metadata is written to pagesDir/<ID>/meta.json in every case,
// including failures, so a batch can be audited afterwards. The skipped
// return value indicates the page already existed on disk.
func ScrapePerson(ctx context.Context, client *http.Client, person types.Person, cfg types.ScrapeConfig, w io.Writer) (skipped bool, err error) {
	personDir := filepath.Join(cfg.PagesDir, person.ID)
	htmlPath := filepath.Join(personDir, htmlFile)

	// Skip if the page already exists on disk.
	if _, err := os.Stat(htmlPath); err == nil {
		fmt.Fprintf(w, "skipped: %s (already exists)\n", person.ID)
		return true, nil
	}

	if err := os.MkdirAll(personDir, 0o755); err != nil {
		return false, fmt.Errorf("creating directory %s: %w", personDir, err)
	}

	meta := &types.ScrapeMeta{
		RawName:         person.RawName,
		NormalizedName:  person.Name,
		AttemptedTitles: []string{person.Name},
	}

	// 1) Try the direct article.
	directURL := PageURL(person.Name)
	meta.RequestedURL = directURL

	page, err := fetchPage(ctx, client, directURL, cfg)
	if err != nil {
		meta.Status = types.ScrapeHTTPFailed
		writeMeta(personDir, meta)
		return false, fmt.Errorf("fetching %s: %w", directURL, err)
	}
	fmt.Fprintf(w, "[%s] GET %s -> %d\n", person.ID, directURL, page.status)

	needFallback := true
	if page.status == http.StatusOK {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.body))
		if err != nil {
			meta.Status = types.ScrapeHTTPFailed
			writeMeta(personDir, meta)
			return false, fmt.Errorf("parsing %s: %w", directURL, err)
		}
		if !IsDisambiguation(doc) {
			needFallback = false
		} else {
			meta.Notes = append(meta.Notes, "disambiguation detected; using search fallback")
		}
	} else if page.status == http.StatusNotFound {
		meta.Notes = append(meta.Notes, "direct page 404; using search fallback")
	}

	// 2) Search API fallback.
	if needFallback {
		title, err := SearchBestTitle(ctx, client, person.Name, cfg)
		if err != nil {
			meta.Status = types.ScrapeSearchFailed
			meta.Notes = append(meta.Notes, err.Error())
			writeMeta(personDir, meta)
			return false, fmt.Errorf("searching for %q: %w", person.Name, err)
		}
		if title == "" {
			meta.Status = types.ScrapeSearchFailed
			meta.Notes = append(meta.Notes, "search returned no results")
			writeMeta(personDir, meta)
			return false, fmt.Errorf("no search result for %q", person.Name)
		}

		meta.AttemptedTitles = append(meta.AttemptedTitles, title)
		fallbackURL := PageURL(title)

		page, err = fetchPage(ctx, client, fallbackURL, cfg)
		if err != nil {
			meta.Status = types.ScrapeHTTPFailed
			writeMeta(personDir, meta)
			return false, fmt.Errorf("fetching %s: %w", fallbackURL, err)
		}
		fmt.Fprintf(w, "[%s] fallback %s -> %d\n", person.ID, fallbackURL, page.status)
	}

	if page.status != http.StatusOK {
		meta.Status = types.ScrapeHTTPFailed
		meta.HTTPStatus = page.status
		writeMeta(personDir, meta)
		return false, fmt.Errorf("HTTP %d for %q", page.status, person.Name)
	}

	meta.Status = types.ScrapeOK
	meta.HTTPStatus = page.status
	meta.FinalURL = page.finalURL

	if err := os.WriteFile(htmlPath, page.body, 0o644); err != nil {
		return false, fmt.Errorf("writing page for %s: %w", person.ID, err)
	}
	if err := writeMeta(personDir, meta); err != nil {
		return false, err
	}

	return false, nil
}

// ScrapeBatch fetches pages for all people with a bounded concurrent
// fan-out. Individual failures are counted and reported but never stop
// the batch.
func ScrapeBatch(ctx context.Context, client *http.Client, people []types.Person, cfg types.ScrapeConfig, w io.Writer) BatchResult {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	var (
		mu     sync.Mutex
		result BatchResult
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, person := range people {
		person := person
		g.Go(func() error {
			// Small jitter to spread load under concurrency.
			if requestJitter > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Duration(rand.Int63n(int64(requestJitter)))):
				}
			}

			wasSkipped, err := ScrapePerson(ctx, client, person, cfg, &lockedWriter{mu: &mu, w: w})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				fmt.Fprintf(w, "failed:  %s (%v)\n", person.ID, err)
				result.Failed++
			case wasSkipped:
				result.Skipped++
			default:
				result.Scraped++
			}
			return nil
		})
	}

	g.Wait()

	fmt.Fprintf(w, "\nBatch summary: %d scraped, %d skipped, %d failed (total: %d)\n",
		result.Scraped, result.Skipped, result.Failed, result.Total())
	return result
}

// lockedWriter serializes progress lines from concurrent workers.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// fetchPage downloads a URL with polite retries, following redirects.
func fetchPage(ctx context.Context, client *http.Client, pageURL string, cfg types.ScrapeConfig) (fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fetched{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, client, req, cfg.MaxRetries)
	if err != nil {
		return fetched{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetched{}, fmt.Errorf("reading body: %w", err)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return fetched{status: resp.StatusCode, body: body, finalURL: finalURL}, nil
}

// writeMeta persists the lookup metadata as indented JSON.
func writeMeta(personDir string, meta *types.ScrapeMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	path := filepath.Join(personDir, metaFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
