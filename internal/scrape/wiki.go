// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/CDCThjnk/bioscrape/internal/httputil"
	"github.com/CDCThjnk/bioscrape/pkg/types"
)

// Base URLs for Wikipedia. Declared as vars so tests can substitute
// httptest servers.
var (
	wikiBase    = "https://en.wikipedia.org/wiki/"
	wikiAPIBase = "https://en.wikipedia.org/w/api.php"
)

// PageURL returns the direct article URL for a title, with spaces
// folded to underscores the way Wikipedia links them.
func PageURL(title string) string {
	return wikiBase + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

// IsDisambiguation reports whether a fetched page is a disambiguation
// page rather than an article: either a hatnote or a category link
// mentions "disambiguation".
func IsDisambiguation(doc *goquery.Document) bool {
	found := false
	doc.Find(".hatnote").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(s.Text()), "disambiguation") {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}
	doc.Find("#mw-normal-catlinks ul li a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(s.Text()), "disambiguation") {
			found = true
			return false
		}
		return true
	})
	return found
}

// PageTitle returns the article heading, or empty when absent.
func PageTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("h1#firstHeading").First().Text())
}

// searchResponse is the subset of the MediaWiki search API response we use.
type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

// SearchBestTitle queries the Wikipedia Search API and returns the top
// hit's title. An empty string with a nil error means the search ran
// but found nothing.
func SearchBestTitle(ctx context.Context, client *http.Client, query string, cfg types.ScrapeConfig) (string, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {"1"},
		"format":   {"json"},
		"utf8":     {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wikiAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, client, req, cfg.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("search API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API returned HTTP %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("parsing search response: %w", err)
	}

	if len(sr.Query.Search) == 0 {
		return "", nil
	}
	return strings.TrimSpace(sr.Query.Search[0].Title), nil
}
