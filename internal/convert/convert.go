// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns saved Wikipedia HTML pages into plain biography
// text. The output keeps the infobox as "Label: value" bullet lines and
// the article body as prose and narrative bullets, which is the shape
// the extraction stage expects.
package convert

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/CDCThjnk/bioscrape/pkg/types"
)

const (
	htmlFile      = "index.html"
	biographyFile = "biography.txt"
)

// refMarkerRe matches inline citation markers like [1] or [a].
var refMarkerRe = regexp.MustCompile(`\[\w{1,3}\]`)

// spaceRunRe collapses runs of whitespace inside extracted text.
var spaceRunRe = regexp.MustCompile(`[ \t\x{00a0}]+`)

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int
}

// Total returns the total number of pages processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any pages failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// ConvertPage converts one person directory's index.html into
// biography.txt. Unless force is set, an output newer than the input is
// skipped.
func ConvertPage(personDir string, force bool, w io.Writer) (converted bool, err error) {
	id := filepath.Base(personDir)
	htmlPath := filepath.Join(personDir, htmlFile)
	outPath := filepath.Join(personDir, biographyFile)

	htmlInfo, err := os.Stat(htmlPath)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", htmlPath, err)
	}

	if !force {
		if outInfo, err := os.Stat(outPath); err == nil && !htmlInfo.ModTime().After(outInfo.ModTime()) {
			fmt.Fprintf(w, "skipped: %s (up to date)\n", id)
			return false, nil
		}
	}

	f, err := os.Open(htmlPath)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", htmlPath, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", htmlPath, err)
	}

	text := ExtractBiography(doc)
	if strings.TrimSpace(text) == "" {
		return false, fmt.Errorf("no article content in %s", htmlPath)
	}

	if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", outPath, err)
	}

	fmt.Fprintf(w, "converted: %s\n", id)
	return true, nil
}

// ConvertAll converts every person directory under pagesDir, printing
// per-page status to w and returning a summary. Directories without an
// index.html are skipped.
func ConvertAll(cfg types.ConvertConfig, w io.Writer) (BatchResult, error) {
	entries, err := os.ReadDir(cfg.PagesDir)
	if err != nil {
		return BatchResult{}, fmt.Errorf("reading pages directory %s: %w", cfg.PagesDir, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Strings(dirs)

	var result BatchResult
	for _, dir := range dirs {
		personDir := filepath.Join(cfg.PagesDir, dir)
		if _, err := os.Stat(filepath.Join(personDir, htmlFile)); os.IsNotExist(err) {
			fmt.Fprintf(w, "skipped: %s (no page)\n", dir)
			result.Skipped++
			continue
		}

		converted, err := ConvertPage(personDir, cfg.Force, w)
		switch {
		case err != nil:
			fmt.Fprintf(w, "failed:  %s (%v)\n", dir, err)
			result.Failed++
		case converted:
			result.Converted++
		default:
			result.Skipped++
		}
	}

	fmt.Fprintf(w, "\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		result.Converted, result.Skipped, result.Failed, result.Total())
	return result, nil
}

// ExtractBiography renders a parsed Wikipedia article as plain text:
// the heading, the infobox as "- Label: value" lines, then body
// paragraphs and list items.
func ExtractBiography(doc *goquery.Document) string {
	var b strings.Builder

	if title := strings.TrimSpace(doc.Find("h1#firstHeading").First().Text()); title != "" {
		b.WriteString(title)
		b.WriteString("\n\n")
	}

	// Infobox label/value rows.
	doc.Find("table.infobox tr").Each(func(_ int, row *goquery.Selection) {
		label := cleanText(row.Find("th").First().Text())
		value := cleanText(row.Find("td").First().Text())
		if label == "" || value == "" {
			return
		}
		fmt.Fprintf(&b, "- %s: %s\n", label, value)
	})
	if b.Len() > 0 {
		b.WriteString("\n")
	}

	// Article body: paragraphs and narrative list items in document order.
	doc.Find("#mw-content-text .mw-parser-output").First().
		Find("p, ul > li").Each(func(_ int, s *goquery.Selection) {
		// Skip anything inside the infobox or navigation tables.
		if s.ParentsFiltered("table").Length() > 0 {
			return
		}
		text := cleanText(s.Text())
		if text == "" {
			return
		}
		if s.Is("li") {
			fmt.Fprintf(&b, "- %s\n", text)
		} else {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	})

	return strings.TrimSpace(b.String()) + "\n"
}

// cleanText strips citation markers and collapses whitespace.
func cleanText(s string) string {
	s = refMarkerRe.ReplaceAllString(s, "")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
