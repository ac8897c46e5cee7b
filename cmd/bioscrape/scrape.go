// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CDCThjnk/bioscrape/internal/roster"
	"github.com/CDCThjnk/bioscrape/internal/scrape"
	"github.com/CDCThjnk/bioscrape/pkg/types"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "bioscrape/0.1"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [roster.csv]",
	Short: "Download Wikipedia biography pages for a roster of people",
	Long: `Scrape reads a CSV roster of names, resolves each person to a
Wikipedia article (falling back to the search API on disambiguation or
404), and saves the page HTML plus a scrape metadata record under one
directory per person. People already scraped are skipped.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 30s)")
	scrapeCmd.Flags().String("pages-dir", "pages", "base directory for scraped pages")
	scrapeCmd.Flags().Int("concurrency", 0, "maximum in-flight page fetches (default 8)")
	scrapeCmd.Flags().Int("max-retries", 0, "retry attempts on 429/5xx responses (default 3)")
	scrapeCmd.Flags().String("user-agent", "", "User-Agent header (include a contact address)")

	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("provide the roster CSV path")
	}

	people, err := roster.Load(args[0])
	if err != nil {
		return err
	}
	if len(people) == 0 {
		return fmt.Errorf("roster %s contains no people", args[0])
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = viper.GetDuration("scrape.timeout")
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency == 0 {
		concurrency = viper.GetInt("scrape.concurrency")
	}
	maxRetries, _ := cmd.Flags().GetInt("max-retries")
	if maxRetries == 0 {
		maxRetries = viper.GetInt("scrape.max_retries")
	}

	userAgent := stringSetting(cmd, "user-agent", "scrape.user_agent", defaultUserAgent)
	if contact := secretDefault("wikipedia-contact-email", ""); contact != "" && userAgent == defaultUserAgent {
		userAgent = fmt.Sprintf("%s (contact: %s)", defaultUserAgent, contact)
	}

	cfg := types.ScrapeConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: userAgent,
		},
		PagesDir:    stringSetting(cmd, "pages-dir", "scrape.pages_dir", "pages"),
		Concurrency: concurrency,
		MaxRetries:  maxRetries,
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
	}

	result := scrape.ScrapeBatch(cmd.Context(), client, people, cfg, os.Stdout)
	if result.HasFailures() {
		return fmt.Errorf("%d page(s) failed scraping", result.Failed)
	}
	return nil
}
