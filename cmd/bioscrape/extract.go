// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CDCThjnk/bioscrape/internal/extract"
	"github.com/CDCThjnk/bioscrape/pkg/types"
)

const defaultModel = "claude-sonnet-4-5-20250929"

var extractCmd = &cobra.Command{
	Use:   "extract [biography.txt]",
	Short: "Extract structured profile fields from biography text",
	Long: `Extract parses biography text into a structured profile: age,
nationality, occupations, time in space, interests, degrees, and
education entries.

Single mode reads one biography from a file argument or piped standard
input and prints the profile as indented JSON. Batch mode (--batch)
walks the pages directory and writes one JSON Lines record per person;
a person whose extraction fails gets a {name, error} record and the
batch continues.

The regex backend needs no credentials. The claude backend sends each
biography to the Claude API and requires an API key from
.secrets/anthropic-api-key, the config file, or BIOSCRAPE_EXTRACTION_API_KEY.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().Bool("batch", false, "process every biography under pages-dir into a JSONL file")
	extractCmd.Flags().String("pages-dir", "pages", "base directory for scraped pages")
	extractCmd.Flags().String("output", "profiles.jsonl", "output JSONL path for batch mode")
	extractCmd.Flags().String("backend", "regex", "extraction backend: regex or claude")
	extractCmd.Flags().String("model", "", "Claude model identifier")
	extractCmd.Flags().String("api-key", "", "Claude API key (prefer .secrets/anthropic-api-key)")
	extractCmd.Flags().Int("max-retries", 0, "retry attempts for failed API calls (default 3)")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	backend, err := buildBackend(cmd)
	if err != nil {
		return err
	}

	batch, _ := cmd.Flags().GetBool("batch")
	if batch {
		return runExtractBatch(cmd, backend)
	}

	text, err := readBiography(args)
	if err != nil {
		return err
	}

	profile, err := backend.Extract(cmd.Context(), text)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(profile)
}

// readBiography reads the input text from the file argument or piped
// stdin. Invoking extract with neither is a usage error.
func readBiography(args []string) (string, error) {
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", args[0], err)
		}
		return string(data), nil
	}

	info, err := os.Stdin.Stat()
	if err == nil && info.Mode()&os.ModeCharDevice != 0 {
		return "", fmt.Errorf("no input: provide a biography file argument or pipe text on stdin")
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func runExtractBatch(cmd *cobra.Command, backend extract.Backend) error {
	cfg := extractionConfig(cmd)

	outPath := stringSetting(cmd, "output", "extraction.output_path", "profiles.jsonl")
	cfg.OutputPath = outPath

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer out.Close()

	summary, err := extract.ExtractAll(cmd.Context(), backend, cfg, out, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d extraction(s) failed", summary.Failed)
	}
	return nil
}

func extractionConfig(cmd *cobra.Command) types.ExtractionConfig {
	maxRetries, _ := cmd.Flags().GetInt("max-retries")
	if maxRetries == 0 {
		maxRetries = viper.GetInt("extraction.max_retries")
	}

	return types.ExtractionConfig{
		AIConfig: types.AIConfig{
			Model:      stringSetting(cmd, "model", "extraction.model", defaultModel),
			MaxRetries: maxRetries,
		},
		PagesDir: stringSetting(cmd, "pages-dir", "extraction.pages_dir", "pages"),
	}
}

// buildBackend selects the extraction backend from flags. The claude
// backend requires an API key from the secrets directory, the config
// file, or an explicit flag.
func buildBackend(cmd *cobra.Command) (extract.Backend, error) {
	name, _ := cmd.Flags().GetString("backend")
	switch name {
	case "regex", "":
		return extract.RegexBackend{}, nil
	case "claude":
		flagKey, _ := cmd.Flags().GetString("api-key")
		apiKey := secretDefault("anthropic-api-key", flagKey)
		if apiKey == "" {
			apiKey = viper.GetString("extraction.api_key")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("claude backend requires an API key: add .secrets/anthropic-api-key or set extraction.api_key")
		}
		return &extract.ClaudeBackend{
			APIKey: apiKey,
			Model:  stringSetting(cmd, "model", "extraction.model", defaultModel),
			Client: &http.Client{Timeout: defaultTimeout},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q: use regex or claude", name)
	}
}
