// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CDCThjnk/bioscrape/internal/knowledge"
	"github.com/CDCThjnk/bioscrape/pkg/types"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the profile knowledge base (ingest, query, export)",
	Long: `Knowledge manages a local SQLite knowledge base built from extracted
profiles. Use subcommands to ingest a JSONL file, query people, or
export the base.`,
}

// --- ingest subcommand ---

var knowledgeIngestCmd = &cobra.Command{
	Use:   "ingest [profiles.jsonl]",
	Short: "Load an extraction JSONL file into the knowledge base",
	Long: `Ingest reads extraction records from a JSON Lines file, loads them into
a SQLite database with FTS5 indexing, and writes an export file. An
unchanged input file is skipped on subsequent runs unless --force is
given.`,
	RunE: runKnowledgeIngest,
}

func runKnowledgeIngest(cmd *cobra.Command, args []string) error {
	jsonlPath := "profiles.jsonl"
	if len(args) > 0 {
		jsonlPath = args[0]
	} else if v := viper.GetString("extraction.output_path"); v != "" {
		jsonlPath = v
	}
	force, _ := cmd.Flags().GetBool("force")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(cmd.Context(), jsonlPath, force, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d record(s) failed ingestion", summary.Failed)
	}
	return nil
}

// --- query subcommand ---

var knowledgeQueryCmd = &cobra.Command{
	Use:   "query [terms]",
	Short: "Query the knowledge base with full-text search and filters",
	Long: `Query searches stored profiles using FTS5 full-text search over names,
occupations, interests, degrees, and nationality, structured filters
(--nationality, --occupation), or a combination of both.`,
	RunE: runKnowledgeQuery,
}

func runKnowledgeQuery(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide search terms, --nationality, or --occupation")
	}

	results, err := store.Retrieve(cmd.Context(), opts)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatQueryOutput(results, jsonOutput)
}

func formatQueryOutput(results []knowledge.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-24s  %-14s  %-30s  %s\n",
		"Rank", "Name", "Nationality", "Occupations", "Age")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 84))

	for i, r := range results {
		nationality, occupations, age := "-", "-", "-"
		if r.Profile != nil {
			if r.Profile.Nationality != nil {
				nationality = *r.Profile.Nationality
			}
			if len(r.Profile.Occupations) > 0 {
				occupations = strings.Join(r.Profile.Occupations, ", ")
				if len(occupations) > 30 {
					occupations = occupations[:27] + "..."
				}
			}
			if r.Profile.Age != nil {
				age = fmt.Sprintf("%d", *r.Profile.Age)
			}
		} else if r.Error != "" {
			occupations = "(extraction failed)"
		}
		name := r.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-24s  %-14s  %-30s  %s\n",
			i+1, name, nationality, occupations, age)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- source subcommand ---

var knowledgeSourceCmd = &cobra.Command{
	Use:   "source [person]",
	Short: "Show the biography text a profile was extracted from",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("provide a person ID or name")
		}

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		text, err := store.Source(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

// --- export subcommand ---

var knowledgeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the knowledge base to YAML or JSON",
	Long: `Export writes the full knowledge base (or a filtered subset) to
knowledge/index/export.yaml or export.json. Supports the same filter
flags as query for partial exports.`,
	RunE: runKnowledgeExport,
}

func runKnowledgeExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)

	switch format {
	case "yaml", "":
		if err := store.ExportYAML(cmd.Context(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to knowledge/index/export.yaml")
	case "json":
		if err := store.ExportJSON(cmd.Context(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to knowledge/index/export.json")
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	return nil
}

// --- shared helpers ---

func openStore(cmd *cobra.Command) (*knowledge.Store, error) {
	maxResults, _ := cmd.Flags().GetInt("max-results")
	if maxResults == 0 {
		maxResults = viper.GetInt("knowledge_base.max_results")
	}

	cfg := types.KnowledgeBaseConfig{
		KnowledgeDir: stringSetting(cmd, "knowledge-dir", "knowledge_base.knowledge_dir", "knowledge"),
		MaxResults:   maxResults,
	}
	pagesDir := stringSetting(cmd, "pages-dir", "scrape.pages_dir", "pages")

	return knowledge.NewStore(cfg, pagesDir)
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) knowledge.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}

	nationality, _ := cmd.Flags().GetString("nationality")
	occupation, _ := cmd.Flags().GetString("occupation")
	limit, _ := cmd.Flags().GetInt("limit")

	return knowledge.QueryOptions{
		Query:       queryText,
		Nationality: nationality,
		Occupation:  occupation,
		MaxResults:  limit,
	}
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	knowledgeCmd.PersistentFlags().String("knowledge-dir", "knowledge", "base directory for the knowledge base (contains index/)")
	knowledgeCmd.PersistentFlags().String("pages-dir", "pages", "base directory for scraped pages (source biographies)")
	knowledgeCmd.PersistentFlags().Int("max-results", 20, "maximum number of query results")

	// Ingest flags.
	knowledgeIngestCmd.Flags().Bool("force", false, "re-ingest even when the input file is unchanged")

	// Query flags.
	knowledgeQueryCmd.Flags().String("query", "", "full-text search query")
	knowledgeQueryCmd.Flags().String("nationality", "", "filter by nationality")
	knowledgeQueryCmd.Flags().String("occupation", "", "filter by occupation")
	knowledgeQueryCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	knowledgeQueryCmd.Flags().Bool("json", false, "output results as JSON")

	// Export flags.
	knowledgeExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	knowledgeExportCmd.Flags().String("query", "", "full-text search filter for partial export")
	knowledgeExportCmd.Flags().String("nationality", "", "filter by nationality for partial export")
	knowledgeExportCmd.Flags().String("occupation", "", "filter by occupation for partial export")
	knowledgeExportCmd.Flags().Int("limit", 0, "maximum records to export (0 = all)")

	// Wire subcommands.
	knowledgeCmd.AddCommand(knowledgeIngestCmd)
	knowledgeCmd.AddCommand(knowledgeQueryCmd)
	knowledgeCmd.AddCommand(knowledgeSourceCmd)
	knowledgeCmd.AddCommand(knowledgeExportCmd)

	rootCmd.AddCommand(knowledgeCmd)
}
