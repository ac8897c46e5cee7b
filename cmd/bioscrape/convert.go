// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CDCThjnk/bioscrape/internal/convert"
	"github.com/CDCThjnk/bioscrape/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert scraped Wikipedia HTML into plain biography text",
	Long: `Convert walks the pages directory and renders each saved article as
biography.txt: the page heading, the infobox as "Label: value" lines,
and the article body as prose and bullets. Pages whose biography is
already up to date are skipped unless --force is given.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().String("pages-dir", "pages", "base directory for scraped pages")
	convertCmd.Flags().Bool("force", false, "re-convert pages with up-to-date output")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	cfg := types.ConvertConfig{
		PagesDir: stringSetting(cmd, "pages-dir", "convert.pages_dir", "pages"),
		Force:    force,
	}

	result, err := convert.ConvertAll(cfg, os.Stdout)
	if err != nil {
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d page(s) failed conversion", result.Failed)
	}
	return nil
}
