// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the bioscrape CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CDCThjnk/bioscrape/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the bioscrape CLI.
var rootCmd = &cobra.Command{
	Use:   "bioscrape",
	Short: "Scrape Wikipedia biographies and extract structured profiles",
	Long: `bioscrape runs a small pipeline over a roster of named people: it
scrapes each person's Wikipedia biography page, converts the saved HTML
to plain biography text, extracts structured profile fields (age,
nationality, occupations, time in space, interests, degrees, education)
via regex heuristics or the Claude API, and loads the results into a
queryable knowledge base.

Each pipeline stage is a subcommand: scrape, convert, extract, and
knowledge. Stages are idempotent and resumable; existing output is
skipped unless forced.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./bioscrape.yaml or ~/.config/bioscrape/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("bioscrape")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "bioscrape"))
		}
	}

	viper.SetEnvPrefix("BIOSCRAPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// stringSetting resolves a string setting: explicit flag, then config
// file / environment, then fallback.
func stringSetting(cmd *cobra.Command, flag, viperKey, fallback string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" && cmd.Flags().Changed(flag) {
		return v
	}
	if v := viper.GetString(viperKey); v != "" {
		return v
	}
	v, _ := cmd.Flags().GetString(flag)
	if v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
