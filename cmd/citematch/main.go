// Package main provides the citematch CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "citematch",
	Short: "Resolve extracted references against a Zotero library",
	Long: `citematch reconciles a document's extracted references against a Zotero
Better BibTeX library export.

Core workflow:
  - match            Resolve refs_extracted.json to library citekeys
  - apply-decisions  Merge external (LLM/human) decisions into a match result
  - annotate         Rewrite a Markdown document with [[citekey]] links
  - library sync     Fetch and cache the library export for offline runs
  - pdf-id           Extract DOI/arXiv id from a PDF

Each reference is matched by exact identifier (DOI, arXiv id, URL) first,
then by TF-IDF title similarity. Ambiguous cases are classified as
needs_llm or needs_review instead of being guessed silently.
All commands output JSON by default for AI agent integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}
