package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/citematch/internal/annotate"
	"github.com/matsen/citematch/internal/reference"
)

var (
	annotateDoc         string
	annotateMatchResult string
	annotateOutput      string
)

func init() {
	rootCmd.AddCommand(annotateCmd)

	annotateCmd.Flags().StringVar(&annotateDoc, "doc", "", "Path to the Markdown document (required)")
	annotateCmd.Flags().StringVar(&annotateMatchResult, "match-result", "", "Path to match_result.json (required)")
	annotateCmd.Flags().StringVar(&annotateOutput, "output", "", "Output path (default: <doc>_processed.md)")
	annotateCmd.MarkFlagRequired("doc")
	annotateCmd.MarkFlagRequired("match-result")
}

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Rewrite a Markdown document with [[citekey]] links",
	Long: `Rewrite numeric citations in a Markdown document as [[citekey]] links
using a completed match result, tag matched works-cited entries, and
append a Harvard-style reference section.

The document must contain a '` + annotate.WorksCitedHeading + `' heading.

Examples:
  citematch annotate --doc report.md --match-result match_result.json
  citematch annotate --doc report.md --match-result match_result.json --output report_linked.md`,
	RunE: runAnnotate,
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	docData, err := os.ReadFile(annotateDoc)
	if err != nil {
		exitWithError(ExitDataError, "reading document: %v", err)
	}

	resultData, err := os.ReadFile(annotateMatchResult)
	if err != nil {
		exitWithError(ExitDataError, "reading match result: %v", err)
	}
	var result reference.MatchResult
	if err := json.Unmarshal(resultData, &result); err != nil {
		exitWithError(ExitDataError, "parsing match result: %v", err)
	}

	processed, err := annotate.Process(string(docData), &result)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	outputPath := annotateOutput
	if outputPath == "" {
		outputPath = processedPath(annotateDoc)
	}
	if err := os.WriteFile(outputPath, []byte(processed), 0644); err != nil {
		exitWithError(ExitError, "writing %s: %v", outputPath, err)
	}

	if humanOutput {
		fmt.Println(outputPath)
		return nil
	}
	return outputJSON(map[string]interface{}{
		"output":  outputPath,
		"matched": result.Stats.Matched,
		"total":   result.Stats.Total,
	})
}

// processedPath derives the default output path: report.md -> report_processed.md.
func processedPath(docPath string) string {
	ext := filepath.Ext(docPath)
	base := strings.TrimSuffix(docPath, ext)
	return base + "_processed" + ext
}
