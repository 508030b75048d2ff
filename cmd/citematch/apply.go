package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/citematch/internal/match"
	"github.com/matsen/citematch/internal/reference"
)

var (
	applyMatchResult string
	applyDecisions   string
	applyOutput      string
)

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringVar(&applyMatchResult, "match-result", "", "Path to match_result.json (required)")
	applyCmd.Flags().StringVar(&applyDecisions, "decisions", "", "Path to a decisions JSON file (required)")
	applyCmd.Flags().StringVar(&applyOutput, "output", "", "Output path (default: overwrite --match-result)")
	applyCmd.MarkFlagRequired("match-result")
	applyCmd.MarkFlagRequired("decisions")
}

var applyCmd = &cobra.Command{
	Use:   "apply-decisions",
	Short: "Merge external match decisions into a match result",
	Long: `Merge a decisions file (from an LLM pass or a human review) into an
existing match_result.json, updating statuses and recomputing stats.

A decision naming a citekey that is not among the reference's candidates is
rejected and nothing is written.

Examples:
  citematch apply-decisions --match-result match_result.json --decisions llm_decisions.json
  citematch apply-decisions --match-result match_result.json --decisions review.json --output merged.json`,
	RunE: runApply,
}

func runApply(cmd *cobra.Command, args []string) error {
	resultData, err := os.ReadFile(applyMatchResult)
	if err != nil {
		exitWithError(ExitDataError, "reading match result: %v", err)
	}
	var result reference.MatchResult
	if err := json.Unmarshal(resultData, &result); err != nil {
		exitWithError(ExitDataError, "parsing match result: %v", err)
	}

	decisionData, err := os.ReadFile(applyDecisions)
	if err != nil {
		exitWithError(ExitDataError, "reading decisions: %v", err)
	}
	decisions, parseWarnings, err := match.ParseDecisions(decisionData)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	applyWarnings, err := match.ApplyDecisions(&result, decisions)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	// ApplyDecisions already records its own warnings in Meta.Warnings.
	result.Meta.Warnings = append(result.Meta.Warnings, parseWarnings...)
	warnings := append(parseWarnings, applyWarnings...)

	outputPath := applyOutput
	if outputPath == "" {
		outputPath = applyMatchResult
	}
	if err := writeJSONFile(outputPath, &result); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		fmt.Println(renderStatsTable(result.Stats))
		fmt.Println(outputPath)
		return nil
	}
	return outputJSON(map[string]interface{}{
		"output":   outputPath,
		"applied":  len(decisions),
		"warnings": warnings,
		"stats":    result.Stats,
	})
}
