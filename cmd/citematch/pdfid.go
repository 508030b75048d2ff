package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/citematch/internal/pdfmeta"
)

func init() {
	rootCmd.AddCommand(pdfIDCmd)
}

var pdfIDCmd = &cobra.Command{
	Use:   "pdf-id <file.pdf>",
	Short: "Extract DOI and arXiv id from a PDF",
	Long: `Scan the first pages of a PDF for a DOI and an arXiv identifier.

Examples:
  citematch pdf-id paper.pdf
  citematch pdf-id paper.pdf --human`,
	Args: cobra.ExactArgs(1),
	RunE: runPDFID,
}

func runPDFID(cmd *cobra.Command, args []string) error {
	ids, err := pdfmeta.ExtractIdentifiers(args[0])
	if err != nil {
		exitWithError(ExitDataError, "reading %s: %v", args[0], err)
	}

	if humanOutput {
		if ids.DOI != "" {
			fmt.Printf("doi:   %s\n", ids.DOI)
		}
		if ids.Arxiv != "" {
			fmt.Printf("arxiv: %s\n", ids.Arxiv)
		}
		if ids.DOI == "" && ids.Arxiv == "" {
			fmt.Println("no identifiers found")
		}
		return nil
	}
	return outputJSON(ids)
}
