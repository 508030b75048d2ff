// Package pdfmeta extracts bibliographic identifiers from PDF files, for
// backfilling references that only point at a local PDF.
package pdfmeta

import (
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/matsen/citematch/internal/normalize"
)

// Identifiers found in a PDF.
type Identifiers struct {
	DOI   string `json:"doi,omitempty"`
	Arxiv string `json:"arxiv,omitempty"`
}

// maxScanPages limits the scan; identifiers sit on the first page of most
// papers.
const maxScanPages = 3

// ExtractIdentifiers scans the first pages of a PDF for a DOI and an arXiv
// id. Finding neither is not an error.
func ExtractIdentifiers(filePath string) (Identifiers, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return Identifiers{}, err
	}
	defer f.Close()

	pages := r.NumPage()
	if pages > maxScanPages {
		pages = maxScanPages
	}

	var ids Identifiers
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		if ids.DOI == "" {
			ids.DOI = normalize.NormalizeDOI(normalize.ExtractDOI(text))
		}
		if ids.Arxiv == "" {
			ids.Arxiv = normalize.ExtractArxivID(arxivHint(text))
		}
		if ids.DOI != "" && ids.Arxiv != "" {
			break
		}
	}
	return ids, nil
}

// arxivHint narrows the scan to lines that mention arXiv. Bare YYMM.NNNNN
// tokens elsewhere in a paper (figures, equation numbers) are too noisy to
// trust.
func arxivHint(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), "arxiv") {
			return line
		}
	}
	return ""
}
