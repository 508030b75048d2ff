// Package reference defines the canonical domain types for reference
// resolution: the extracted references, per-reference match verdicts, and
// the top-level match result document.
package reference

// Match statuses.
const (
	StatusMatched     = "matched"
	StatusNeedsLLM    = "needs_llm"
	StatusNeedsReview = "needs_review"
	StatusUnmatched   = "unmatched"
)

// Match methods.
const (
	MethodDOI   = "doi"
	MethodArxiv = "arxiv"
	MethodURL   = "url"
	MethodTFIDF = "tfidf"
	MethodLLM   = "llm"
	MethodNone  = "none"
)

// Parsed holds the identifier and metadata guesses for one reference.
// Fields missing from the source document are back-filled from raw_text.
type Parsed struct {
	DOI         string `json:"doi,omitempty"`
	URL         string `json:"url,omitempty"`
	Arxiv       string `json:"arxiv,omitempty"`
	Year        string `json:"year,omitempty"`
	TitleGuess  string `json:"title_guess,omitempty"`
	AuthorGuess string `json:"author_guess,omitempty"`
}

// Reference is one citation entry from the source document. It is created
// once during ingestion and never mutated afterwards.
type Reference struct {
	RefID     string `json:"ref_id"`
	LineStart int    `json:"line_start"` // -1 if unknown
	LineEnd   int    `json:"line_end"`   // -1 if unknown
	RawText   string `json:"raw_text"`
	Parsed    Parsed `json:"parsed"`
}

// Attachment is one PDF attachment of a library record.
type Attachment struct {
	Title string `json:"title"`
	Path  string `json:"path"`
	URL   string `json:"url"`
}

// Candidate is a snapshot of a library record plus a method-dependent score,
// attached during resolution of one specific reference. Scores are not
// comparable across methods.
type Candidate struct {
	Citekey        string       `json:"citekey"`
	ItemKey        string       `json:"itemKey"`
	Score          float64      `json:"score"`
	Title          string       `json:"title"`
	Year           string       `json:"year,omitempty"`
	Authors        []string     `json:"authors"`
	DOI            string       `json:"doi,omitempty"`
	URL            string       `json:"url,omitempty"`
	Tags           []string     `json:"zotero_tags"`
	PDFAttachments []Attachment `json:"pdf_attachments"`
}

// Match is the resolution verdict for one reference.
type Match struct {
	Status     string  `json:"status"`
	Citekey    string  `json:"citekey,omitempty"`
	ItemKey    string  `json:"itemKey,omitempty"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// ResolvedRef pairs a reference with its verdict and the full candidate list
// so downstream decision-making has complete context.
type ResolvedRef struct {
	Reference
	Match      Match       `json:"match"`
	Candidates []Candidate `json:"candidates"`
}

// Meta records the provenance of a match result.
type Meta struct {
	DocPath               string   `json:"doc_path"`
	GeneratedAt           string   `json:"generated_at"`
	RunID                 string   `json:"run_id,omitempty"`
	ZoteroEndpoint        string   `json:"zotero_endpoint,omitempty"`
	LibraryCachePath      string   `json:"library_cache_path,omitempty"`
	LibraryItemCount      int      `json:"library_item_count"`
	LibraryTotalItemCount int      `json:"library_total_item_count"`
	Warnings              []string `json:"warnings"`
}

// Stats counts references per status.
type Stats struct {
	Total       int `json:"total"`
	Matched     int `json:"matched"`
	NeedsLLM    int `json:"needs_llm"`
	NeedsReview int `json:"needs_review"`
	Unmatched   int `json:"unmatched"`
}

// MatchResult is the top-level artifact produced by a resolution run.
type MatchResult struct {
	Meta  Meta          `json:"meta"`
	Refs  []ResolvedRef `json:"refs"`
	Stats Stats         `json:"stats"`
}

// ComputeStats tallies the current per-reference statuses. Stats are always
// recomputed from scratch, never incrementally updated.
func ComputeStats(refs []ResolvedRef) Stats {
	stats := Stats{Total: len(refs)}
	for _, r := range refs {
		switch r.Match.Status {
		case StatusMatched:
			stats.Matched++
		case StatusNeedsLLM:
			stats.NeedsLLM++
		case StatusNeedsReview:
			stats.NeedsReview++
		default:
			stats.Unmatched++
		}
	}
	return stats
}
