package annotate

import (
	"strings"
	"testing"

	"github.com/matsen/citematch/internal/reference"
)

func annotateFixture() *reference.MatchResult {
	return &reference.MatchResult{
		Refs: []reference.ResolvedRef{
			{
				Reference: reference.Reference{RefID: "1"},
				Match:     reference.Match{Status: reference.StatusMatched, Citekey: "smith2020"},
				Candidates: []reference.Candidate{{
					Citekey: "smith2020",
					Title:   "A Theory of Everything",
					Year:    "2020",
					Authors: []string{"Smith, Jane"},
					DOI:     "10.1000/abc",
				}},
			},
			{
				Reference: reference.Reference{RefID: "2"},
				Match:     reference.Match{Status: reference.StatusMatched, Citekey: "adams2018"},
				Candidates: []reference.Candidate{{
					Citekey: "adams2018",
					Title:   "Early Results",
					Year:    "2018",
					Authors: []string{"Adams, Tom", "Baker, Ann"},
					URL:     "https://example.com/adams",
				}},
			},
			{
				Reference: reference.Reference{RefID: "3"},
				Match:     reference.Match{Status: reference.StatusNeedsLLM},
			},
		},
	}
}

const annotateDoc = `# Report

Deep learning changed everything 1; nothing was the same.

Combined evidence 1, 2; open question 3.

#### **Works cited**

1. Smith, J. (2020). A Theory of Everything.
   Journal of Theories.
2. Adams, T. and Baker, A. (2018). Early Results.
3. Unknown, X. (2019). Unmatched Entry.
`

func TestProcess_BodyCitations(t *testing.T) {
	out, err := Process(annotateDoc, annotateFixture())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !strings.Contains(out, "everything [[smith2020]];") {
		t.Errorf("expected single citation replaced, got:\n%s", out)
	}
	if !strings.Contains(out, "evidence [[smith2020]], [[adams2018]];") {
		t.Errorf("expected citation group replaced, got:\n%s", out)
	}
	// Ref 3 is not matched; the number stays.
	if !strings.Contains(out, "question 3.") {
		t.Errorf("expected unmatched citation untouched, got:\n%s", out)
	}
}

func TestProcess_WorksCitedMarkers(t *testing.T) {
	out, err := Process(annotateDoc, annotateFixture())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// The marker lands on the last line of the entry, which may be a
	// continuation line.
	if !strings.Contains(out, "Journal of Theories. [[smith2020]]") {
		t.Errorf("expected marker on entry continuation line, got:\n%s", out)
	}
	if !strings.Contains(out, "Early Results. [[adams2018]]") {
		t.Errorf("expected marker on adams entry, got:\n%s", out)
	}
	if strings.Contains(out, "Unmatched Entry. [[") {
		t.Errorf("unmatched entry must not get a marker, got:\n%s", out)
	}
}

func TestProcess_ReferenceSection(t *testing.T) {
	out, err := Process(annotateDoc, annotateFixture())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	refIdx := strings.Index(out, "#### **Reference**")
	worksIdx := strings.Index(out, WorksCitedHeading)
	if refIdx < 0 || worksIdx < 0 || refIdx > worksIdx {
		t.Fatalf("expected reference section before works cited, got:\n%s", out)
	}

	adams := strings.Index(out, "- Adams, T. and Baker, A. (2018) 'Early Results'. Available at: https://example.com/adams. [[adams2018]]")
	smith := strings.Index(out, "- Smith, J. (2020) 'A Theory of Everything'. doi: 10.1000/abc. [[smith2020]]")
	if adams < 0 || smith < 0 {
		t.Fatalf("expected formatted entries, got:\n%s", out)
	}
	if adams > smith {
		t.Error("expected alphabetical author ordering (Adams before Smith)")
	}
}

func TestProcess_MissingHeadingFatal(t *testing.T) {
	if _, err := Process("# Report\n\nNo works cited here.\n", annotateFixture()); err == nil {
		t.Fatal("expected error for missing works cited heading")
	}
}

func TestProcess_NoDuplicateMarkers(t *testing.T) {
	once, err := Process(annotateDoc, annotateFixture())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Re-processing a document that already carries markers must not
	// append them again.
	twice, err := Process(once, annotateFixture())
	if err != nil {
		t.Fatalf("Process (second pass): %v", err)
	}
	if strings.Contains(twice, "[[smith2020]] [[smith2020]]") {
		t.Errorf("marker duplicated:\n%s", twice)
	}
}

func TestFormatAuthorsHarvard(t *testing.T) {
	tests := []struct {
		name     string
		authors  []string
		wantText string
		wantSort string
	}{
		{"single", []string{"Smith, Jane"}, "Smith, J.", "smith"},
		{"two", []string{"Smith, Jane", "Doe, John"}, "Smith, J. and Doe, J.", "smith"},
		{"three", []string{"Smith, Jane", "Doe, John", "Roe, Rae"}, "Smith, J. et al.", "smith"},
		{"no comma", []string{"Jane Smith"}, "Smith, J.", "smith"},
		{"hyphenated given", []string{"Lee, Mei-Ling"}, "Lee, M.L.", "lee"},
		{"family only", []string{"Aristotle"}, "Aristotle", "aristotle"},
		{"empty", nil, "Anon.", "anon."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, sortKey := formatAuthorsHarvard(tt.authors)
			if text != tt.wantText || sortKey != tt.wantSort {
				t.Errorf("got (%q, %q), want (%q, %q)", text, sortKey, tt.wantText, tt.wantSort)
			}
		})
	}
}

func TestFamilyAndInitials(t *testing.T) {
	family, initials := familyAndInitials("van der Berg, Hans-Peter")
	if family != "van der Berg" || initials != "H.P." {
		t.Errorf("got (%q, %q)", family, initials)
	}
}
