package match

import (
	"math"
	"testing"

	"github.com/matsen/citematch/internal/library"
	"github.com/matsen/citematch/internal/reference"
)

func testIndex(records ...library.Record) *library.Index {
	return library.IndexRecords(records, len(records))
}

func TestResolve_UniqueDOI(t *testing.T) {
	idx := testIndex(library.Record{
		Citekey: "smith2020",
		ItemKey: "KEY1",
		Title:   "A Theory of Everything",
		DOI:     "10.1000/abc",
	})
	resolver := NewResolver(idx, DefaultParams())

	refs := resolver.Resolve([]reference.Reference{{
		RefID:  "1",
		Parsed: reference.Parsed{DOI: "https://doi.org/10.1000/ABC"},
	}})

	m := refs[0].Match
	if m.Status != reference.StatusMatched || m.Method != reference.MethodDOI {
		t.Fatalf("expected doi match, got %+v", m)
	}
	if m.Confidence != 0.99 {
		t.Errorf("expected confidence 0.99, got %f", m.Confidence)
	}
	if m.Citekey != "smith2020" || m.ItemKey != "KEY1" {
		t.Errorf("unexpected identity: %+v", m)
	}
	if len(refs[0].Candidates) != 1 || refs[0].Candidates[0].Score != 1.0 {
		t.Errorf("expected single score-1.0 candidate, got %v", refs[0].Candidates)
	}
}

func TestResolve_DOICollision(t *testing.T) {
	idx := testIndex(
		library.Record{Citekey: "a", DOI: "10.1/x", Title: "First"},
		library.Record{Citekey: "b", DOI: "10.1/x", Title: "Second"},
	)
	resolver := NewResolver(idx, DefaultParams())

	refs := resolver.Resolve([]reference.Reference{{
		Parsed: reference.Parsed{DOI: "10.1/x"},
	}})

	m := refs[0].Match
	if m.Status != reference.StatusNeedsLLM {
		t.Errorf("expected needs_llm for collision, got %q", m.Status)
	}
	if m.Confidence != 0.80 {
		t.Errorf("expected confidence 0.80, got %f", m.Confidence)
	}
	if m.Citekey != "" {
		t.Errorf("collision must not pick a citekey, got %q", m.Citekey)
	}
	if len(refs[0].Candidates) != 2 {
		t.Fatalf("expected both colliding records as candidates, got %d", len(refs[0].Candidates))
	}
	for _, c := range refs[0].Candidates {
		if c.Score != 1.0 {
			t.Errorf("expected same-score candidates, got %f for %q", c.Score, c.Citekey)
		}
	}
}

func TestResolve_IdentifierPriority(t *testing.T) {
	idx := testIndex(
		library.Record{Citekey: "bydoi", DOI: "10.1/doi", Title: "Via DOI"},
		library.Record{Citekey: "byarxiv", ArxivID: "2101.00001", Title: "Via Arxiv"},
		library.Record{Citekey: "byurl", URL: "https://example.com/p", Title: "Via URL"},
	)
	resolver := NewResolver(idx, DefaultParams())

	refs := resolver.Resolve([]reference.Reference{
		{Parsed: reference.Parsed{DOI: "10.1/doi", Arxiv: "2101.00001", URL: "https://example.com/p"}},
		{Parsed: reference.Parsed{Arxiv: "arXiv:2101.00001v3", URL: "https://example.com/p"}},
		{Parsed: reference.Parsed{URL: "http://www.example.com/p/"}},
	})

	if got := refs[0].Match.Method; got != reference.MethodDOI {
		t.Errorf("DOI should win over arXiv and URL, got %q", got)
	}
	if got := refs[1].Match.Method; got != reference.MethodArxiv {
		t.Errorf("arXiv should win over URL, got %q", got)
	}
	if refs[1].Match.Citekey != "byarxiv" {
		t.Errorf("expected normalized arXiv id to match, got %+v", refs[1].Match)
	}
	if refs[2].Match.Method != reference.MethodURL || refs[2].Match.Citekey != "byurl" {
		t.Errorf("expected normalized URL to match, got %+v", refs[2].Match)
	}
}

func TestResolve_LexicalAutoMatch(t *testing.T) {
	idx := testIndex(
		library.Record{Citekey: "resnet2015", ItemKey: "R1", Title: "Deep Residual Learning for Image Recognition"},
		library.Record{Citekey: "qe2019", Title: "Quantum Entanglement Networks"},
	)
	resolver := NewResolver(idx, DefaultParams())

	refs := resolver.Resolve([]reference.Reference{{
		Parsed: reference.Parsed{TitleGuess: "Deep Residual Learning for Image Recognition"},
	}})

	m := refs[0].Match
	if m.Status != reference.StatusMatched || m.Method != reference.MethodTFIDF {
		t.Fatalf("expected tfidf auto-match, got %+v", m)
	}
	if m.Citekey != "resnet2015" {
		t.Errorf("expected resnet2015, got %q", m.Citekey)
	}
	if math.Abs(m.Confidence-1.0) > 1e-9 {
		t.Errorf("expected exact-title confidence ~1.0, got %f", m.Confidence)
	}
}

func TestResolve_RawTextQueryFallback(t *testing.T) {
	idx := testIndex(
		library.Record{Citekey: "resnet2015", Title: "Deep Residual Learning for Image Recognition"},
	)
	resolver := NewResolver(idx, DefaultParams())

	refs := resolver.Resolve([]reference.Reference{{
		RawText: "He, K. et al. Deep Residual Learning for Image Recognition. CVPR.",
	}})

	if len(refs[0].Candidates) == 0 {
		t.Fatal("expected candidates from raw-text query")
	}
	if refs[0].Candidates[0].Citekey != "resnet2015" {
		t.Errorf("expected resnet2015 first, got %q", refs[0].Candidates[0].Citekey)
	}
}

func TestResolve_EmptyLibraryUnmatched(t *testing.T) {
	resolver := NewResolver(testIndex(), DefaultParams())

	refs := resolver.Resolve([]reference.Reference{{
		RawText: "Some reference with no identifiers",
	}})

	m := refs[0].Match
	if m.Status != reference.StatusUnmatched || m.Method != reference.MethodNone {
		t.Errorf("expected unmatched/none, got %+v", m)
	}
	if len(refs[0].Candidates) != 0 {
		t.Errorf("expected no candidates, got %v", refs[0].Candidates)
	}
	if refs[0].Candidates == nil {
		t.Error("candidates must be an empty list, not nil")
	}
}

func TestClassify(t *testing.T) {
	params := DefaultParams()

	tests := []struct {
		name       string
		top1, top2 float64
		want       string
	}{
		{"high score wide gap", 0.95, 0.50, reference.StatusMatched},
		{"high score narrow gap", 0.95, 0.91, reference.StatusNeedsLLM},
		{"exactly at auto threshold", 0.90, 0.0, reference.StatusMatched},
		{"mid score", 0.40, 0.10, reference.StatusNeedsLLM},
		{"low score", 0.10, 0.0, reference.StatusNeedsReview},
		{"boosted above one", 1.04, 0.20, reference.StatusMatched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.top1, tt.top2, params); got != tt.want {
				t.Errorf("classify(%f, %f) = %q, want %q", tt.top1, tt.top2, got, tt.want)
			}
		})
	}
}

func TestApplyBoosts(t *testing.T) {
	params := DefaultParams()
	rec := library.Record{
		Year:    "2019",
		Authors: []string{"Smith, Jane", "Doe, John"},
	}

	tests := []struct {
		name   string
		parsed reference.Parsed
		base   float64
		want   float64
	}{
		{"no corroboration", reference.Parsed{}, 0.5, 0.5},
		{"year match", reference.Parsed{Year: "2019"}, 0.5, 0.53},
		{"year mismatch", reference.Parsed{Year: "2020"}, 0.5, 0.5},
		{"author substring", reference.Parsed{AuthorGuess: "smith"}, 0.5, 0.53},
		{"author case-insensitive", reference.Parsed{AuthorGuess: " Doe, John "}, 0.5, 0.53},
		{"author absent", reference.Parsed{AuthorGuess: "garcia"}, 0.5, 0.5},
		{"both boosts exceed one", reference.Parsed{Year: "2019", AuthorGuess: "smith"}, 0.98, 1.04},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyBoosts(tt.base, tt.parsed, rec, params)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("applyBoosts = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestSortCandidates_TieBreak(t *testing.T) {
	candidates := []reference.Candidate{
		{Citekey: "alpha", Score: 0.5},
		{Citekey: "gamma", Score: 0.5},
		{Citekey: "beta", Score: 0.7},
	}
	sortCandidates(candidates)

	want := []string{"beta", "gamma", "alpha"}
	for i, w := range want {
		if candidates[i].Citekey != w {
			t.Errorf("position %d: got %q, want %q", i, candidates[i].Citekey, w)
		}
	}
}
