// Package match implements the tiered reference resolution pipeline: exact
// identifier matching against the library index, lexical retrieval with light
// contextual boosting, and classification into a confidence tier.
package match

import (
	"sort"
	"strings"

	"github.com/matsen/citematch/internal/library"
	"github.com/matsen/citematch/internal/normalize"
	"github.com/matsen/citematch/internal/reference"
	"github.com/matsen/citematch/internal/retrieval"
)

// Confidence assigned on the deterministic tier.
const (
	uniqueIdentifierConfidence    = 0.99
	collidingIdentifierConfidence = 0.80
)

// Params is the tunable configuration surface of the pipeline.
type Params struct {
	TopK               int
	AutoMatchThreshold float64
	AutoMatchGap       float64
	NeedsLLMThreshold  float64
	YearBoost          float64
	AuthorBoost        float64
}

// DefaultParams returns the default pipeline parameters.
func DefaultParams() Params {
	return Params{
		TopK:               10,
		AutoMatchThreshold: 0.90,
		AutoMatchGap:       0.10,
		NeedsLLMThreshold:  0.25,
		YearBoost:          0.03,
		AuthorBoost:        0.03,
	}
}

// Resolver resolves references against one immutable library snapshot. Both
// indices are fully built before any resolution begins and never mutated
// afterwards, so a Resolver is safe for concurrent use.
type Resolver struct {
	library   *library.Index
	retrieval *retrieval.Index
	params    Params
}

// NewResolver builds a resolver, including the lexical retrieval index over
// the library titles.
func NewResolver(lib *library.Index, params Params) *Resolver {
	titles := make([]string, len(lib.Citekeys))
	for i, ck := range lib.Citekeys {
		titles[i] = lib.Records[ck].Title
	}
	return &Resolver{
		library:   lib,
		retrieval: retrieval.BuildIndex(lib.Citekeys, titles),
		params:    params,
	}
}

// Resolve produces one verdict per reference, in input order.
func (r *Resolver) Resolve(refs []reference.Reference) []reference.ResolvedRef {
	out := make([]reference.ResolvedRef, 0, len(refs))
	for _, ref := range refs {
		out = append(out, r.resolveOne(ref))
	}
	return out
}

func (r *Resolver) resolveOne(ref reference.Reference) reference.ResolvedRef {
	resolved := reference.ResolvedRef{
		Reference:  ref,
		Match:      reference.Match{Status: reference.StatusUnmatched, Method: reference.MethodNone},
		Candidates: []reference.Candidate{},
	}

	if method, citekeys := r.deterministicMatch(ref); method != "" {
		resolved.Match.Method = method
		for _, ck := range citekeys {
			if rec, ok := r.library.Records[ck]; ok {
				resolved.Candidates = append(resolved.Candidates, candidateFromRecord(rec, 1.0))
			}
		}

		if len(citekeys) == 1 {
			resolved.Match.Status = reference.StatusMatched
			resolved.Match.Confidence = uniqueIdentifierConfidence
			resolved.Match.Citekey = citekeys[0]
			resolved.Match.ItemKey = r.library.Records[citekeys[0]].ItemKey
			return resolved
		}

		// Colliding identifier: ambiguity is surfaced, never resolved here.
		resolved.Match.Confidence = collidingIdentifierConfidence
		if len(resolved.Candidates) > 0 {
			resolved.Match.Status = reference.StatusNeedsLLM
		} else {
			resolved.Match.Status = reference.StatusNeedsReview
		}
		return resolved
	}

	r.lexicalMatch(ref, &resolved)
	return resolved
}

// deterministicMatch checks DOI, then arXiv id, then URL against the library
// reverse indices, using normalized reference-side values. It returns the
// first identifier type with any hit.
func (r *Resolver) deterministicMatch(ref reference.Reference) (string, []string) {
	if doi := normalize.NormalizeDOI(ref.Parsed.DOI); doi != "" {
		if citekeys := r.library.ByDOI[doi]; len(citekeys) > 0 {
			return reference.MethodDOI, citekeys
		}
	}
	if arxiv := normalize.ExtractArxivID(ref.Parsed.Arxiv); arxiv != "" {
		if citekeys := r.library.ByArxiv[arxiv]; len(citekeys) > 0 {
			return reference.MethodArxiv, citekeys
		}
	}
	if url := normalize.NormalizeURL(ref.Parsed.URL); url != "" {
		if citekeys := r.library.ByURL[url]; len(citekeys) > 0 {
			return reference.MethodURL, citekeys
		}
	}
	return "", nil
}

func (r *Resolver) lexicalMatch(ref reference.Reference, resolved *reference.ResolvedRef) {
	query := queryText(ref)
	retrieved := r.retrieval.TopK(query, r.params.TopK)

	for _, hit := range retrieved {
		rec, ok := r.library.Records[hit.Citekey]
		if !ok {
			continue
		}
		score := applyBoosts(hit.Score, ref.Parsed, rec, r.params)
		resolved.Candidates = append(resolved.Candidates, candidateFromRecord(rec, score))
	}
	sortCandidates(resolved.Candidates)

	if len(resolved.Candidates) == 0 {
		return // unmatched: empty library or empty query
	}

	top1 := resolved.Candidates[0].Score
	top2 := 0.0
	if len(resolved.Candidates) > 1 {
		top2 = resolved.Candidates[1].Score
	}

	resolved.Match.Method = reference.MethodTFIDF
	resolved.Match.Confidence = top1
	resolved.Match.Status = classify(top1, top2, r.params)
	if resolved.Match.Status == reference.StatusMatched {
		resolved.Match.Citekey = resolved.Candidates[0].Citekey
		resolved.Match.ItemKey = resolved.Candidates[0].ItemKey
	}
}

// queryText picks the retrieval query: the parsed title guess when present,
// else the raw reference text.
func queryText(ref reference.Reference) string {
	if title := strings.TrimSpace(ref.Parsed.TitleGuess); title != "" {
		return title
	}
	return strings.TrimSpace(ref.RawText)
}

// applyBoosts adds the year and author corroboration boosts to a lexical
// score. Boosts are purely additive and may push a score above 1.0; that
// headroom is intentional and must not be clamped.
func applyBoosts(base float64, parsed reference.Parsed, rec library.Record, params Params) float64 {
	score := base
	if parsed.Year != "" && rec.Year != "" && parsed.Year == rec.Year {
		score += params.YearBoost
	}
	if needle := strings.ToLower(strings.TrimSpace(parsed.AuthorGuess)); needle != "" {
		hay := strings.ToLower(strings.Join(rec.Authors, " "))
		if strings.Contains(hay, needle) {
			score += params.AuthorBoost
		}
	}
	return score
}

// classify maps the top two boosted scores to a status tier. A high top
// score alone is not enough for an auto-match: a close runner-up defers the
// call to human or LLM judgement.
func classify(top1, top2 float64, params Params) string {
	switch {
	case top1 >= params.AutoMatchThreshold && top1-top2 >= params.AutoMatchGap:
		return reference.StatusMatched
	case top1 >= params.NeedsLLMThreshold:
		return reference.StatusNeedsLLM
	default:
		return reference.StatusNeedsReview
	}
}

// sortCandidates orders by boosted score descending, ties broken by citekey
// descending to keep the ordering deterministic.
func sortCandidates(candidates []reference.Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Citekey > candidates[j].Citekey
	})
}

func candidateFromRecord(rec library.Record, score float64) reference.Candidate {
	return reference.Candidate{
		Citekey:        rec.Citekey,
		ItemKey:        rec.ItemKey,
		Score:          score,
		Title:          rec.Title,
		Year:           rec.Year,
		Authors:        rec.Authors,
		DOI:            rec.DOI,
		URL:            rec.URL,
		Tags:           rec.Tags,
		PDFAttachments: rec.PDFAttachments,
	}
}
