package match

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matsen/citematch/internal/reference"
)

// Decision is one externally supplied citekey choice for a reference. A nil
// Citekey marks the reference as unmatched.
type Decision struct {
	RefID      string   `json:"ref_id"`
	Citekey    *string  `json:"citekey"`
	Reason     string   `json:"reason,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

var decisionListKeys = []string{"decisions", "items", "refs"}

// ParseDecisions parses a decisions document. The list is accepted under
// decisions, items, or refs; entries that are not objects are skipped with a
// warning in the returned slice.
func ParseDecisions(data []byte) ([]Decision, []string, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, nil, fmt.Errorf("parsing decisions: %w", err)
	}

	var rawList []json.RawMessage
	found := false
	for _, key := range decisionListKeys {
		raw, ok := root[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &rawList); err != nil {
			return nil, nil, fmt.Errorf("decisions: %s is not a list", key)
		}
		found = true
		break
	}
	if !found {
		return nil, nil, fmt.Errorf("decisions: missing decisions list (expected one of: %s)", strings.Join(decisionListKeys, "/"))
	}

	var decisions []Decision
	var warnings []string
	for i, raw := range rawList {
		var d Decision
		if err := json.Unmarshal(raw, &d); err != nil {
			warnings = append(warnings, fmt.Sprintf("skipped malformed decision at index %d", i))
			continue
		}
		decisions = append(decisions, d)
	}
	return decisions, warnings, nil
}

// ApplyDecisions merges decisions into an existing match result in place.
//
// A decision may only choose a citekey that the resolution pipeline already
// offered among that reference's candidates; anything else is a fatal error
// and the result must be discarded unwritten. Decisions for unknown ref_ids
// are skipped with a warning. Stats are recomputed from scratch afterwards.
func ApplyDecisions(result *reference.MatchResult, decisions []Decision) ([]string, error) {
	var warnings []string

	refsByID := make(map[string]*reference.ResolvedRef, len(result.Refs))
	for i := range result.Refs {
		id := strings.TrimSpace(result.Refs[i].RefID)
		if id == "" {
			continue
		}
		if _, dup := refsByID[id]; dup {
			continue
		}
		refsByID[id] = &result.Refs[i]
	}

	for _, d := range decisions {
		refID := strings.TrimSpace(d.RefID)
		if refID == "" {
			warnings = append(warnings, "skipped decision with empty ref_id")
			continue
		}

		ref, ok := refsByID[refID]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("decision ref_id not found in match result: %s", refID))
			continue
		}

		citekey := ""
		if d.Citekey != nil {
			citekey = strings.TrimSpace(*d.Citekey)
			if citekey == "null" {
				citekey = ""
			}
		}

		if citekey == "" {
			ref.Match = reference.Match{
				Status:     reference.StatusUnmatched,
				Method:     reference.MethodLLM,
				Confidence: confidenceOr(d.Confidence, 0),
				Reason:     strings.TrimSpace(d.Reason),
			}
			continue
		}

		cand, ok := findCandidate(ref.Candidates, citekey)
		if !ok {
			return warnings, fmt.Errorf("decision citekey not in candidates for ref_id=%s: %s", refID, citekey)
		}

		ref.Match = reference.Match{
			Status:     reference.StatusMatched,
			Citekey:    citekey,
			ItemKey:    cand.ItemKey,
			Method:     reference.MethodLLM,
			Confidence: confidenceOr(d.Confidence, ref.Match.Confidence),
			Reason:     strings.TrimSpace(d.Reason),
		}
	}

	result.Stats = reference.ComputeStats(result.Refs)
	result.Meta.Warnings = append(result.Meta.Warnings, warnings...)
	return warnings, nil
}

func findCandidate(candidates []reference.Candidate, citekey string) (reference.Candidate, bool) {
	for _, c := range candidates {
		if c.Citekey == citekey {
			return c, true
		}
	}
	return reference.Candidate{}, false
}

func confidenceOr(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}
