package library

import (
	"fmt"
	"sort"

	"github.com/matsen/citematch/internal/normalize"
)

// Index aggregates library records with reverse lookup tables keyed by
// normalized identifier. It is built once per run and read-only afterwards;
// identifiers shared by several citekeys are surfaced as warnings, never
// silently resolved.
type Index struct {
	Records  map[string]Record
	Citekeys []string // export order, for deterministic iteration

	ByDOI   map[string][]string
	ByArxiv map[string][]string
	ByURL   map[string][]string

	TotalItems   int
	IndexedItems int
	Warnings     []string
}

// BuildIndex summarizes raw export items and indexes them.
func BuildIndex(items []map[string]any) *Index {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		if rec, ok := summarizeItem(item); ok {
			records = append(records, rec)
		}
	}
	return IndexRecords(records, len(items))
}

// IndexRecords builds an Index from already-summarized records. On duplicate
// citekeys the first occurrence wins; later duplicates are dropped.
func IndexRecords(records []Record, totalItems int) *Index {
	idx := &Index{
		Records:    make(map[string]Record, len(records)),
		ByDOI:      map[string][]string{},
		ByArxiv:    map[string][]string{},
		ByURL:      map[string][]string{},
		TotalItems: totalItems,
	}

	for _, rec := range records {
		if _, dup := idx.Records[rec.Citekey]; dup {
			idx.Warnings = append(idx.Warnings, fmt.Sprintf("duplicate citekey %s: keeping first occurrence", rec.Citekey))
			continue
		}
		idx.Records[rec.Citekey] = rec
		idx.Citekeys = append(idx.Citekeys, rec.Citekey)

		if doi := normalize.NormalizeDOI(rec.DOI); doi != "" {
			idx.ByDOI[doi] = append(idx.ByDOI[doi], rec.Citekey)
		}
		if url := normalize.NormalizeURL(rec.URL); url != "" {
			idx.ByURL[url] = append(idx.ByURL[url], rec.Citekey)
		}
		if rec.ArxivID != "" {
			idx.ByArxiv[rec.ArxivID] = append(idx.ByArxiv[rec.ArxivID], rec.Citekey)
		}
	}
	idx.IndexedItems = len(idx.Citekeys)

	idx.Warnings = append(idx.Warnings, collisionWarnings("DOI", idx.ByDOI)...)
	idx.Warnings = append(idx.Warnings, collisionWarnings("arXiv", idx.ByArxiv)...)
	idx.Warnings = append(idx.Warnings, collisionWarnings("URL", idx.ByURL)...)
	return idx
}

// RecordList returns the indexed records in export order.
func (idx *Index) RecordList() []Record {
	out := make([]Record, 0, len(idx.Citekeys))
	for _, ck := range idx.Citekeys {
		out = append(out, idx.Records[ck])
	}
	return out
}

// collisionWarnings reports every reverse-index key shared by more than one
// citekey. Keys are visited in sorted order so warning output is stable.
func collisionWarnings(label string, index map[string][]string) []string {
	keys := make([]string, 0, len(index))
	for k, citekeys := range index {
		if len(citekeys) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	warnings := make([]string, 0, len(keys))
	for _, k := range keys {
		warnings = append(warnings, fmt.Sprintf("duplicate %s index for %s: %v", label, k, index[k]))
	}
	return warnings
}
