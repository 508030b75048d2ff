package reference

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/matsen/citematch/internal/normalize"
)

// ExtractedDoc is the normalized form of a refs_extracted document.
type ExtractedDoc struct {
	Meta     map[string]any
	Refs     []Reference
	Warnings []string
}

// Accepted field aliases, consulted in priority order. The flexible schema
// stops here: everything past ingestion sees only the canonical Reference.
var (
	refListKeys   = []string{"refs", "references", "items"}
	refIDKeys     = []string{"ref_id", "id", "refId", "number"}
	rawTextKeys   = []string{"raw_text", "rawText", "text", "raw"}
	rawLinesKeys  = []string{"raw_lines", "rawLines", "lines_raw"}
	lineStartKeys = []string{"line_start", "start_line", "startLine", "lineStart"}
	lineEndKeys   = []string{"line_end", "end_line", "endLine", "lineEnd"}
)

// ParseExtracted parses a refs_extracted document. Missing top-level
// structure is fatal; malformed individual entries are dropped with a
// warning.
func ParseExtracted(data []byte) (*ExtractedDoc, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing refs_extracted: %w", err)
	}

	obj, ok := root.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("refs_extracted: expected JSON object at top level")
	}

	doc := &ExtractedDoc{Meta: map[string]any{}}
	if meta, ok := obj["meta"].(map[string]any); ok {
		doc.Meta = meta
	}

	rawList, ok := firstPresent(obj, refListKeys)
	if !ok {
		return nil, fmt.Errorf("refs_extracted: missing references list (expected one of: %s)", strings.Join(refListKeys, "/"))
	}
	entries, ok := rawList.([]any)
	if !ok {
		return nil, fmt.Errorf("refs_extracted: references is not a list")
	}

	for _, entry := range entries {
		ref, ok := normalizeRef(entry, &doc.Warnings)
		if ok {
			doc.Refs = append(doc.Refs, ref)
		}
	}
	return doc, nil
}

func normalizeRef(entry any, warnings *[]string) (Reference, bool) {
	switch v := entry.(type) {
	case string:
		rawText := strings.TrimSpace(v)
		if rawText == "" {
			return Reference{}, false
		}
		return Reference{
			LineStart: -1,
			LineEnd:   -1,
			RawText:   rawText,
			Parsed:    normalizeParsed(rawText, nil),
		}, true

	case map[string]any:
		refID := ""
		if id, ok := firstPresent(v, refIDKeys); ok {
			refID = strings.TrimSpace(asString(id))
		}

		rawText := extractRawText(v)
		if rawText == "" {
			*warnings = append(*warnings, fmt.Sprintf("skipped ref with no raw_text (ref_id=%q)", refID))
			return Reference{}, false
		}

		lineStart, lineEnd := extractLineRange(v, warnings)
		return Reference{
			RefID:     refID,
			LineStart: lineStart,
			LineEnd:   lineEnd,
			RawText:   rawText,
			Parsed:    normalizeParsed(rawText, v["parsed"]),
		}, true

	default:
		*warnings = append(*warnings, fmt.Sprintf("skipped non-object ref entry: %T", entry))
		return Reference{}, false
	}
}

func extractRawText(obj map[string]any) string {
	if raw, ok := firstPresent(obj, rawTextKeys); ok {
		return strings.TrimSpace(asString(raw))
	}
	if raw, ok := firstPresent(obj, rawLinesKeys); ok {
		if lines, ok := raw.([]any); ok {
			var parts []string
			for _, l := range lines {
				if s := strings.TrimSpace(asString(l)); s != "" {
					parts = append(parts, asString(l))
				}
			}
			return strings.TrimSpace(strings.Join(parts, "\n"))
		}
	}
	return ""
}

// extractLineRange consults the line-range aliases: separate start/end keys,
// a two-element line_range list, a lines object, or a single line. A span
// with end before start is swapped and recorded as a warning.
func extractLineRange(obj map[string]any, warnings *[]string) (int, int) {
	lineStart, haveStart := firstPresent(obj, lineStartKeys)
	lineEnd, haveEnd := firstPresent(obj, lineEndKeys)

	if !haveStart && !haveEnd {
		for _, key := range []string{"line_range", "lineRange"} {
			if pair, ok := obj[key].([]any); ok && len(pair) == 2 {
				lineStart, lineEnd = pair[0], pair[1]
				haveStart, haveEnd = true, true
				break
			}
		}
	}

	if !haveStart && !haveEnd {
		if lines, ok := obj["lines"].(map[string]any); ok {
			lineStart, haveStart = firstPresent(lines, []string{"start", "line_start", "start_line"})
			lineEnd, haveEnd = firstPresent(lines, []string{"end", "line_end", "end_line"})
		}
	}

	if !haveStart && !haveEnd {
		if single, ok := obj["line"]; ok {
			lineStart, lineEnd = single, single
		}
	}

	start := coerceInt(lineStart, -1)
	end := coerceInt(lineEnd, -1)
	if start >= 0 && end >= 0 && end < start {
		*warnings = append(*warnings, fmt.Sprintf("swapped line range: start=%d end=%d", start, end))
		start, end = end, start
	}
	return start, end
}

func normalizeParsed(rawText string, parsed any) Parsed {
	obj, _ := parsed.(map[string]any)

	clean := func(key string) string {
		if obj == nil {
			return ""
		}
		return strings.TrimSpace(asString(obj[key]))
	}

	p := Parsed{
		DOI:         clean("doi"),
		URL:         clean("url"),
		Arxiv:       clean("arxiv"),
		Year:        clean("year"),
		TitleGuess:  clean("title_guess"),
		AuthorGuess: clean("author_guess"),
	}

	if p.DOI == "" {
		p.DOI = normalize.ExtractDOI(rawText)
	}
	if p.URL == "" {
		p.URL = normalize.ExtractFirstURL(rawText)
	}
	if p.Arxiv == "" {
		p.Arxiv = normalize.ExtractArxivID(rawText)
		if p.Arxiv == "" {
			p.Arxiv = normalize.ExtractArxivID(p.DOI)
		}
		if p.Arxiv == "" {
			p.Arxiv = normalize.ExtractArxivID(p.URL)
		}
	}
	if p.Year == "" {
		p.Year = normalize.ExtractYear(rawText)
	}
	return p
}

func firstPresent(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// asString renders a scalar JSON value as a string. Integral numbers are
// rendered without a decimal point so numeric ref ids join cleanly.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// coerceInt converts a scalar JSON value to an int, returning def for
// anything that does not parse. Booleans are rejected, not truncated.
func coerceInt(v any, def int) int {
	switch t := v.(type) {
	case nil:
		return def
	case bool:
		return def
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return n
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}
