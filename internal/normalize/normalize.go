// Package normalize canonicalizes bibliographic identifiers (DOI, arXiv id,
// URL, year) extracted from free text so they can serve as exact-match keys.
// All functions are pure and total: malformed input yields "" rather than an error.
package normalize

import (
	"regexp"
	"strings"
)

var (
	// DOI pattern: 10.XXXX/... where XXXX is 4-9 digits.
	doiPattern = regexp.MustCompile(`(?i)(10\.\d{4,9}/[-._;()/:A-Z0-9]+)`)

	// arXiv id: YYMM.NNNN(N) with optional version suffix and arxiv: prefix.
	arxivPattern = regexp.MustCompile(`(?i)\b(?:arxiv:)?(\d{4}\.\d{4,5})(?:v\d+)?\b`)

	yearPattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

	urlPattern = regexp.MustCompile(`(?i)(https?://[^\s\)\]\}>,;]+)`)

	// Words that mark a nearby year as an access date, not a publication year.
	accessContextPattern = regexp.MustCompile(`(?i)\b(accessed|retrieved|visited)\b`)
)

const surroundingPunct = ".,;:()[]{}<>"

// NormalizeDOI lowercases a DOI and strips URL/scheme prefixes and
// surrounding punctuation. Returns "" for empty input.
func NormalizeDOI(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	text = strings.ToLower(text)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi:", "doi "} {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimSpace(text[len(prefix):])
			break
		}
	}
	return strings.Trim(text, surroundingPunct)
}

// NormalizeURL lowercases a URL and strips the scheme, a leading www.,
// a trailing slash, and surrounding punctuation. Returns "" for empty input.
func NormalizeURL(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	text = strings.Trim(text, surroundingPunct)
	text = strings.ToLower(text)
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(text, prefix) {
			text = text[len(prefix):]
			break
		}
	}
	text = strings.TrimPrefix(text, "www.")
	return strings.TrimRight(text, "/")
}

// ExtractDOI returns the first DOI-shaped token in text, or "".
func ExtractDOI(text string) string {
	if text == "" {
		return ""
	}
	m := doiPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimRight(m[1], ").,;]")
}

// ExtractFirstURL returns the first URL in text, or "".
func ExtractFirstURL(text string) string {
	if text == "" {
		return ""
	}
	m := urlPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimRight(m[1], ").,;]")
}

// ExtractArxivID returns the first arXiv-id-shaped token in text (without
// version suffix or arxiv: prefix), or "".
func ExtractArxivID(text string) string {
	if text == "" {
		return ""
	}
	m := arxivPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// FirstYear returns the first 4-digit year token (1900-2099) in text, or "".
// Unlike ExtractYear it applies no positional heuristics; it is meant for
// structured date fields rather than free-text references.
func FirstYear(text string) string {
	if text == "" {
		return ""
	}
	m := yearPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

type span struct {
	start, end int
}

func (s span) overlaps(start, end int) bool {
	return start < s.end && end > s.start
}

// ExtractYear scans text for a publication year in 1900-2099.
//
// Years inside an already-matched URL/DOI/arXiv span are excluded (a DOI
// containing "2024" is not a publication year). Years annotated by a nearby
// access-context word ("accessed 2023") are excluded. Among the remaining
// candidates a parenthesized year wins (the "(Author, 2020)" style),
// rightmost first; otherwise the rightmost candidate wins.
func ExtractYear(text string) string {
	if text == "" {
		return ""
	}

	var ignore []span
	for _, pattern := range []*regexp.Regexp{urlPattern, doiPattern, arxivPattern} {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			ignore = append(ignore, span{loc[0], loc[1]})
		}
	}

	var candidates []span
	for _, loc := range yearPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[2], loc[3]
		ignored := false
		for _, s := range ignore {
			if s.overlaps(start, end) {
				ignored = true
				break
			}
		}
		if ignored {
			continue
		}
		candidates = append(candidates, span{start, end})
	}
	if len(candidates) == 0 {
		return ""
	}

	var nonAccess []span
	for _, c := range candidates {
		if !isAccessYear(text, c.start) {
			nonAccess = append(nonAccess, c)
		}
	}
	if len(nonAccess) == 0 {
		return ""
	}

	// Rightmost parenthesized year wins, then rightmost overall.
	best := span{start: -1}
	for _, c := range nonAccess {
		if inParentheses(text, c.start, c.end) && c.start > best.start {
			best = c
		}
	}
	if best.start < 0 {
		for _, c := range nonAccess {
			if c.start > best.start {
				best = c
			}
		}
	}
	return text[best.start:best.end]
}

// isAccessYear reports whether the year starting at start is preceded by an
// access-context word. The word must begin within 50 characters of the year,
// searching an 80-character window.
func isAccessYear(text string, start int) bool {
	windowStart := start - 80
	if windowStart < 0 {
		windowStart = 0
	}
	window := text[windowStart:start]

	locs := accessContextPattern.FindAllStringIndex(window, -1)
	if len(locs) == 0 {
		return false
	}
	last := locs[len(locs)-1]
	return len(window)-last[0] <= 50
}

// inParentheses reports whether the span is directly enclosed in parentheses,
// ignoring whitespace.
func inParentheses(text string, start, end int) bool {
	i := start - 1
	for i >= 0 && isSpaceByte(text[i]) {
		i--
	}
	j := end
	for j < len(text) && isSpaceByte(text[j]) {
		j++
	}
	return i >= 0 && j < len(text) && text[i] == '(' && text[j] == ')'
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
