// Package annotate rewrites a Markdown document against a match result:
// numeric citations in the body become [[citekey]] links, matched
// Works-cited entries get a trailing marker, and a formatted reference
// section is inserted before the Works-cited heading.
package annotate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/matsen/citematch/internal/reference"
)

// WorksCitedHeading is the exact heading line that delimits the body from
// the Works-cited list.
const WorksCitedHeading = "#### **Works cited**"

var (
	// Numbered Works-cited entry: "12. Some reference text".
	entryPattern = regexp.MustCompile(`^\s*(\d{1,3})\.\s+`)

	// Lines never rewritten in the body: headings, numbered lists, tables.
	skipLinePattern = regexp.MustCompile(`^\s*(?:#|\d+\.|\|)`)

	// A body citation group: whitespace, then comma-separated 1-3 digit
	// numbers (ASCII or fullwidth comma), then closing punctuation.
	citationPattern = regexp.MustCompile(`(\s)(\d{1,3}(?:\s*[,，]\s*\d{1,3})*)([。！？?；;：:\)\]）])`)

	citationSeparator = regexp.MustCompile(`(\s*[,，]\s*)`)
)

// candidateMeta is the slice of candidate fields needed to format a
// reference entry.
type candidateMeta struct {
	citekey string
	title   string
	year    string
	authors []string
	doi     string
	url     string
}

// Process rewrites doc using the matched references in result. A missing
// Works-cited heading is fatal.
func Process(doc string, result *reference.MatchResult) (string, error) {
	lines := strings.Split(strings.TrimSuffix(doc, "\n"), "\n")

	worksIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == WorksCitedHeading {
			worksIdx = i
			break
		}
	}
	if worksIdx < 0 {
		return "", fmt.Errorf("works cited heading not found: %q", WorksCitedHeading)
	}

	matched, order := matchedCitekeys(result)

	replaceInBody(lines, worksIdx, matched)
	appendWorksCitedMarkers(lines, worksIdx, matched)

	section := referenceSection(order, candidateMetaByCitekey(result))

	out := make([]string, 0, len(lines)+len(section))
	out = append(out, lines[:worksIdx]...)
	out = append(out, section...)
	out = append(out, lines[worksIdx:]...)
	return strings.Join(out, "\n") + "\n", nil
}

// matchedCitekeys maps ref_id to citekey for matched references, plus the
// unique citekeys in reference order.
func matchedCitekeys(result *reference.MatchResult) (map[string]string, []string) {
	matched := map[string]string{}
	var order []string
	seen := map[string]bool{}

	for _, r := range result.Refs {
		refID := strings.TrimSpace(r.RefID)
		if refID == "" || r.Match.Status != reference.StatusMatched {
			continue
		}
		citekey := strings.TrimSpace(r.Match.Citekey)
		if citekey == "" {
			continue
		}
		matched[refID] = citekey
		if !seen[citekey] {
			seen[citekey] = true
			order = append(order, citekey)
		}
	}
	return matched, order
}

func candidateMetaByCitekey(result *reference.MatchResult) map[string]candidateMeta {
	out := map[string]candidateMeta{}
	for _, r := range result.Refs {
		for _, c := range r.Candidates {
			citekey := strings.TrimSpace(c.Citekey)
			if citekey == "" {
				continue
			}
			if _, ok := out[citekey]; ok {
				continue
			}
			out[citekey] = candidateMeta{
				citekey: citekey,
				title:   strings.TrimSpace(c.Title),
				year:    strings.TrimSpace(c.Year),
				authors: c.Authors,
				doi:     strings.TrimSpace(c.DOI),
				url:     strings.TrimSpace(c.URL),
			}
		}
	}
	return out
}

// replaceInBody rewrites numeric citation groups above the Works-cited
// heading. Numbers with no matched citekey are left as-is.
func replaceInBody(lines []string, worksIdx int, matched map[string]string) {
	for i := 0; i < worksIdx; i++ {
		if skipLinePattern.MatchString(lines[i]) {
			continue
		}
		lines[i] = citationPattern.ReplaceAllStringFunc(lines[i], func(group string) string {
			m := citationPattern.FindStringSubmatch(group)
			prefix, seq, suffix := m[1], m[2], m[3]

			var out strings.Builder
			for _, part := range splitKeepSeparators(seq) {
				num := strings.TrimSpace(part)
				if citekey, ok := matched[num]; ok && !citationSeparator.MatchString(part) {
					out.WriteString("[[" + citekey + "]]")
				} else {
					out.WriteString(part)
				}
			}
			return prefix + out.String() + suffix
		})
	}
}

func splitKeepSeparators(seq string) []string {
	var parts []string
	last := 0
	for _, loc := range citationSeparator.FindAllStringIndex(seq, -1) {
		if loc[0] > last {
			parts = append(parts, seq[last:loc[0]])
		}
		parts = append(parts, seq[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(seq) {
		parts = append(parts, seq[last:])
	}
	return parts
}

// appendWorksCitedMarkers appends [[citekey]] to the last line of each
// matched numbered entry below the heading.
func appendWorksCitedMarkers(lines []string, worksIdx int, matched map[string]string) {
	type entry struct {
		line  int
		refID string
	}

	var starts []entry
	for i := worksIdx + 1; i < len(lines); i++ {
		if m := entryPattern.FindStringSubmatch(lines[i]); m != nil {
			starts = append(starts, entry{line: i, refID: m[1]})
		}
	}
	if len(starts) == 0 {
		return
	}
	starts = append(starts, entry{line: len(lines)})

	for i := 0; i+1 < len(starts); i++ {
		citekey, ok := matched[starts[i].refID]
		if !ok {
			continue
		}
		end := starts[i+1].line - 1
		if end < starts[i].line {
			continue
		}
		marker := "[[" + citekey + "]]"
		if strings.Contains(lines[end], marker) {
			continue
		}
		lines[end] = strings.TrimRight(lines[end], " \t") + " " + marker
	}
}

// referenceSection renders the matched citekeys as a sorted Harvard-style
// reference list.
func referenceSection(citekeys []string, meta map[string]candidateMeta) []string {
	type entry struct {
		line       string
		authorSort string
		yearSort   int
		titleSort  string
	}

	entries := make([]entry, 0, len(citekeys))
	for _, ck := range citekeys {
		m, ok := meta[ck]
		if !ok {
			m = candidateMeta{citekey: ck}
		}
		line, authorSort, yearNum, titleSort := formatReferenceEntry(m)
		yearSort := 9999
		if yearNum > 0 {
			yearSort = yearNum
		}
		entries = append(entries, entry{line, authorSort, yearSort, titleSort})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		anonA, anonB := a.authorSort == "anon.", b.authorSort == "anon."
		if anonA != anonB {
			return !anonA
		}
		if a.authorSort != b.authorSort {
			return a.authorSort < b.authorSort
		}
		if a.yearSort != b.yearSort {
			return a.yearSort < b.yearSort
		}
		return a.titleSort < b.titleSort
	})

	lines := []string{"#### **Reference**", ""}
	for _, e := range entries {
		lines = append(lines, e.line)
	}
	lines = append(lines, "")
	return lines
}

func formatReferenceEntry(m candidateMeta) (line, authorSort string, yearNum int, titleSort string) {
	authorsText, authorSort := formatAuthorsHarvard(m.authors)

	yearText := m.year
	if yearText == "" {
		yearText = "n.d."
	} else if n, err := strconv.Atoi(yearText); err == nil {
		yearNum = n
	}

	title := m.title
	if title == "" {
		title = "Untitled"
	}

	var body string
	switch {
	case m.doi != "":
		body = fmt.Sprintf("%s (%s) '%s'. doi: %s.", authorsText, yearText, title, m.doi)
	case m.url != "":
		body = fmt.Sprintf("%s (%s) '%s'. Available at: %s.", authorsText, yearText, title, m.url)
	default:
		body = fmt.Sprintf("%s (%s) '%s'.", authorsText, yearText, title)
	}

	return fmt.Sprintf("- %s [[%s]]", body, m.citekey), authorSort, yearNum, strings.ToLower(title)
}

// formatAuthorsHarvard renders "Family, I." author lists: two authors joined
// with "and", three or more as "et al.". Returns the display text and the
// sort key (first family name, lowercased).
func formatAuthorsHarvard(authors []string) (string, string) {
	type nameParts struct {
		family, initials string
	}

	var parsed []nameParts
	for _, a := range authors {
		family, initials := familyAndInitials(a)
		if family != "" {
			parsed = append(parsed, nameParts{family, initials})
		}
	}
	if len(parsed) == 0 {
		return "Anon.", "anon."
	}

	fmtOne := func(p nameParts) string {
		if p.initials != "" {
			return p.family + ", " + p.initials
		}
		return p.family
	}
	sortKey := strings.ToLower(parsed[0].family)

	switch len(parsed) {
	case 1:
		return fmtOne(parsed[0]), sortKey
	case 2:
		return fmtOne(parsed[0]) + " and " + fmtOne(parsed[1]), sortKey
	default:
		return fmtOne(parsed[0]) + " et al.", sortKey
	}
}

// familyAndInitials splits "Family, Given" (or "Given Family") into the
// family name and upper-cased initials.
func familyAndInitials(author string) (string, string) {
	text := strings.TrimSpace(author)
	if text == "" {
		return "", ""
	}

	var family, given string
	if idx := strings.Index(text, ","); idx >= 0 {
		family = strings.TrimSpace(text[:idx])
		given = strings.TrimSpace(text[idx+1:])
	} else {
		parts := strings.Fields(text)
		if len(parts) == 1 {
			return parts[0], ""
		}
		family = parts[len(parts)-1]
		given = strings.Join(parts[:len(parts)-1], " ")
	}

	var initials strings.Builder
	for _, token := range strings.FieldsFunc(given, func(r rune) bool {
		return r == ' ' || r == '-' || r == '\t'
	}) {
		for _, r := range token {
			if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' {
				initials.WriteString(strings.ToUpper(string(r)) + ".")
				break
			}
		}
	}
	return family, initials.String()
}
