// Package library builds citekey-keyed records and identifier lookup tables
// from a Zotero Better BibTeX library export.
package library

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/matsen/citematch/internal/normalize"
	"github.com/matsen/citematch/internal/reference"
)

// Record is one bibliography entry, built once per run and immutable
// afterwards.
type Record struct {
	Citekey        string                 `json:"citekey"`
	ItemKey        string                 `json:"itemKey"`
	Title          string                 `json:"title"`
	Year           string                 `json:"year,omitempty"`
	Authors        []string               `json:"authors"`
	DOI            string                 `json:"doi,omitempty"`
	URL            string                 `json:"url,omitempty"`
	ArxivID        string                 `json:"arxiv_id,omitempty"`
	Tags           []string               `json:"zotero_tags"`
	PDFAttachments []reference.Attachment `json:"pdf_attachments"`
}

// ParseExport decodes a Better BibTeX export: either an object with an
// "items" list or a bare list. Non-object entries are skipped.
func ParseExport(data []byte) ([]map[string]any, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing library export: %w", err)
	}

	var rawItems []any
	switch t := root.(type) {
	case map[string]any:
		items, ok := t["items"].([]any)
		if !ok {
			return nil, fmt.Errorf("library export: missing items list")
		}
		rawItems = items
	case []any:
		rawItems = t
	default:
		return nil, fmt.Errorf("library export: expected object or list at top level")
	}

	items := make([]map[string]any, 0, len(rawItems))
	for _, it := range rawItems {
		if obj, ok := it.(map[string]any); ok {
			items = append(items, obj)
		}
	}
	return items, nil
}

// summarizeItem converts one raw export item to a Record. Items without a
// citekey are skipped, which is not an error.
func summarizeItem(item map[string]any) (Record, bool) {
	citekey, _ := item["citationKey"].(string)
	if strings.TrimSpace(citekey) == "" {
		return Record{}, false
	}

	rec := Record{
		Citekey: citekey,
		ItemKey: itemString(item, "itemKey"),
		Title:   strings.TrimSpace(itemString(item, "title")),
	}

	for _, field := range []string{"date", "issued", "year"} {
		if year := normalize.FirstYear(itemString(item, field)); year != "" {
			rec.Year = year
			break
		}
	}

	rec.DOI = strings.TrimSpace(firstItemString(item, "DOI", "doi"))
	rec.URL = strings.TrimSpace(firstItemString(item, "url", "URL"))
	rec.Authors = formatCreators(item["creators"])
	rec.Tags = normalizeTags(item["tags"])
	rec.PDFAttachments = pdfAttachments(item["attachments"])

	// arXiv id comes from the DOI or URL, falling back to the free-text
	// "extra" field.
	rec.ArxivID = normalize.ExtractArxivID(rec.DOI)
	if rec.ArxivID == "" {
		rec.ArxivID = normalize.ExtractArxivID(rec.URL)
	}
	if rec.ArxivID == "" {
		rec.ArxivID = normalize.ExtractArxivID(itemString(item, "extra"))
	}

	return rec, true
}

// formatCreators renders author-type creators as "Family, Given" strings,
// preserving order.
func formatCreators(v any) []string {
	creators, ok := v.([]any)
	if !ok {
		return nil
	}

	var authors []string
	for _, c := range creators {
		obj, ok := c.(map[string]any)
		if !ok {
			continue
		}
		creatorType, _ := obj["creatorType"].(string)
		if ct := strings.ToLower(creatorType); ct != "author" && ct != "" {
			continue
		}

		last := strings.TrimSpace(stringOf(obj["lastName"]))
		first := strings.TrimSpace(stringOf(obj["firstName"]))
		switch {
		case last != "" && first != "":
			authors = append(authors, last+", "+first)
		case last != "":
			authors = append(authors, last)
		case first != "":
			authors = append(authors, first)
		}
	}
	return authors
}

func normalizeTags(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}

	var tags []string
	for _, t := range raw {
		var tag string
		switch tv := t.(type) {
		case string:
			tag = tv
		case map[string]any:
			tag = stringOf(tv["tag"])
		default:
			tag = stringOf(tv)
		}
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// pdfAttachments filters attachments to PDF-like entries: a .pdf suffix on
// path, title, or URL, or an arXiv-style /pdf/ URL.
func pdfAttachments(v any) []reference.Attachment {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}

	var out []reference.Attachment
	for _, a := range raw {
		obj, ok := a.(map[string]any)
		if !ok {
			continue
		}
		att := reference.Attachment{
			Title: stringOf(obj["title"]),
			Path:  stringOf(obj["path"]),
			URL:   stringOf(obj["url"]),
		}
		if isPDFAttachment(att) {
			out = append(out, att)
		}
	}
	return out
}

func isPDFAttachment(att reference.Attachment) bool {
	for _, value := range []string{att.Path, att.Title, att.URL} {
		if strings.HasSuffix(strings.ToLower(value), ".pdf") {
			return true
		}
	}
	lowered := strings.ToLower(att.URL)
	return strings.Contains(lowered, "arxiv.org/pdf/") || strings.Contains(lowered, "/pdf/")
}

func itemString(item map[string]any, key string) string {
	return stringOf(item[key])
}

func firstItemString(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(item[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
