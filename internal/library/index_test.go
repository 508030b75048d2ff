package library

import (
	"reflect"
	"strings"
	"testing"
)

func exportItems(t *testing.T, data string) []map[string]any {
	t.Helper()
	items, err := ParseExport([]byte(data))
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	return items
}

func TestParseExport_Shapes(t *testing.T) {
	if items := exportItems(t, `{"items": [{"citationKey": "a"}, 42]}`); len(items) != 1 {
		t.Errorf("expected non-object entries skipped, got %d items", len(items))
	}
	if items := exportItems(t, `[{"citationKey": "a"}, {"citationKey": "b"}]`); len(items) != 2 {
		t.Errorf("expected bare list accepted, got %d items", len(items))
	}
	if _, err := ParseExport([]byte(`{"records": []}`)); err == nil {
		t.Error("expected error for object without items list")
	}
	if _, err := ParseExport([]byte(`"nope"`)); err == nil {
		t.Error("expected error for scalar top level")
	}
}

func TestBuildIndex_Summarize(t *testing.T) {
	items := exportItems(t, `{"items": [
		{
			"citationKey": "smith2020",
			"itemKey": "KEY1",
			"title": "A Theory of Everything",
			"date": "2020-05-01",
			"DOI": "10.1000/ABC",
			"url": "https://example.com/paper/",
			"creators": [
				{"creatorType": "author", "lastName": "Smith", "firstName": "Jane"},
				{"creatorType": "editor", "lastName": "Jones", "firstName": "Ed"},
				{"creatorType": "author", "lastName": "Doe"}
			],
			"tags": ["physics", {"tag": "theory"}, "  "],
			"attachments": [
				{"title": "Full Text", "path": "/pdfs/smith2020.pdf", "url": ""},
				{"title": "Data", "path": "/data/smith2020.csv", "url": ""},
				{"title": "Preprint", "path": "", "url": "https://arxiv.org/pdf/2001.00001"}
			]
		},
		{"title": "No citekey, skipped"}
	]}`)

	idx := BuildIndex(items)

	if idx.TotalItems != 2 || idx.IndexedItems != 1 {
		t.Errorf("expected 2 total / 1 indexed, got %d / %d", idx.TotalItems, idx.IndexedItems)
	}

	rec, ok := idx.Records["smith2020"]
	if !ok {
		t.Fatal("expected smith2020 record")
	}
	if rec.Year != "2020" {
		t.Errorf("expected year from date field, got %q", rec.Year)
	}
	if want := []string{"Smith, Jane", "Doe"}; !reflect.DeepEqual(rec.Authors, want) {
		t.Errorf("expected author-type creators only, got %v", rec.Authors)
	}
	if want := []string{"physics", "theory"}; !reflect.DeepEqual(rec.Tags, want) {
		t.Errorf("unexpected tags: %v", rec.Tags)
	}
	if len(rec.PDFAttachments) != 2 {
		t.Errorf("expected 2 PDF-like attachments, got %d", len(rec.PDFAttachments))
	}

	if got := idx.ByDOI["10.1000/abc"]; !reflect.DeepEqual(got, []string{"smith2020"}) {
		t.Errorf("expected normalized DOI key, got %v", idx.ByDOI)
	}
	if got := idx.ByURL["example.com/paper"]; !reflect.DeepEqual(got, []string{"smith2020"}) {
		t.Errorf("expected normalized URL key, got %v", idx.ByURL)
	}
}

func TestBuildIndex_ArxivFallbackFromExtra(t *testing.T) {
	items := exportItems(t, `{"items": [
		{"citationKey": "vaswani2017", "title": "Attention", "extra": "arXiv:1706.03762 [cs.CL]"}
	]}`)

	idx := BuildIndex(items)
	if got := idx.ByArxiv["1706.03762"]; !reflect.DeepEqual(got, []string{"vaswani2017"}) {
		t.Errorf("expected arXiv id from extra field, got %v", idx.ByArxiv)
	}
}

func TestBuildIndex_CollisionWarnings(t *testing.T) {
	items := exportItems(t, `{"items": [
		{"citationKey": "a", "DOI": "10.1/x"},
		{"citationKey": "b", "DOI": "10.1/x"}
	]}`)

	idx := BuildIndex(items)
	if got := idx.ByDOI["10.1/x"]; !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected both citekeys under colliding DOI, got %v", got)
	}
	if len(idx.Warnings) != 1 || !strings.Contains(idx.Warnings[0], "duplicate DOI index for 10.1/x") {
		t.Errorf("expected collision warning, got %v", idx.Warnings)
	}
}

func TestBuildIndex_DuplicateCitekeyFirstWins(t *testing.T) {
	items := exportItems(t, `{"items": [
		{"citationKey": "dup", "title": "First"},
		{"citationKey": "dup", "title": "Second"}
	]}`)

	idx := BuildIndex(items)
	if idx.Records["dup"].Title != "First" {
		t.Errorf("expected first occurrence to win, got %q", idx.Records["dup"].Title)
	}
	if len(idx.Citekeys) != 1 {
		t.Errorf("expected 1 citekey, got %v", idx.Citekeys)
	}
	if len(idx.Warnings) != 1 || !strings.Contains(idx.Warnings[0], "duplicate citekey dup") {
		t.Errorf("expected duplicate citekey warning, got %v", idx.Warnings)
	}
}

func TestBuildIndex_Idempotent(t *testing.T) {
	data := `{"items": [
		{"citationKey": "a", "DOI": "10.1/x", "title": "One", "date": "2019"},
		{"citationKey": "b", "url": "https://www.example.com/b/", "title": "Two"},
		{"citationKey": "c", "extra": "arXiv:2101.00001", "title": "Three"}
	]}`

	first := BuildIndex(exportItems(t, data))
	second := BuildIndex(exportItems(t, data))

	if !reflect.DeepEqual(first.Records, second.Records) {
		t.Error("records differ between identical builds")
	}
	if !reflect.DeepEqual(first.ByDOI, second.ByDOI) ||
		!reflect.DeepEqual(first.ByArxiv, second.ByArxiv) ||
		!reflect.DeepEqual(first.ByURL, second.ByURL) {
		t.Error("reverse indices differ between identical builds")
	}
}
