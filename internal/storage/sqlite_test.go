package storage

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/matsen/citematch/internal/library"
	"github.com/matsen/citematch/internal/reference"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)

	records := []library.Record{
		{
			Citekey: "smith2020",
			ItemKey: "K1",
			Title:   "A Theory of Everything",
			Year:    "2020",
			Authors: []string{"Smith, Jane"},
			DOI:     "10.1000/abc",
			URL:     "https://example.com/paper",
			ArxivID: "2001.00001",
			Tags:    []string{"physics"},
			PDFAttachments: []reference.Attachment{
				{Title: "Full Text", Path: "/pdfs/smith2020.pdf"},
			},
		},
		{Citekey: "jones2018", Title: "Another Paper"},
	}

	info := CacheInfo{
		Endpoint:  "http://localhost:23119/export",
		FetchedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		ItemCount: 3,
	}
	if err := db.SaveRecords(records, info); err != nil {
		t.Fatalf("SaveRecords: %v", err)
	}

	loaded, err := db.LoadRecords()
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if !reflect.DeepEqual(loaded, records) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", loaded, records)
	}

	gotInfo, err := db.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if !reflect.DeepEqual(gotInfo, info) {
		t.Errorf("info mismatch: got %+v, want %+v", gotInfo, info)
	}
}

func TestSaveReplacesWholesale(t *testing.T) {
	db := openTestDB(t)

	first := []library.Record{{Citekey: "a", Title: "One"}, {Citekey: "b", Title: "Two"}}
	if err := db.SaveRecords(first, CacheInfo{FetchedAt: time.Now().UTC(), ItemCount: 2}); err != nil {
		t.Fatalf("SaveRecords: %v", err)
	}

	second := []library.Record{{Citekey: "c", Title: "Three"}}
	if err := db.SaveRecords(second, CacheInfo{FetchedAt: time.Now().UTC(), ItemCount: 1}); err != nil {
		t.Fatalf("SaveRecords: %v", err)
	}

	loaded, err := db.LoadRecords()
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Citekey != "c" {
		t.Errorf("expected wholesale replacement, got %+v", loaded)
	}
}

func TestInfoEmptyCache(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Info(); !errors.Is(err, ErrEmptyCache) {
		t.Errorf("expected ErrEmptyCache, got %v", err)
	}
}

func TestLoadPreservesOrder(t *testing.T) {
	db := openTestDB(t)

	records := []library.Record{
		{Citekey: "zeta", Title: "Z"},
		{Citekey: "alpha", Title: "A"},
		{Citekey: "mid", Title: "M"},
	}
	if err := db.SaveRecords(records, CacheInfo{FetchedAt: time.Now().UTC(), ItemCount: 3}); err != nil {
		t.Fatalf("SaveRecords: %v", err)
	}

	loaded, err := db.LoadRecords()
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	for i, rec := range records {
		if loaded[i].Citekey != rec.Citekey {
			t.Errorf("position %d: got %q, want %q", i, loaded[i].Citekey, rec.Citekey)
		}
	}
}
