// Package storage caches a fetched library export in SQLite so resolution
// runs can work offline.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matsen/citematch/internal/library"
	"github.com/matsen/citematch/internal/reference"
	_ "modernc.org/sqlite"
)

// ErrEmptyCache is returned when the cache holds no synced library.
var ErrEmptyCache = errors.New("library cache is empty (run 'citematch library sync')")

// DB wraps a SQLite library cache.
type DB struct {
	db *sql.DB
}

// CacheInfo records the provenance of the cached library.
type CacheInfo struct {
	Endpoint  string    `json:"endpoint"`
	FetchedAt time.Time `json:"fetched_at"`
	ItemCount int       `json:"item_count"` // total export items, including unkeyed ones
}

// Open opens or creates a library cache at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening library cache: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			position INTEGER PRIMARY KEY,
			citekey TEXT NOT NULL UNIQUE,
			item_key TEXT,
			title TEXT,
			year TEXT,
			doi TEXT,
			url TEXT,
			arxiv_id TEXT,
			authors_json TEXT NOT NULL,
			tags_json TEXT NOT NULL,
			attachments_json TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cache_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			endpoint TEXT,
			fetched_at TEXT NOT NULL,
			item_count INTEGER NOT NULL
		);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveRecords replaces the cached library wholesale in one transaction.
func (d *DB) SaveRecords(records []library.Record, info CacheInfo) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM records`); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM cache_meta`); err != nil {
		return fmt.Errorf("clearing cache meta: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO records (position, citekey, item_key, title, year, doi, url, arxiv_id, authors_json, tags_json, attachments_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		authorsJSON, err := json.Marshal(rec.Authors)
		if err != nil {
			return fmt.Errorf("encoding authors for %s: %w", rec.Citekey, err)
		}
		tagsJSON, err := json.Marshal(rec.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags for %s: %w", rec.Citekey, err)
		}
		attachmentsJSON, err := json.Marshal(rec.PDFAttachments)
		if err != nil {
			return fmt.Errorf("encoding attachments for %s: %w", rec.Citekey, err)
		}

		if _, err := stmt.Exec(i, rec.Citekey, rec.ItemKey, rec.Title, rec.Year, rec.DOI, rec.URL, rec.ArxivID,
			string(authorsJSON), string(tagsJSON), string(attachmentsJSON)); err != nil {
			return fmt.Errorf("inserting record %s: %w", rec.Citekey, err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO cache_meta (id, endpoint, fetched_at, item_count) VALUES (1, ?, ?, ?)`,
		info.Endpoint, info.FetchedAt.UTC().Format(time.RFC3339), info.ItemCount); err != nil {
		return fmt.Errorf("recording cache meta: %w", err)
	}

	return tx.Commit()
}

// LoadRecords returns the cached records in their original export order.
func (d *DB) LoadRecords() ([]library.Record, error) {
	rows, err := d.db.Query(`
		SELECT citekey, item_key, title, year, doi, url, arxiv_id, authors_json, tags_json, attachments_json
		FROM records ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []library.Record
	for rows.Next() {
		var rec library.Record
		var authorsJSON, tagsJSON, attachmentsJSON string
		if err := rows.Scan(&rec.Citekey, &rec.ItemKey, &rec.Title, &rec.Year, &rec.DOI, &rec.URL, &rec.ArxivID,
			&authorsJSON, &tagsJSON, &attachmentsJSON); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if err := json.Unmarshal([]byte(authorsJSON), &rec.Authors); err != nil {
			return nil, fmt.Errorf("decoding authors for %s: %w", rec.Citekey, err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags for %s: %w", rec.Citekey, err)
		}
		var attachments []reference.Attachment
		if err := json.Unmarshal([]byte(attachmentsJSON), &attachments); err != nil {
			return nil, fmt.Errorf("decoding attachments for %s: %w", rec.Citekey, err)
		}
		rec.PDFAttachments = attachments
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Info returns the provenance of the cached library, or ErrEmptyCache.
func (d *DB) Info() (CacheInfo, error) {
	var info CacheInfo
	var fetchedAt string
	err := d.db.QueryRow(`SELECT endpoint, fetched_at, item_count FROM cache_meta WHERE id = 1`).
		Scan(&info.Endpoint, &fetchedAt, &info.ItemCount)
	if err == sql.ErrNoRows {
		return CacheInfo{}, ErrEmptyCache
	}
	if err != nil {
		return CacheInfo{}, fmt.Errorf("reading cache meta: %w", err)
	}

	info.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt)
	if err != nil {
		return CacheInfo{}, fmt.Errorf("parsing fetched_at: %w", err)
	}
	return info, nil
}
