package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Cache is an index of the files downloaded from the catalog, keyed by URL.
type Cache struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS downloads (
	url        TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	fetched_at TIMESTAMP NOT NULL
)`

// OpenCache opens or creates the cache index at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache index: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Entry is a downloaded file.
type Entry struct {
	URL       string
	Path      string
	Size      int64
	FetchedAt time.Time
}

// Lookup returns the entry for url. ok is false if url was never downloaded.
func (c *Cache) Lookup(url string) (e Entry, ok bool, err error) {
	row := c.db.QueryRow(`SELECT url, path, size, fetched_at FROM downloads WHERE url = ?`, url)
	if err := row.Scan(&e.URL, &e.Path, &e.Size, &e.FetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}

// Put records a download, replacing any previous entry for the same URL.
func (c *Cache) Put(e Entry) error {
	_, err := c.db.Exec(`INSERT OR REPLACE INTO downloads (url, path, size, fetched_at) VALUES (?, ?, ?, ?)`,
		e.URL, e.Path, e.Size, e.FetchedAt.UTC())
	return err
}

// Forget removes the entry for url.
func (c *Cache) Forget(url string) error {
	_, err := c.db.Exec(`DELETE FROM downloads WHERE url = ?`, url)
	return err
}

// Close closes the index.
func (c *Cache) Close() error {
	return c.db.Close()
}
