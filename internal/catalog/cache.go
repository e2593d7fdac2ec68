package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Cache stores session headers keyed by (path, mtime, size) so that listing
// does not re-read every log's first line on every call. Purely an
// acceleration: listings are identical with a cold or absent cache.
type Cache struct {
	db *sql.DB
}

// CachedHeader is one cache row.
type CachedHeader struct {
	Path        string
	MtimeUnix   int64
	SizeBytes   int64
	SessionID   string
	ProjectHash string
	Provider    string
	Model       string
	TurnCount   int
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS session_headers (
	path         TEXT PRIMARY KEY,
	mtime_unix   INTEGER NOT NULL,
	size_bytes   INTEGER NOT NULL,
	session_id   TEXT NOT NULL,
	project_hash TEXT NOT NULL,
	provider     TEXT NOT NULL,
	model        TEXT NOT NULL,
	turn_count   INTEGER NOT NULL
)`

// OpenCache opens (creating if needed) the header cache at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open header cache: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize header cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Lookup returns the cached header for path when its recorded mtime and size
// still match the file on disk.
func (c *Cache) Lookup(path string, mtimeUnix, sizeBytes int64) (*CachedHeader, bool) {
	row := c.db.QueryRow(`
		SELECT session_id, project_hash, provider, model, turn_count
		FROM session_headers
		WHERE path = ? AND mtime_unix = ? AND size_bytes = ?`,
		path, mtimeUnix, sizeBytes)

	hit := CachedHeader{Path: path, MtimeUnix: mtimeUnix, SizeBytes: sizeBytes}
	err := row.Scan(&hit.SessionID, &hit.ProjectHash, &hit.Provider, &hit.Model, &hit.TurnCount)
	if err != nil {
		return nil, false
	}
	return &hit, true
}

// Store upserts one header row. Errors are swallowed: the cache is advisory
// and a failed write only costs a re-read next time.
func (c *Cache) Store(h CachedHeader) {
	_, _ = c.db.Exec(`
		INSERT INTO session_headers
			(path, mtime_unix, size_bytes, session_id, project_hash, provider, model, turn_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime_unix = excluded.mtime_unix,
			size_bytes = excluded.size_bytes,
			session_id = excluded.session_id,
			project_hash = excluded.project_hash,
			provider = excluded.provider,
			model = excluded.model,
			turn_count = excluded.turn_count`,
		h.Path, h.MtimeUnix, h.SizeBytes, h.SessionID, h.ProjectHash, h.Provider, h.Model, h.TurnCount)
}

// Forget drops the row for path, if any.
func (c *Cache) Forget(path string) {
	_, _ = c.db.Exec(`DELETE FROM session_headers WHERE path = ?`, path)
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
