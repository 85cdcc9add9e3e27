// Package history keeps a local record of completed downloads in sqlite.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one completed download.
type Record struct {
	ID        int64
	BVID      string
	Aid       int64
	Cid       int64
	Title     string
	Owner     string
	Output    string
	Bytes     int64
	Qualities string
	CreatedAt time.Time
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS downloads (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    bvid       TEXT NOT NULL,
    aid        INTEGER NOT NULL DEFAULT 0,
    cid        INTEGER NOT NULL DEFAULT 0,
    title      TEXT NOT NULL DEFAULT '',
    owner      TEXT NOT NULL DEFAULT '',
    output     TEXT NOT NULL DEFAULT '',
    bytes      INTEGER NOT NULL DEFAULT 0,
    qualities  TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_downloads_bvid ON downloads(bvid);
`

// Store wraps the sqlite handle. Safe for sequential use from one flow;
// the mutex guards against accidental concurrent inserts.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends one download record.
func (s *Store) Insert(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO downloads (bvid, aid, cid, title, owner, output, bytes, qualities)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BVID, r.Aid, r.Cid, r.Title, r.Owner, r.Output, r.Bytes, r.Qualities,
	)
	return err
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, bvid, aid, cid, title, owner, output, bytes, qualities, created_at
		 FROM downloads ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.BVID, &r.Aid, &r.Cid, &r.Title, &r.Owner,
			&r.Output, &r.Bytes, &r.Qualities, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
