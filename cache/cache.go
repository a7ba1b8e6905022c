// Package cache stores compiled programs in SQLite, keyed by the hash of
// their source, so unchanged programs skip compilation.
package cache

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/brainfunc/vm"
	"github.com/chazu/brainfunc/vm/image"
)

var log = commonlog.GetLogger("brainfunc.cache")

// Cache is a compiled-program store backed by a SQLite database.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (creating if needed) the cache database at dbPath.
func Open(dbPath string) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		source_hash TEXT PRIMARY KEY,
		image BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{db: db, dbPath: dbPath}, nil
}

// Path returns the database file the cache was opened on.
func (c *Cache) Path() string {
	return c.dbPath
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Key returns the cache key for a source text.
func Key(src []byte) string {
	h := image.HashSource(src)
	return hex.EncodeToString(h[:])
}

// Get returns the cached program for src. A missing or unreadable entry is
// reported as a miss; unreadable entries are logged and dropped.
func (c *Cache) Get(src []byte) (*vm.Program, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(src)
	var data []byte
	err := c.db.QueryRow("SELECT image FROM programs WHERE source_hash = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying cache: %w", err)
	}

	img, err := image.Unmarshal(data)
	if err == nil && img.SourceHash != image.HashSource(src) {
		err = fmt.Errorf("source hash mismatch")
	}
	var prog *vm.Program
	if err == nil {
		prog, err = img.Program()
	}
	if err != nil {
		log.Warningf("dropping corrupt cache entry %s: %v", key, err)
		if _, derr := c.db.Exec("DELETE FROM programs WHERE source_hash = ?", key); derr != nil {
			return nil, false, fmt.Errorf("deleting corrupt entry: %w", derr)
		}
		return nil, false, nil
	}
	return prog, true, nil
}

// Put stores the compiled program for src, replacing any existing entry.
func (c *Cache) Put(src []byte, prog *vm.Program) error {
	data, err := image.Marshal(image.New(prog, src))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO programs (source_hash, image) VALUES (?, ?)",
		Key(src), data,
	)
	if err != nil {
		return fmt.Errorf("saving program: %w", err)
	}
	return nil
}

// Len returns the number of cached programs.
func (c *Cache) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM programs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting programs: %w", err)
	}
	return n, nil
}
