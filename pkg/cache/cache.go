// Package cache is an exact-match artifact cache keyed by requirement
// fingerprint, backed by SQLite. Entries never expire; eviction is an
// external concern.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/froth-ops/froth/pkg/models"
)

// Store is the fingerprint-keyed artifact cache.
type Store struct {
	db     *sql.DB
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	fingerprint TEXT PRIMARY KEY,
	artifact BLOB NOT NULL,
	model TEXT NOT NULL,
	tokens_in INTEGER NOT NULL,
	tokens_out INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// New opens the cache database and creates the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Store{db: db}, nil
}

// Normalize canonicalizes requirement text for fingerprinting: trims
// surrounding whitespace, lowercases, and collapses internal whitespace so
// near-identical phrasing with only casing/spacing differences shares a key.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Fingerprint computes the cache key for a requirement: SHA-256 of the
// normalized text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return fmt.Sprintf("%x", sum)
}

// Get retrieves a cached entry. A read failure counts as a miss so the
// pipeline degrades to the next stage.
func (s *Store) Get(fingerprint string) (models.CacheEntry, bool) {
	var e models.CacheEntry
	err := s.db.QueryRow(
		`SELECT fingerprint, artifact, model, tokens_in, tokens_out, cost_usd, created_at
		 FROM cache_entries WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&e.Fingerprint, &e.Artifact, &e.Model, &e.TokensIn, &e.TokensOut, &e.CostUSD, &e.CreatedAt)

	if err != nil {
		s.misses.Add(1)
		return models.CacheEntry{}, false
	}

	s.hits.Add(1)
	return e, true
}

// Put stores an entry, replacing any existing entry for the same fingerprint
// (last-write-wins).
func (s *Store) Put(e models.CacheEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (fingerprint, artifact, model, tokens_in, tokens_out, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Fingerprint, e.Artifact, e.Model, e.TokensIn, e.TokensOut, e.CostUSD, createdAt,
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Stats returns cache performance metrics.
func (s *Store) Stats() (models.CacheStats, error) {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}, nil
}

// Clear removes all cache entries.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
