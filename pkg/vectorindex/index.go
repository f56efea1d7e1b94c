// Package vectorindex persists requirement embeddings in SQLite and answers
// nearest-neighbor queries by cosine similarity. The corpus is small (one
// record per cached artifact), so Nearest is a brute-force scan.
package vectorindex

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/froth-ops/froth/pkg/models"
)

// Index stores embedded requirements with their artifacts.
type Index struct {
	db *sql.DB
}

// Match pairs an index record with its similarity score against a query
// vector. Scores are normalized cosine similarity in [-1, 1].
type Match struct {
	Record models.IndexRecord
	Score  float64
}

const createIndexTable = `
CREATE TABLE IF NOT EXISTS index_records (
	id TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	requirement TEXT NOT NULL,
	artifact BLOB NOT NULL,
	embedding TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_records_fingerprint ON index_records(fingerprint);
`

// New opens the index database and creates the schema.
func New(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}

	if _, err := db.Exec(createIndexTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index db: %w", err)
	}

	return &Index{db: db}, nil
}

// Insert stores a record. A missing ID or CreatedAt is filled in.
func (ix *Index) Insert(rec models.IndexRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	emb, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	_, err = ix.db.Exec(
		`INSERT OR REPLACE INTO index_records (id, fingerprint, requirement, artifact, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Fingerprint, rec.Requirement, rec.Artifact, string(emb), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("index insert: %w", err)
	}
	return nil
}

// Nearest returns up to k records ordered by descending similarity to vec.
// Records tied on score are ordered newest first, so the most recently
// created record wins a tie at the top.
func (ix *Index) Nearest(vec []float32, k int) ([]Match, error) {
	rows, err := ix.db.Query(
		`SELECT id, fingerprint, requirement, artifact, embedding, created_at FROM index_records`)
	if err != nil {
		return nil, fmt.Errorf("index scan: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var rec models.IndexRecord
		var emb string
		if err := rows.Scan(&rec.ID, &rec.Fingerprint, &rec.Requirement, &rec.Artifact, &emb, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan index record: %w", err)
		}
		if err := json.Unmarshal([]byte(emb), &rec.Embedding); err != nil {
			continue // skip undecodable embeddings
		}
		matches = append(matches, Match{Record: rec, Score: Cosine(vec, rec.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.CreatedAt.After(matches[j].Record.CreatedAt)
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count returns the number of stored records.
func (ix *Index) Count() (int64, error) {
	var n int64
	if err := ix.db.QueryRow(`SELECT COUNT(*) FROM index_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index count: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Cosine computes the cosine similarity of two vectors. Mismatched
// dimensions or a zero-norm vector yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
