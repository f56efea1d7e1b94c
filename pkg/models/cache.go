package models

import "time"

// CacheEntry stores a previously produced artifact keyed by requirement
// fingerprint, along with the token cost of producing it. Entries created by
// similarity adaptation carry zero cost since nothing was spent on them.
type CacheEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Artifact    []byte    `json:"artifact"`
	Model       string    `json:"model"`
	TokensIn    int       `json:"tokens_in"`
	TokensOut   int       `json:"tokens_out"`
	CostUSD     float64   `json:"cost_usd"`
	CreatedAt   time.Time `json:"created_at"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// IndexRecord is an embedded requirement stored in the similarity index.
// The requirement text is kept so a matched artifact can be adapted to a new
// phrasing; the fingerprint back-references the cache entry it was created with.
type IndexRecord struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Requirement string    `json:"requirement"`
	Artifact    []byte    `json:"artifact"`
	Embedding   []float32 `json:"embedding"`
	CreatedAt   time.Time `json:"created_at"`
}
