package models

import "time"

// AuditEntry records the outcome of a single routed request. Entries are
// append-only and never mutated after write.
type AuditEntry struct {
	Seq             int64     `json:"seq,omitempty"`
	RequestID       string    `json:"request_id"`
	UserID          string    `json:"user_id"`
	Source          Source    `json:"source"`
	TokensIn        int       `json:"tokens_in"`
	TokensOut       int       `json:"tokens_out"`
	TokensCharged   int       `json:"tokens_charged"`
	CostUSD         float64   `json:"cost_usd"`
	SimilarityScore float64   `json:"similarity_score,omitempty"`
	LatencyMs       int64     `json:"latency_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	UserID    string
	Source    Source
	RequestID string
	Since     time.Time
	Limit     int
}

// AuditStat holds aggregate counts and cost for a source/day combination.
type AuditStat struct {
	Source        Source
	Day           string
	Count         int
	TokensCharged int64
	CostUSD       float64
}
